package ingestor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNopRetry_CallsOnce(t *testing.T) {
	var calls int32
	r := nopRetry{}
	err := r.Do(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d want=1", calls)
	}
}

func TestNopRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := nopRetry{}.Do(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestBackoffRetry_SucceedsFirstTry(t *testing.T) {
	var calls int32
	r := BackoffRetry{Attempts: 5, Delay: time.Millisecond, MaxDelay: time.Millisecond}

	err := r.Do(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d want=1", calls)
	}
}

func TestBackoffRetry_RetriesUntilSuccess(t *testing.T) {
	var calls int32
	wantCalls := int32(3)

	r := BackoffRetry{Attempts: 10, Delay: time.Millisecond, MaxDelay: time.Millisecond}

	err := r.Do(context.Background(), func(ctx context.Context) error {
		c := atomic.AddInt32(&calls, 1)
		if c < wantCalls {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if calls != wantCalls {
		t.Fatalf("calls=%d want=%d", calls, wantCalls)
	}
}

func TestBackoffRetry_ReturnsLastError(t *testing.T) {
	var calls int32
	r := BackoffRetry{Attempts: 4, Delay: time.Millisecond, MaxDelay: time.Millisecond}

	sentinel := errors.New("boom")
	err := r.Do(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("calls=%d want=4", calls)
	}
}

func TestBackoffRetry_RespectsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	r := BackoffRetry{Attempts: 3, Delay: time.Millisecond}
	err := r.Do(ctx, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("calls=%d want=0", calls)
	}
}

func TestBackoffRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	var calls int32
	_ = BackoffRetry{}.Do(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("fail")
	})
	if calls != 1 {
		t.Fatalf("calls=%d want=1", calls)
	}
}
