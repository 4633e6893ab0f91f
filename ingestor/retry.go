package ingestor

import (
	"context"
	"time"

	"github.com/avast/retry-go"
)

// RetryPolicy wraps an operation with retries.
type RetryPolicy interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type nopRetry struct{}

func (nopRetry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// BackoffRetry retries an operation with exponential backoff.
//
// It retries on any error returned by fn. It is meant for queue
// acknowledgements, never for storage writes: a failed write is handed back
// to the queue for redelivery.
type BackoffRetry struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

var DefaultAckRetry = BackoffRetry{
	Attempts: 3,
	Delay:    100 * time.Millisecond,
	MaxDelay: 2 * time.Second,
}

func (r BackoffRetry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := r.Attempts
	if attempts == 0 {
		attempts = 1
	}
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}
	if r.Delay > 0 {
		opts = append(opts, retry.Delay(r.Delay))
	}
	if r.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(r.MaxDelay))
	}

	return retry.Do(func() error { return fn(ctx) }, opts...)
}
