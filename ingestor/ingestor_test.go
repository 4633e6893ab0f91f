package ingestor

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baldanca/order-reservation/metrics"
	"github.com/baldanca/order-reservation/reservation"
	"github.com/baldanca/order-reservation/sink"
)

func testLogger() (*log.Entry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	return log.NewEntry(logger), hook
}

func strPtr(s string) *string { return &s }

func TestIngestor_StoresValidRequest(t *testing.T) {
	mem := sink.NewMemory()
	logger, hook := testLogger()
	ing := New(mem, logger)

	err := ing.Ingest(context.Background(), metrics.AdapterHTTP, reservation.New("abc123", `{"item":"leash"}`))
	require.NoError(t, err)

	obj, ok := mem.Get("abc123.json")
	require.True(t, ok)
	assert.Equal(t, `{"item":"leash"}`, string(obj.Data))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "abc123", entry.Data["session_id"])
	assert.Equal(t, metrics.AdapterHTTP, entry.Data["adapter"])
}

func TestIngestor_ValidationPrecedesWrite(t *testing.T) {
	for name, tc := range map[string]struct {
		req  reservation.Request
		want error
	}{
		"missing session": {reservation.Request{Payload: strPtr("p")}, reservation.ErrMissingSessionID},
		"empty session":   {reservation.Request{SessionID: strPtr(""), Payload: strPtr("p")}, reservation.ErrMissingSessionID},
		"missing payload": {reservation.Request{SessionID: strPtr("s")}, reservation.ErrMissingPayload},
		"missing both":    {reservation.Request{}, reservation.ErrMissingSessionID},
	} {
		t.Run(name, func(t *testing.T) {
			mem := sink.NewMemory()
			logger, _ := testLogger()

			err := New(mem, logger).Ingest(context.Background(), metrics.AdapterHTTP, tc.req)

			assert.ErrorIs(t, err, tc.want)
			assert.True(t, reservation.IsValidationError(err))
			assert.Zero(t, mem.Writes())
		})
	}
}

func TestIngestor_PropagatesWriteError(t *testing.T) {
	boom := errors.New("throttled")
	mem := sink.NewMemory()
	mem.FailNext(1, boom)
	logger, hook := testLogger()

	err := New(mem, logger).Ingest(context.Background(), metrics.AdapterSQS, reservation.New("s1", "p"))

	assert.True(t, IsWriteError(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, log.ErrorLevel, hook.LastEntry().Level)
}

func TestIngestor_RecordsOutcomes(t *testing.T) {
	const adapter = "ingestor_test"
	mem := sink.NewMemory()
	mem.FailNext(1, errors.New("boom"))
	logger, _ := testLogger()
	ing := New(mem, logger)

	_ = ing.Ingest(context.Background(), adapter, reservation.New("s1", "p"))
	_ = ing.Ingest(context.Background(), adapter, reservation.New("s1", "p"))
	_ = ing.Ingest(context.Background(), adapter, reservation.Request{})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IngestCounter(adapter, metrics.OutcomeWriteError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IngestCounter(adapter, metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IngestCounter(adapter, metrics.OutcomeInvalid)))
}

func TestIngestor_ConcurrentSameSessionLastWriteWins(t *testing.T) {
	mem := sink.NewMemory()
	logger, _ := testLogger()
	ing := New(mem, logger)

	done := make(chan struct{})
	for _, p := range []string{"a", "b", "c", "d"} {
		go func(p string) {
			defer func() { done <- struct{}{} }()
			assert.NoError(t, ing.Ingest(context.Background(), metrics.AdapterHTTP, reservation.New("same", p)))
		}(p)
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	obj, ok := mem.Get("same.json")
	require.True(t, ok)
	assert.Contains(t, []string{"a", "b", "c", "d"}, string(obj.Data))
	assert.Equal(t, []string{"same.json"}, mem.Keys())
}
