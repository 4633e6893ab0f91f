package ingestor

import (
	"context"
	"fmt"

	"github.com/baldanca/order-reservation/reservation"
	"github.com/baldanca/order-reservation/sink"
)

// ObjectSuffix is appended to the session id to name the stored object.
const ObjectSuffix = ".json"

// ObjectKey derives the object name of a session. The session id is used
// verbatim, special characters included.
func ObjectKey(sessionID string) string {
	return sessionID + ObjectSuffix
}

// WriteError reports a failed storage write. It is never recovered locally.
type WriteError struct {
	SessionID string
	Key       string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write order reservation session=%q key=%q: %v", e.SessionID, e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer stores one order reservation payload per session.
//
// Each Write issues exactly one full-overwrite write and never retries;
// redelivery is left to whoever called it.
type Writer struct {
	sink sink.Sinkr
}

func NewWriter(s sink.Sinkr) *Writer {
	if s == nil {
		panic("sink is required")
	}
	return &Writer{sink: s}
}

func (w *Writer) Write(ctx context.Context, sessionID, payload string) error {
	if sessionID == "" {
		return &reservation.ValidationError{Kind: reservation.MissingSessionID}
	}

	key := ObjectKey(sessionID)
	err := w.sink.Write(ctx, sink.WriteRequest{
		Key:         key,
		Data:        []byte(payload),
		ContentType: sink.ContentTypeJSON,
	})
	if err != nil {
		return &WriteError{SessionID: sessionID, Key: key, Err: err}
	}
	return nil
}
