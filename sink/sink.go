package sink

import (
	"context"
	"errors"
)

// ContentTypeJSON is the content type of stored order reservations.
const ContentTypeJSON = "application/json"

// ErrEmptyKey is returned when a write names no object.
var ErrEmptyKey = errors.New("empty key")

// WriteRequest is a full-object write. Sinks replace any existing object with
// the same Key unconditionally.
type WriteRequest struct {
	Key         string
	Data        []byte
	ContentType string
}

type Sinkr interface {
	Write(ctx context.Context, req WriteRequest) error
}
