package source

import (
	"context"
	"errors"
)

// ErrClosed is returned when Receive is called after the source has been closed.
var ErrClosed = errors.New("source closed")

// Envelope is the raw message received from a Source.
//
// The consumer does not impose any schema on Envelope; it is the transformer's
// responsibility to decode it.
type Envelope struct {
	ID   string
	Body []byte
}

// Message represents one delivery of a queue message.
//
// A message is delivered at least once. Ack removes it from the queue; Fail
// hands it back so the queue redelivers it after its fixed redelivery delay
// or, once the retry budget is spent, dead-letters it.
type Message interface {
	Data() Envelope
	// Attempt is the 1-based delivery attempt of this message.
	Attempt() int
	Ack(ctx context.Context) error
	Fail(ctx context.Context, reason error) error
}

// Sourcer reads messages.
//
// Sources should ensure that Receive blocks until a message is available or the
// context is canceled.
type Sourcer interface {
	Receive(ctx context.Context) (Message, error)
}
