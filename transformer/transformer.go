package transformer

import (
	"context"

	"github.com/baldanca/order-reservation/reservation"
	"github.com/baldanca/order-reservation/source"
)

// Transformer converts one value into another.
//
// In this project it converts a source.Envelope into a reservation request.
type Transformer[O any] interface {
	Transform(ctx context.Context, in source.Envelope) (O, error)
}

// ReservationJSON decodes queue message bodies shaped like
// {"sessionId": "...", "payload": "..."}.
type ReservationJSON struct{}

func (ReservationJSON) Transform(ctx context.Context, in source.Envelope) (reservation.Request, error) {
	if err := ctx.Err(); err != nil {
		return reservation.Request{}, err
	}
	return reservation.Decode(in.Body)
}

var _ Transformer[reservation.Request] = ReservationJSON{}
