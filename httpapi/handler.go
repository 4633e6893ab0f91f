package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/baldanca/order-reservation/ingestor"
	"github.com/baldanca/order-reservation/logging"
	"github.com/baldanca/order-reservation/metrics"
	"github.com/baldanca/order-reservation/reservation"
)

// Response bodies returned to callers.
const (
	MsgInvalidRequest = "Invalid order request object."
	MsgMissingField   = "SessionId or payload is missing."
	MsgStoreFailed    = "Failed to store order reservation."
)

// MaxBodyBytes bounds the request body read by the handler.
const MaxBodyBytes = 4 << 20

// Ingester is the part of ingestor.Ingestor the handler uses.
type Ingester interface {
	Ingest(ctx context.Context, adapter string, req reservation.Request) error
}

var _ Ingester = (*ingestor.Ingestor)(nil)

// Handler serves order reservation submissions.
type Handler struct {
	ingester Ingester
	log      *log.Entry
}

func NewHandler(ing Ingester, logger *log.Entry) *Handler {
	if ing == nil {
		panic("ingester is required")
	}
	return &Handler{ingester: ing, log: logging.OrDefault(logger)}
}

// OrderItemReservation stores the payload of a {"sessionId","payload"} body
// under {sessionId}.json.
func (h *Handler) OrderItemReservation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge))
			return
		}
		writeText(w, http.StatusBadRequest, MsgInvalidRequest)
		return
	}

	req, err := reservation.Decode(body)
	if err != nil {
		metrics.RecordIngest(metrics.AdapterHTTP, metrics.OutcomeInvalid)
		h.log.WithError(err).Info("Rejected order reservation request")
		writeText(w, http.StatusBadRequest, MsgInvalidRequest)
		return
	}

	status, msg := Respond(h.ingester.Ingest(r.Context(), metrics.AdapterHTTP, req), req)
	writeText(w, status, msg)
}

// Respond maps the outcome of an ingest to the status code and body returned
// to an HTTP caller.
func Respond(err error, req reservation.Request) (int, string) {
	switch {
	case err == nil:
		sessionID, payload := req.Values()
		return http.StatusOK, fmt.Sprintf("Session Id: %s, payload: %s", sessionID, payload)
	case errors.Is(err, reservation.ErrMissingBody):
		return http.StatusBadRequest, MsgInvalidRequest
	case reservation.IsValidationError(err):
		return http.StatusBadRequest, MsgMissingField
	case ingestor.IsWriteError(err):
		return http.StatusInternalServerError, MsgStoreFailed
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}
