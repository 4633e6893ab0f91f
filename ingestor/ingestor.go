package ingestor

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/baldanca/order-reservation/logging"
	"github.com/baldanca/order-reservation/metrics"
	"github.com/baldanca/order-reservation/reservation"
	"github.com/baldanca/order-reservation/sink"
)

// Ingestor is the path every entry adapter shares: validate, then write.
// It holds no per-request state and is safe for concurrent use.
type Ingestor struct {
	writer *Writer
	log    *log.Entry
}

func New(s sink.Sinkr, logger *log.Entry) *Ingestor {
	return &Ingestor{
		writer: NewWriter(s),
		log:    logging.OrDefault(logger),
	}
}

// Ingest validates req and stores its payload under {sessionId}.json.
//
// It returns a *reservation.ValidationError without touching storage when a
// field is missing, and a *WriteError when storage fails.
func (i *Ingestor) Ingest(ctx context.Context, adapter string, req reservation.Request) error {
	if err := req.Validate(); err != nil {
		metrics.RecordIngest(adapter, metrics.OutcomeInvalid)
		i.log.WithField("adapter", adapter).WithError(err).Info("Rejected order reservation")
		return err
	}

	sessionID, payload := req.Values()
	logger := i.log.WithFields(log.Fields{"adapter": adapter, "session_id": sessionID})
	logger.Debugf("Storing order reservation payload (%d bytes)", len(payload))

	start := time.Now()
	err := i.writer.Write(ctx, sessionID, payload)
	if err != nil {
		metrics.RecordWrite(metrics.OutcomeWriteError, time.Since(start))
		metrics.RecordIngest(adapter, metrics.OutcomeWriteError)
		logger.WithError(err).Error("Failed to store order reservation")
		return err
	}

	metrics.RecordWrite(metrics.OutcomeOK, time.Since(start))
	metrics.RecordIngest(adapter, metrics.OutcomeOK)
	logger.WithField("key", ObjectKey(sessionID)).Info("Stored order reservation")
	return nil
}

// IsWriteError reports whether err carries a *WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}
