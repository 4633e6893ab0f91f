package lambdafn

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	log "github.com/sirupsen/logrus"

	"github.com/baldanca/order-reservation/httpapi"
	"github.com/baldanca/order-reservation/logging"
	"github.com/baldanca/order-reservation/metrics"
	"github.com/baldanca/order-reservation/source"
	"github.com/baldanca/order-reservation/transformer"
)

type QueueConfig struct {
	// ReportBatchItemFailures must match the ReportBatchItemFailures function
	// response type of the event source mapping.
	ReportBatchItemFailures bool
	// MaxAttempts is the maxReceiveCount of the queue's redrive policy.
	MaxAttempts int
}

var DefaultQueueConfig = QueueConfig{
	ReportBatchItemFailures: true,
	MaxAttempts:             3,
}

// QueueHandler processes SQS batches delivered to a Lambda function.
type QueueHandler struct {
	cfg      QueueConfig
	ingester httpapi.Ingester
	tr       transformer.ReservationJSON
	log      *log.Entry
}

func NewQueueHandler(cfg QueueConfig, ing httpapi.Ingester, logger *log.Entry) *QueueHandler {
	if ing == nil {
		panic("ingester is required")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultQueueConfig.MaxAttempts
	}
	return &QueueHandler{
		cfg:      cfg,
		ingester: ing,
		log:      logging.OrDefault(logger).WithField("adapter", metrics.AdapterLambdaSQS),
	}
}

// Handle stores every record of the batch. Failed records are reported back
// so SQS redelivers only those; with item reporting disabled any failure
// fails the whole invocation and the batch is redelivered.
func (h *QueueHandler) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	var errs []error

	for _, rec := range ev.Records {
		if err := h.handleRecord(ctx, rec); err != nil {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
			errs = append(errs, fmt.Errorf("message id=%s: %w", rec.MessageId, err))
		}
	}

	if len(errs) > 0 && !h.cfg.ReportBatchItemFailures {
		return events.SQSEventResponse{}, errors.Join(errs...)
	}
	return resp, nil
}

func (h *QueueHandler) handleRecord(ctx context.Context, rec events.SQSMessage) error {
	attempt := receiveCount(rec)
	logger := h.log.WithFields(log.Fields{"message_id": rec.MessageId, "attempt": attempt})

	req, err := h.tr.Transform(ctx, source.Envelope{ID: rec.MessageId, Body: []byte(rec.Body)})
	if err == nil {
		err = h.ingester.Ingest(ctx, metrics.AdapterLambdaSQS, req)
	} else {
		metrics.RecordIngest(metrics.AdapterLambdaSQS, metrics.OutcomeInvalid)
	}
	if err == nil {
		return nil
	}

	if attempt >= h.cfg.MaxAttempts {
		metrics.RecordRedelivery(metrics.AdapterLambdaSQS, metrics.ActionDeadLetter)
		logger.WithError(err).Errorf("Message failed on attempt %d of %d, dead-lettering", attempt, h.cfg.MaxAttempts)
	} else {
		metrics.RecordRedelivery(metrics.AdapterLambdaSQS, metrics.ActionRedeliver)
		logger.WithError(err).Warnf("Message failed on attempt %d of %d, redelivering", attempt, h.cfg.MaxAttempts)
	}
	return err
}

func receiveCount(rec events.SQSMessage) int {
	n, err := strconv.Atoi(rec.Attributes["ApproximateReceiveCount"])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
