package ingestor

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/baldanca/order-reservation/logging"
	"github.com/baldanca/order-reservation/metrics"
	"github.com/baldanca/order-reservation/reservation"
	"github.com/baldanca/order-reservation/source"
	"github.com/baldanca/order-reservation/transformer"
)

type ConsumerConfig struct {
	// Adapter labels logs and metrics, e.g. metrics.AdapterSQS.
	Adapter string
	Workers int
	// MaxAttempts is the delivery budget configured on the queue. It is only
	// used to tell a redelivery from a dead-letter in logs and metrics.
	MaxAttempts int
}

var DefaultConsumerConfig = ConsumerConfig{
	Adapter:     metrics.AdapterSQS,
	Workers:     4,
	MaxAttempts: 3,
}

// deadLetterer is implemented by messages that know whether failing them
// dead-letters instead of redelivering.
type deadLetterer interface {
	DeadLetters() bool
}

// Consumer drains a queue source into an Ingestor.
//
// A message is acknowledged only after its payload is stored. Any failure,
// malformed messages included, hands the message back to the queue.
type Consumer struct {
	cfg         ConsumerConfig
	source      source.Sourcer
	transformer transformer.Transformer[reservation.Request]
	ingestor    *Ingestor
	ackRetry    RetryPolicy
	log         *log.Entry
}

func NewConsumer(
	cfg ConsumerConfig,
	src source.Sourcer,
	tr transformer.Transformer[reservation.Request],
	ing *Ingestor,
	logger *log.Entry,
) (*Consumer, error) {
	if src == nil {
		return nil, fmt.Errorf("source is nil")
	}
	if tr == nil {
		return nil, fmt.Errorf("transformer is nil")
	}
	if ing == nil {
		return nil, fmt.Errorf("ingestor is nil")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultConsumerConfig.MaxAttempts
	}
	if cfg.Adapter == "" {
		cfg.Adapter = DefaultConsumerConfig.Adapter
	}

	return &Consumer{
		cfg:         cfg,
		source:      src,
		transformer: tr,
		ingestor:    ing,
		ackRetry:    nopRetry{},
		log:         logging.OrDefault(logger).WithField("adapter", cfg.Adapter),
	}, nil
}

func (c *Consumer) SetAckRetryPolicy(p RetryPolicy) {
	if p == nil {
		c.ackRetry = nopRetry{}
		return
	}
	c.ackRetry = p
}

// Run receives and processes messages with cfg.Workers workers until ctx is
// canceled or the source is closed, in which case it returns nil. Any other
// receive error stops every worker and is returned.
//
// A message already received is processed to completion even if ctx is
// canceled meanwhile, so a stored payload is not left unacknowledged.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Infof("Starting consumer with %d workers", c.cfg.Workers)
	defer c.log.Info("Consumer stopped")

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < c.cfg.Workers; w++ {
		g.Go(func() error {
			return c.work(ctx)
		})
	}
	return g.Wait()
}

func (c *Consumer) work(ctx context.Context) error {
	for {
		msg, err := c.source.Receive(ctx)
		if err != nil {
			if errors.Is(err, source.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		c.process(context.WithoutCancel(ctx), msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg source.Message) {
	env := msg.Data()
	logger := c.log.WithFields(log.Fields{"message_id": env.ID, "attempt": msg.Attempt()})

	err := c.handle(ctx, env)
	if err != nil {
		c.fail(ctx, logger, msg, err)
		return
	}

	if err := c.ackRetry.Do(ctx, msg.Ack); err != nil {
		// The payload is stored; redelivery only rewrites the same object.
		logger.WithError(err).Error("Failed to acknowledge message")
	}
}

func (c *Consumer) handle(ctx context.Context, env source.Envelope) error {
	req, err := c.transformer.Transform(ctx, env)
	if err != nil {
		metrics.RecordIngest(c.cfg.Adapter, metrics.OutcomeInvalid)
		return err
	}
	return c.ingestor.Ingest(ctx, c.cfg.Adapter, req)
}

func (c *Consumer) fail(ctx context.Context, logger *log.Entry, msg source.Message, reason error) {
	deadLetter := msg.Attempt() >= c.cfg.MaxAttempts
	if dl, ok := msg.(deadLetterer); ok {
		deadLetter = dl.DeadLetters()
	}

	if err := msg.Fail(ctx, reason); err != nil {
		logger.WithError(err).Error("Failed to hand message back to the queue")
	}

	if deadLetter {
		metrics.RecordRedelivery(c.cfg.Adapter, metrics.ActionDeadLetter)
		logger.WithError(reason).Errorf("Message failed on attempt %d of %d, dead-lettering", msg.Attempt(), c.cfg.MaxAttempts)
		return
	}
	metrics.RecordRedelivery(c.cfg.Adapter, metrics.ActionRedeliver)
	logger.WithError(reason).Warnf("Message failed on attempt %d of %d, redelivering", msg.Attempt(), c.cfg.MaxAttempts)
}
