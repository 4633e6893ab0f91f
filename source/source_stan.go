package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	stan "github.com/nats-io/stan.go"
)

type SourceSTANConfig struct {
	Subject    string
	QueueGroup string
	Durable    string

	// RedeliveryDelay is the ack wait: an unacknowledged message is redelivered
	// by the streaming server after this fixed delay.
	RedeliveryDelay time.Duration
	MaxInflight     int
	BufSize         int

	// MaxAttempts is the delivery budget of one message. A message failing on
	// its last attempt is published to DeadLetterSubject and acknowledged.
	// Publish and ack are not atomic, so the dead-letter subject is
	// at-least-once: a failed ack after a successful publish redelivers the
	// message and it is published again.
	MaxAttempts       int
	DeadLetterSubject string
}

// ErrDeadLetterNotAcked is returned by Fail when a message reached the
// dead-letter subject but could not be acknowledged. It will be delivered,
// and dead-lettered, again.
var ErrDeadLetterNotAcked = errors.New("stan message dead-lettered but not acknowledged")

func (c *SourceSTANConfig) validate() {
	if c.Subject == "" {
		panic("subject is required")
	}
	if c.RedeliveryDelay < time.Second {
		panic("redelivery delay must be at least one second")
	}
	if c.MaxInflight < 1 {
		panic("max inflight must be at least 1")
	}
	if c.BufSize < 1 {
		panic("buffer size must be at least 1")
	}
	if c.MaxAttempts < 1 {
		panic("max attempts must be at least 1")
	}
	if c.DeadLetterSubject == "" {
		panic("dead-letter subject is required")
	}
}

var DefaultSourceSTANConfig = SourceSTANConfig{
	Subject:           "order-reservations",
	QueueGroup:        "order-reservation-workers",
	Durable:           "order-reservation",
	RedeliveryDelay:   10 * time.Second,
	MaxInflight:       16,
	BufSize:           16,
	MaxAttempts:       3,
	DeadLetterSubject: "order-reservations.dlq",
}

// stanConn is the part of stan.Conn the source needs.
type stanConn interface {
	QueueSubscribe(subject, qgroup string, cb stan.MsgHandler, opts ...stan.SubscriptionOption) (stan.Subscription, error)
	Publish(subject string, data []byte) error
}

// SourceSTAN consumes a NATS Streaming subject through a durable queue group
// in manual ack mode.
type SourceSTAN struct {
	cfg  SourceSTANConfig
	conn stanConn
	sub  stan.Subscription

	ack func(*stan.Msg) error

	bufCh chan *stan.Msg
	done  chan struct{}

	closeOnce sync.Once
}

func NewSTAN(conn stanConn, cfg SourceSTANConfig) (*SourceSTAN, error) {
	s := newSTAN(conn, cfg)

	sub, err := conn.QueueSubscribe(cfg.Subject, cfg.QueueGroup, s.deliver,
		stan.DurableName(cfg.Durable),
		stan.SetManualAckMode(),
		stan.AckWait(cfg.RedeliveryDelay),
		stan.MaxInflight(cfg.MaxInflight),
		stan.DeliverAllAvailable(),
	)
	if err != nil {
		return nil, fmt.Errorf("stan subscribe subject=%s: %w", cfg.Subject, err)
	}
	s.sub = sub
	return s, nil
}

func newSTAN(conn stanConn, cfg SourceSTANConfig) *SourceSTAN {
	if conn == nil {
		panic("stan connection is required")
	}
	cfg.validate()

	return &SourceSTAN{
		cfg:   cfg,
		conn:  conn,
		ack:   (*stan.Msg).Ack,
		bufCh: make(chan *stan.Msg, cfg.BufSize),
		done:  make(chan struct{}),
	}
}

// deliver runs on the subscription's goroutine. Blocking here is bounded by
// MaxInflight; a message dropped on close is simply redelivered later.
func (s *SourceSTAN) deliver(m *stan.Msg) {
	select {
	case s.bufCh <- m:
	case <-s.done:
	}
}

// Close stops handing out messages. The durable subscription is kept so the
// queue group resumes where it left off.
func (s *SourceSTAN) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.sub != nil {
			err = s.sub.Close()
		}
	})
	return err
}

func (s *SourceSTAN) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	case m := <-s.bufCh:
		return &stanMessage{src: s, m: m}, nil
	}
}

type stanMessage struct {
	src *SourceSTAN
	m   *stan.Msg
}

func (m *stanMessage) Data() Envelope {
	return Envelope{
		ID:   strconv.FormatUint(m.m.Sequence, 10),
		Body: m.m.Data,
	}
}

func (m *stanMessage) Attempt() int {
	return int(m.m.RedeliveryCount) + 1
}

func (m *stanMessage) Ack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.src.ack(m.m); err != nil {
		return fmt.Errorf("stan ack seq=%d: %w", m.m.Sequence, err)
	}
	return nil
}

// Fail leaves the message unacknowledged so the server redelivers it after the
// ack wait. On the last attempt the message is moved to the dead-letter
// subject instead, since the streaming server has no redrive of its own.
func (m *stanMessage) Fail(ctx context.Context, _ error) error {
	if !m.DeadLetters() {
		return nil
	}
	if err := m.src.conn.Publish(m.src.cfg.DeadLetterSubject, m.m.Data); err != nil {
		return fmt.Errorf("stan dead-letter seq=%d subject=%s: %w", m.m.Sequence, m.src.cfg.DeadLetterSubject, err)
	}
	if err := m.Ack(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDeadLetterNotAcked, err)
	}
	return nil
}

// DeadLetters reports whether a failure on this delivery dead-letters the message.
func (m *stanMessage) DeadLetters() bool {
	return m.Attempt() >= m.src.cfg.MaxAttempts
}

var _ Sourcer = (*SourceSTAN)(nil)
