package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type SourceSQSConfig struct {
	WaitTimeSeconds int32
	MaxMessages     int32
	VisibilityTO    int32

	Pollers int
	BufSize int

	// RedeliveryDelaySeconds is the visibility timeout applied to a failed
	// message, i.e. the fixed delay before the queue hands it out again.
	RedeliveryDelaySeconds int32
}

func (c *SourceSQSConfig) validate() {
	if c.WaitTimeSeconds < 0 || c.WaitTimeSeconds > 20 {
		panic("wait time seconds must be between 0 and 20")
	}
	if c.MaxMessages < 1 || c.MaxMessages > 10 {
		panic("max messages must be between 1 and 10")
	}
	if c.VisibilityTO < 0 {
		panic("visibility timeout must be non-negative")
	}
	if c.Pollers < 1 {
		panic("pollers must be at least 1")
	}
	if c.BufSize < 1 {
		panic("buffer size must be at least 1")
	}
	if c.RedeliveryDelaySeconds < 0 || c.RedeliveryDelaySeconds > 43200 {
		panic("redelivery delay seconds must be between 0 and 43200")
	}
}

var DefaultSourceSQSConfig = SourceSQSConfig{
	WaitTimeSeconds:        20,
	MaxMessages:            10,
	VisibilityTO:           30,
	Pollers:                2,
	BufSize:                64,
	RedeliveryDelaySeconds: 10,
}

var receiveAttributes = []sqstypes.MessageSystemAttributeName{
	sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// SourceSQS long-polls an SQS queue with a fixed number of pollers and hands
// messages out through a bounded buffer.
type SourceSQS struct {
	cfg SourceSQSConfig

	client      sqsAPI
	queueURL    string
	queueURLPtr *string

	bufCh chan *sqstypes.Message

	closeOnce sync.Once
	cancel    context.CancelFunc

	wg sync.WaitGroup
}

func NewSQS(ctx context.Context, client sqsAPI, queueURL string, cfg SourceSQSConfig) *SourceSQS {
	s := newSQS(ctx, client, queueURL, cfg)
	s.startPollers(ctx)
	return s
}

func newSQS(ctx context.Context, client sqsAPI, queueURL string, cfg SourceSQSConfig) *SourceSQS {
	if client == nil {
		panic("sqs client is required")
	}
	if queueURL == "" {
		panic("queue url is required")
	}
	cfg.validate()

	s := &SourceSQS{
		cfg:      cfg,
		client:   client,
		queueURL: queueURL,
		bufCh:    make(chan *sqstypes.Message, cfg.BufSize),
	}
	s.queueURLPtr = &s.queueURL
	return s
}

func (s *SourceSQS) startPollers(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(s.cfg.Pollers)
	for i := 0; i < s.cfg.Pollers; i++ {
		go func() {
			defer s.wg.Done()
			s.pollLoop(ctx)
		}()
	}
	go func() {
		s.wg.Wait()
		close(s.bufCh)
	}()
}

func (s *SourceSQS) pollLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.WaitTimeSeconds+5)*time.Second)
		out, err := s.client.ReceiveMessage(reqCtx, &sqs.ReceiveMessageInput{
			QueueUrl:                    s.queueURLPtr,
			MaxNumberOfMessages:         s.cfg.MaxMessages,
			WaitTimeSeconds:             s.cfg.WaitTimeSeconds,
			VisibilityTimeout:           s.cfg.VisibilityTO,
			MessageSystemAttributeNames: receiveAttributes,
		})
		cancel()

		if err != nil {
			select {
			case <-time.After(250 * time.Millisecond):
				continue
			case <-ctx.Done():
				return
			}
		}

		for i := range out.Messages {
			msg := &out.Messages[i]
			select {
			case s.bufCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close stops the pollers. Messages already buffered are still handed out;
// Receive returns ErrClosed once the buffer is drained.
func (s *SourceSQS) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func (s *SourceSQS) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m, ok := <-s.bufCh:
		if !ok {
			return nil, ErrClosed
		}
		return &message{src: s, m: m}, nil
	}
}

type message struct {
	src *SourceSQS
	m   *sqstypes.Message
}

func (m *message) Data() Envelope {
	return Envelope{
		ID:   aws.ToString(m.m.MessageId),
		Body: []byte(aws.ToString(m.m.Body)),
	}
}

func (m *message) Attempt() int {
	n, err := strconv.Atoi(m.m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func (m *message) Ack(ctx context.Context) error {
	_, err := m.src.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      m.src.queueURLPtr,
		ReceiptHandle: m.m.ReceiptHandle,
	})
	if err != nil {
		return fmt.Errorf("sqs delete message id=%s: %w", aws.ToString(m.m.MessageId), err)
	}
	return nil
}

// Fail leaves the message on the queue and resets its visibility so it is
// redelivered after the configured delay. The queue's redrive policy decides
// when it moves to the dead-letter queue.
func (m *message) Fail(ctx context.Context, _ error) error {
	_, err := m.src.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          m.src.queueURLPtr,
		ReceiptHandle:     m.m.ReceiptHandle,
		VisibilityTimeout: m.src.cfg.RedeliveryDelaySeconds,
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("sqs change visibility id=%s: %w", aws.ToString(m.m.MessageId), err)
	}
	return nil
}

var _ Sourcer = (*SourceSQS)(nil)
