// Package provision prepares the AWS resources the ingestion path relies on:
// the bucket objects are written to and the redrive policy of the source
// queue, which bounds how often a failed message is redelivered.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	log "github.com/sirupsen/logrus"

	"github.com/baldanca/order-reservation/logging"
)

type s3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

type sqsAPI interface {
	SetQueueAttributes(ctx context.Context, params *sqs.SetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error)
}

type Config struct {
	Bucket string
	// Region is used as the bucket location constraint outside us-east-1.
	Region string

	// QueueURL is optional; without it only the bucket is provisioned.
	QueueURL           string
	DeadLetterQueueARN string
	MaxReceiveCount    int
	VisibilityTimeout  time.Duration
}

func (c Config) validate() error {
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	if c.QueueURL == "" {
		return nil
	}
	if c.DeadLetterQueueARN == "" {
		return errors.New("dead-letter queue arn is required when a queue url is set")
	}
	if c.MaxReceiveCount < 1 || c.MaxReceiveCount > 1000 {
		return fmt.Errorf("max receive count must be between 1 and 1000, got %d", c.MaxReceiveCount)
	}
	if c.VisibilityTimeout < 0 || c.VisibilityTimeout > 12*time.Hour {
		return fmt.Errorf("visibility timeout must be between 0 and 12h, got %s", c.VisibilityTimeout)
	}
	return nil
}

type Provisioner struct {
	cfg Config
	s3  s3API
	sqs sqsAPI
	log *log.Entry
}

// New builds a Provisioner. sqsClient may be nil when cfg.QueueURL is empty.
func New(cfg Config, s3Client s3API, sqsClient sqsAPI, logger *log.Entry) (*Provisioner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if s3Client == nil {
		return nil, errors.New("s3 client is nil")
	}
	if cfg.QueueURL != "" && sqsClient == nil {
		return nil, errors.New("sqs client is nil")
	}
	return &Provisioner{cfg: cfg, s3: s3Client, sqs: sqsClient, log: logging.OrDefault(logger)}, nil
}

// Apply is safe to run repeatedly.
func (p *Provisioner) Apply(ctx context.Context) error {
	if err := p.ensureBucket(ctx); err != nil {
		return err
	}
	if p.cfg.QueueURL == "" {
		return nil
	}
	return p.applyRedrivePolicy(ctx)
}

func (p *Provisioner) ensureBucket(ctx context.Context) error {
	logger := p.log.WithField("bucket", p.cfg.Bucket)

	_, err := p.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.cfg.Bucket)})
	if err == nil {
		logger.Info("Bucket already exists")
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("head bucket %q: %w", p.cfg.Bucket, err)
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(p.cfg.Bucket)}
	if p.cfg.Region != "" && p.cfg.Region != "us-east-1" {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(p.cfg.Region),
		}
	}
	if _, err := p.s3.CreateBucket(ctx, in); err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("create bucket %q: %w", p.cfg.Bucket, err)
	}
	logger.Info("Created bucket")
	return nil
}

type redrivePolicy struct {
	DeadLetterTargetArn string `json:"deadLetterTargetArn"`
	MaxReceiveCount     string `json:"maxReceiveCount"`
}

func (p *Provisioner) applyRedrivePolicy(ctx context.Context) error {
	policy, err := json.Marshal(redrivePolicy{
		DeadLetterTargetArn: p.cfg.DeadLetterQueueARN,
		MaxReceiveCount:     strconv.Itoa(p.cfg.MaxReceiveCount),
	})
	if err != nil {
		return err
	}

	_, err = p.sqs.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl: aws.String(p.cfg.QueueURL),
		Attributes: map[string]string{
			string(sqstypes.QueueAttributeNameRedrivePolicy):     string(policy),
			string(sqstypes.QueueAttributeNameVisibilityTimeout): strconv.Itoa(int(p.cfg.VisibilityTimeout / time.Second)),
		},
	})
	if err != nil {
		return fmt.Errorf("set queue attributes url=%s: %w", p.cfg.QueueURL, err)
	}

	p.log.WithFields(log.Fields{
		"queue_url":         p.cfg.QueueURL,
		"max_receive_count": p.cfg.MaxReceiveCount,
		"dead_letter_arn":   p.cfg.DeadLetterQueueARN,
	}).Info("Applied queue redrive policy")
	return nil
}

func isNotFound(err error) bool {
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsb *s3types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchBucket")
}
