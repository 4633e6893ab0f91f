package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/baldanca/order-reservation/config"
	"github.com/baldanca/order-reservation/sink"
	"github.com/baldanca/order-reservation/source"
)

func loadAWSConfig(ctx context.Context, cfg config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func newS3Client(awsCfg aws.Config, st config.StorageConfig) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if st.Endpoint != "" {
			o.BaseEndpoint = aws.String(st.Endpoint)
			o.UsePathStyle = true
		}
	})
}

// newSink builds the one storage client the process uses for its lifetime.
func newSink(ctx context.Context, cfg config.Config) (sink.Sinkr, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return sink.NewMemory(), nil
	case config.DriverS3:
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return sink.New(newS3Client(awsCfg, cfg.Storage), cfg.Storage.Bucket, cfg.Storage.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func sqsSourceConfig(q config.QueueConfig) source.SourceSQSConfig {
	sc := source.DefaultSourceSQSConfig
	sc.WaitTimeSeconds = seconds(q.WaitTime)
	sc.VisibilityTO = seconds(q.VisibilityTimeout)
	sc.RedeliveryDelaySeconds = seconds(q.RedeliveryDelay)
	sc.Pollers = q.Pollers
	sc.BufSize = q.Buffer
	return sc
}

func stanSourceConfig(c config.STANConfig, q config.QueueConfig) source.SourceSTANConfig {
	sc := source.DefaultSourceSTANConfig
	sc.Subject = c.Subject
	sc.QueueGroup = c.QueueGroup
	sc.Durable = c.Durable
	sc.DeadLetterSubject = c.DeadLetterSubject
	sc.MaxInflight = c.MaxInflight
	sc.BufSize = c.MaxInflight
	sc.MaxAttempts = q.MaxAttempts
	if q.RedeliveryDelay >= time.Second {
		sc.RedeliveryDelay = q.RedeliveryDelay
	}
	return sc
}

func newSQSClient(awsCfg aws.Config) *sqs.Client {
	return sqs.NewFromConfig(awsCfg)
}

func seconds(d time.Duration) int32 {
	return int32(d / time.Second)
}
