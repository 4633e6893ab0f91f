package provision

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	headErr   error
	createErr error

	heads   int
	created []*s3.CreateBucketInput
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.heads++
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &s3.CreateBucketOutput{}, nil
}

var _ s3API = (*fakeS3)(nil)

type fakeSQS struct {
	err  error
	last *sqs.SetQueueAttributesInput
}

func (f *fakeSQS) SetQueueAttributes(ctx context.Context, in *sqs.SetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error) {
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SetQueueAttributesOutput{}, nil
}

var _ sqsAPI = (*fakeSQS)(nil)

func testConfig() Config {
	return Config{
		Bucket:             "orders",
		Region:             "eu-west-1",
		QueueURL:           "https://sqs.eu-west-1.amazonaws.com/123/orders",
		DeadLetterQueueARN: "arn:aws:sqs:eu-west-1:123:orders-dlq",
		MaxReceiveCount:    3,
		VisibilityTimeout:  30 * time.Second,
	}
}

func testEntry() *log.Entry {
	logger, _ := test.NewNullLogger()
	return log.NewEntry(logger)
}

func TestApply_CreatesMissingBucketAndRedrivePolicy(t *testing.T) {
	s3c := &fakeS3{headErr: &s3types.NotFound{}}
	sqsc := &fakeSQS{}
	p, err := New(testConfig(), s3c, sqsc, testEntry())
	require.NoError(t, err)

	require.NoError(t, p.Apply(context.Background()))

	require.Len(t, s3c.created, 1)
	assert.Equal(t, "orders", aws.ToString(s3c.created[0].Bucket))
	assert.Equal(t, s3types.BucketLocationConstraint("eu-west-1"), s3c.created[0].CreateBucketConfiguration.LocationConstraint)

	require.NotNil(t, sqsc.last)
	assert.Equal(t, "30", sqsc.last.Attributes["VisibilityTimeout"])

	var policy map[string]string
	require.NoError(t, json.Unmarshal([]byte(sqsc.last.Attributes["RedrivePolicy"]), &policy))
	assert.Equal(t, map[string]string{
		"deadLetterTargetArn": "arn:aws:sqs:eu-west-1:123:orders-dlq",
		"maxReceiveCount":     "3",
	}, policy)
}

func TestApply_ExistingBucketIsLeftAlone(t *testing.T) {
	s3c := &fakeS3{}
	p, err := New(testConfig(), s3c, &fakeSQS{}, testEntry())
	require.NoError(t, err)

	require.NoError(t, p.Apply(context.Background()))
	assert.Equal(t, 1, s3c.heads)
	assert.Empty(t, s3c.created)
}

func TestApply_UsEast1HasNoLocationConstraint(t *testing.T) {
	cfg := testConfig()
	cfg.Region = "us-east-1"
	s3c := &fakeS3{headErr: &s3types.NoSuchBucket{}}
	p, err := New(cfg, s3c, &fakeSQS{}, testEntry())
	require.NoError(t, err)

	require.NoError(t, p.Apply(context.Background()))
	require.Len(t, s3c.created, 1)
	assert.Nil(t, s3c.created[0].CreateBucketConfiguration)
}

func TestApply_BucketOnlyWithoutQueue(t *testing.T) {
	cfg := Config{Bucket: "orders"}
	p, err := New(cfg, &fakeS3{}, nil, testEntry())
	require.NoError(t, err)

	assert.NoError(t, p.Apply(context.Background()))
}

func TestApply_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")

	p, err := New(testConfig(), &fakeS3{headErr: boom}, &fakeSQS{}, testEntry())
	require.NoError(t, err)
	assert.ErrorIs(t, p.Apply(context.Background()), boom)

	p, err = New(testConfig(), &fakeS3{headErr: &s3types.NotFound{}, createErr: boom}, &fakeSQS{}, testEntry())
	require.NoError(t, err)
	assert.ErrorIs(t, p.Apply(context.Background()), boom)

	p, err = New(testConfig(), &fakeS3{}, &fakeSQS{err: boom}, testEntry())
	require.NoError(t, err)
	assert.ErrorIs(t, p.Apply(context.Background()), boom)
}

func TestApply_BucketAlreadyOwnedIsSuccess(t *testing.T) {
	p, err := New(testConfig(), &fakeS3{headErr: &s3types.NotFound{}, createErr: &s3types.BucketAlreadyOwnedByYou{}}, &fakeSQS{}, testEntry())
	require.NoError(t, err)
	assert.NoError(t, p.Apply(context.Background()))
}

func TestNew_ValidatesConfig(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"no bucket":          func(c *Config) { c.Bucket = "" },
		"no dead-letter arn": func(c *Config) { c.DeadLetterQueueARN = "" },
		"receive count":      func(c *Config) { c.MaxReceiveCount = 0 },
		"visibility":         func(c *Config) { c.VisibilityTimeout = 13 * time.Hour },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			_, err := New(cfg, &fakeS3{}, &fakeSQS{}, testEntry())
			assert.Error(t, err)
		})
	}

	_, err := New(testConfig(), nil, &fakeSQS{}, testEntry())
	assert.Error(t, err)
	_, err = New(testConfig(), &fakeS3{}, nil, testEntry())
	assert.Error(t, err)
}
