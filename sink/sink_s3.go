package sink

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Sink writes objects to a single S3 bucket.
//
// PutObject has no precondition headers here, so every write is a full,
// unconditional overwrite of the key.
type Sink struct {
	client s3API

	bucket    string
	bucketPtr *string
	prefix    string
}

func New(client s3API, bucket, prefix string) *Sink {
	if client == nil {
		panic("s3 client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		panic("bucket is required")
	}

	s := &Sink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
	s.bucketPtr = &s.bucket
	return s
}

func (s *Sink) Write(ctx context.Context, req WriteRequest) error {
	if req.Key == "" {
		return ErrEmptyKey
	}

	// The key is used verbatim: session ids may contain slashes or dots and
	// must map to exactly one object name.
	key := req.Key
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}

	cl := int64(len(req.Data))
	ct := req.ContentType
	if ct == "" {
		ct = ContentTypeJSON
	}

	input := s3.PutObjectInput{
		Bucket:        s.bucketPtr,
		Key:           &key,
		Body:          bytes.NewReader(req.Data),
		ContentLength: &cl,
		ContentType:   &ct,
	}

	if _, err := s.client.PutObject(ctx, &input); err != nil {
		return fmt.Errorf("put s3 object bucket=%q key=%q: %w", s.bucket, key, err)
	}
	return nil
}
