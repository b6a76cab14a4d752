package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config contains minimal configuration for creating an S3 client.
// Values are optional and fall back to the standard AWS config chain.
type S3Config struct {
	Region       string
	Profile      string
	UsePathStyle bool
}

// S3 wraps the AWS SDK v2 S3 client behind the narrow surface the pipeline
// needs: upload artifacts, check existence, and presign GETs so stored
// object keys resolve to retrievable URLs.
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
}

// NewS3 creates an S3 wrapper using the default AWS configuration chain
// with optional overrides.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3{client: client, presign: s3.NewPresignClient(client)}, nil
}

// Put uploads an object to bucket/key
func (s *S3) Put(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	_, err := s.client.PutObject(ctx, in)
	return err
}

// Get fetches an object body. Caller must Close it.
func (s *S3) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// Exists returns true if the object exists; false on 404/NotFound
func (s *S3) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return false, nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return false, nil
	}

	return false, err
}

// PresignGet returns a time-limited GET URL for an object
func (s *S3) PresignGet(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// Bucket binds an S3 client to one bucket and key prefix, implementing the
// artifact Uploader contract used by the stage executors.
type Bucket struct {
	s3     *S3
	bucket string
	prefix string
}

// NewBucket creates a Bucket. A non-empty prefix is normalized to end in "/".
func NewBucket(s3c *S3, bucket, prefix string) *Bucket {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Bucket{s3: s3c, bucket: bucket, prefix: prefix}
}

// Upload stores the artifact and returns a presigned URL that downstream
// stages and external viewers can fetch directly.
func (b *Bucket) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	fullKey := b.prefix + strings.TrimLeft(key, "/")
	if err := b.s3.Put(ctx, b.bucket, fullKey, body, contentType); err != nil {
		return "", fmt.Errorf("s3 put %s: %w", fullKey, err)
	}
	return b.s3.PresignGet(ctx, b.bucket, fullKey, 24*time.Hour)
}
