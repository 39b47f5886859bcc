package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var _ ImageStore = (*S3)(nil)

// s3API is the subset of *s3.Client used here; tests substitute a fake.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Config struct {
	Bucket    string
	Region    string // falls back to the SDK's resolution (AWS_REGION, profile)
	Prefix    string // e.g. "media/"
	PublicURL string // e.g. "https://cdn.example.com"; defaults to the bucket URL
}

// S3 stores images in a bucket. Credentials come from the default AWS chain
// (environment, shared config, instance role).
type S3 struct {
	client    s3API
	bucket    string
	prefix    string
	publicURL string
}

// NewS3 loads the default AWS configuration and builds the client.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: loading AWS config: %w", err)
	}

	return newS3(s3.NewFromConfig(awsCfg), cfg, awsCfg.Region), nil
}

func newS3(client s3API, cfg S3Config, region string) *S3 {
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		if region == "" {
			region = "us-east-1"
		}
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &S3{client: client, bucket: cfg.Bucket, prefix: prefix, publicURL: publicURL}
}

func (s *S3) objectKey(key string) string {
	return s.prefix + key
}

func (s *S3) Save(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("storage: uploading s3://%s/%s: %w", s.bucket, s.objectKey(key), err)
	}
	return nil
}

// Delete removes the object. S3 reports success for missing keys.
func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("storage: deleting s3://%s/%s: %w", s.bucket, s.objectKey(key), err)
	}
	return nil
}

func (s *S3) URL(key string) string {
	return s.publicURL + "/" + s.objectKey(key)
}
