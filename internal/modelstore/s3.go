package modelstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"snapforecast/internal/logging"
)

// S3Config holds configuration for the artifact bucket
type S3Config struct {
	Bucket    string // S3 bucket name
	Prefix    string // Key prefix for all operations
	Region    string // AWS region (default: us-east-1)
	Endpoint  string // Custom endpoint for S3-compatible storage (MinIO, etc.)
	AccessKey string // optional, falls back to the default credential chain
	SecretKey string
}

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ObjectStore keeps artifacts in an S3-compatible bucket. A single PutObject is atomic for readers.
type S3ObjectStore struct {
	client s3API
	config S3Config
	logger logging.Logger
}

// NewS3ObjectStore builds a client from cfg.
func NewS3ObjectStore(ctx context.Context, cfg S3Config, logger logging.Logger) (*S3ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("modelstore: S3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	logger = logging.OrDiscard(logger)

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("modelstore: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	logger.WithFields(logging.Fields{
		"bucket":   cfg.Bucket,
		"prefix":   cfg.Prefix,
		"region":   cfg.Region,
		"endpoint": cfg.Endpoint,
	}).Info("model artifact bucket configured")

	return newS3ObjectStore(s3.NewFromConfig(awsCfg, s3Opts...), cfg, logger), nil
}

func newS3ObjectStore(client s3API, cfg S3Config, logger logging.Logger) *S3ObjectStore {
	return &S3ObjectStore{client: client, config: cfg, logger: logging.OrDiscard(logger)}
}

func (s *S3ObjectStore) fullKey(key string) string {
	if s.config.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.config.Prefix, "/") + "/" + strings.TrimPrefix(key, "/")
}

// Put implements ObjectStore.
func (s *S3ObjectStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(s.fullKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("modelstore: put %s: %w", key, err)
	}
	return nil
}

// Get implements ObjectStore.
func (s *S3ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("modelstore: get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("modelstore: read %s: %w", key, err)
	}
	return data, nil
}

// List implements ObjectStore.
func (s *S3ObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(s.fullKey(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("modelstore: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), s.config.Prefix)
			keys = append(keys, strings.TrimPrefix(rel, "/"))
		}
	}
	return keys, nil
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "404")
}
