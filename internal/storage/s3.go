package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// ObjectStoreConfig configures the remote S3-compatible backend.
type ObjectStoreConfig struct {
	Endpoint  string // optional custom endpoint, e.g. a MinIO or Ceph RGW URL
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
}

// ObjectStore stores blobs in an S3-compatible object store. Put is a single
// blocking upload of the full buffer; provider errors surface unmodified so
// operators can diagnose quota or credential issues.
type ObjectStore struct {
	client *s3.Client
	bucket string
	prefix string
	logger zerolog.Logger
}

func NewObjectStore(cfg ObjectStoreConfig, logger zerolog.Logger) *ObjectStore {
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return &ObjectStore{
		client: s3.New(opts),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger.With().Str("component", "object-store").Logger(),
	}
}

func (s *ObjectStore) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

func (s *ObjectStore) Put(ctx context.Context, path string, data []byte) error {
	key := s.key(path)
	s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("uploading object")
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) Get(ctx context.Context, path string) ([]byte, error) {
	key := s.key(path)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *ObjectStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *ObjectStore) Size(ctx context.Context, path string) (int64, error) {
	key := s.key(path)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (s *ObjectStore) Delete(ctx context.Context, path string) error {
	key := s.key(path)
	// S3 DeleteObject on an absent key succeeds, matching the cleaner's
	// "already gone is fine" expectation.
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
