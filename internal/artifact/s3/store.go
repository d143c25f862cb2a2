// Package s3 stores artifacts as objects in an S3-compatible bucket (AWS S3,
// MinIO, LocalStack). One object is written per run.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/couchcryptid/weather-readings-etl/internal/artifact"
	"github.com/couchcryptid/weather-readings-etl/internal/domain"
)

const scheme = "s3"

// Config holds construction parameters. Credentials come from the default
// AWS chain (AWS_ACCESS_KEY_ID, shared config, instance role).
type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // optional; set for MinIO or LocalStack
	PathStyle bool
}

// Store implements artifact.Store on S3.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New creates an S3 artifact store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *s3.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

// Write uploads records as <prefix><runID>.json and returns its s3:// URL.
func (s *Store) Write(ctx context.Context, runID string, records []domain.FlatRecord) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("write artifact: run id required")
	}
	var buf bytes.Buffer
	if err := artifact.Encode(&buf, records); err != nil {
		return "", err
	}
	key := s.prefix + runID + ".json"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put artifact s3://%s/%s: %w", s.bucket, key, err)
	}
	return Location(s.bucket, key), nil
}

// Read downloads and decodes the object at an s3:// location.
func (s *Store) Read(ctx context.Context, location string) ([]domain.FlatRecord, error) {
	if strings.TrimSpace(location) == "" {
		return nil, domain.ErrInvalidArtifact
	}
	bucket, key, err := ParseLocation(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", domain.ErrSourceUnavailable, location, err)
	}
	defer out.Body.Close()

	records, err := artifact.Decode(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrSourceUnavailable, location, err)
	}
	return records, nil
}

// Remove deletes the object at location. S3 treats a missing key as success.
func (s *Store) Remove(ctx context.Context, location string) error {
	bucket, key, err := ParseLocation(location)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("delete %s: %w", location, err)
	}
	return nil
}

// Location formats an s3:// URL.
func Location(bucket, key string) string {
	return scheme + "://" + bucket + "/" + key
}

// ParseLocation splits an s3://bucket/key URL.
func ParseLocation(location string) (bucket, key string, err error) {
	u, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", "", fmt.Errorf("parse artifact location %q: %w", location, err)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != scheme || u.Host == "" || key == "" {
		return "", "", fmt.Errorf("artifact location %q is not an s3://bucket/key URL", location)
	}
	return u.Host, key, nil
}
