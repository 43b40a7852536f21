// Package storage archives raw marketplace responses in object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	infraconfig "github.com/erp/marketplace-ingest/internal/infrastructure/config"
)

// ErrEmptyPayload is returned when there is nothing to archive
var ErrEmptyPayload = errors.New("storage: empty payload")

// objectAPI is the subset of the S3 client used by the archiver
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Archiver implements integration.RawPayloadArchiver on any S3-compatible store.
// Objects are keyed prefix/shop/yyyy/mm/dd/run/kind-key.ext.
type S3Archiver struct {
	client objectAPI
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

var _ integration.RawPayloadArchiver = (*S3Archiver)(nil)

// S3ArchiverOption is a functional option for configuring S3Archiver
type S3ArchiverOption func(*S3Archiver)

// WithLogger sets a custom logger for S3Archiver
func WithLogger(logger *zap.Logger) S3ArchiverOption {
	return func(a *S3Archiver) {
		a.logger = logger
	}
}

// WithClock overrides time.Now for object keys
func WithClock(now func() time.Time) S3ArchiverOption {
	return func(a *S3Archiver) {
		a.now = now
	}
}

// NewS3Archiver creates an archiver from configuration.
// Without static keys the default AWS credential chain is used.
func NewS3Archiver(ctx context.Context, cfg *infraconfig.StorageConfig, opts ...S3ArchiverOption) (*S3Archiver, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return nil, errors.New("storage access key id and secret access key must be set together")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return newS3Archiver(client, cfg.Bucket, cfg.Prefix, opts...), nil
}

func newS3Archiver(client objectAPI, bucket, prefix string, opts ...S3ArchiverOption) *S3Archiver {
	a := &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup.
func (a *S3Archiver) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	a.logger.Info("Creating archive bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Archive uploads the raw body unchanged
func (a *S3Archiver) Archive(ctx context.Context, payload integration.RawPayload) error {
	if len(payload.Body) == 0 {
		return ErrEmptyPayload
	}
	key := ObjectKey(a.prefix, payload, a.now())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload.Body),
		ContentType: aws.String(contentTypeOf(payload)),
		Metadata: map[string]string{
			"shop-code": payload.ShopCode,
			"run-id":    payload.RunID.String(),
			"kind":      payload.Kind,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}
	a.logger.Debug("Archived raw payload", zap.String("key", key), zap.Int("bytes", len(payload.Body)))
	return nil
}

// Bucket returns the bucket name
func (a *S3Archiver) Bucket() string {
	return a.bucket
}

// ObjectKey builds the object key of payload archived at t
func ObjectKey(prefix string, payload integration.RawPayload, t time.Time) string {
	run := "adhoc"
	if payload.RunID != uuid.Nil {
		run = payload.RunID.String()
	}
	name := sanitizeKeyPart(payload.Kind)
	if payload.Key != "" {
		name += "-" + sanitizeKeyPart(payload.Key)
	}
	name += extensionOf(contentTypeOf(payload))

	t = t.UTC()
	return path.Join(prefix, sanitizeKeyPart(payload.ShopCode), t.Format("2006/01/02"), run, name)
}

func sanitizeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

func contentTypeOf(p integration.RawPayload) string {
	if p.ContentType != "" {
		return p.ContentType
	}
	body := bytes.TrimSpace(p.Body)
	if len(body) > 0 && body[0] == '<' {
		return "application/xml"
	}
	return "application/json"
}

func extensionOf(contentType string) string {
	switch {
	case strings.Contains(contentType, "xml"):
		return ".xml"
	case strings.Contains(contentType, "json"):
		return ".json"
	default:
		return ".bin"
	}
}

// ---------------------------------------------------------------------------
// In-memory
// ---------------------------------------------------------------------------

// MemoryArchiver keeps payloads in memory, for tests and dry runs
type MemoryArchiver struct {
	mu       sync.Mutex
	payloads []integration.RawPayload
}

var _ integration.RawPayloadArchiver = (*MemoryArchiver)(nil)

// NewMemoryArchiver creates an empty MemoryArchiver
func NewMemoryArchiver() *MemoryArchiver {
	return &MemoryArchiver{}
}

// Archive stores a copy of payload
func (m *MemoryArchiver) Archive(_ context.Context, payload integration.RawPayload) error {
	if len(payload.Body) == 0 {
		return ErrEmptyPayload
	}
	payload.Body = bytes.Clone(payload.Body)
	m.mu.Lock()
	m.payloads = append(m.payloads, payload)
	m.mu.Unlock()
	return nil
}

// Payloads returns the archived payloads in order
func (m *MemoryArchiver) Payloads() []integration.RawPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]integration.RawPayload(nil), m.payloads...)
}
