// Package storage checks payment proof files kept in an S3-compatible
// bucket. The service never reads file contents.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// fileIDPattern keeps file IDs to a single path segment
var fileIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// S3ProofStore keys proofs as <prefix>/<tenant_id>/<file_id>
type S3ProofStore struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// Option configures an S3ProofStore
type Option func(*S3ProofStore)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *S3ProofStore) { s.logger = logger }
}

// NewS3ProofStore creates a proof store. Static credentials are used when
// configured, otherwise the default AWS credential chain.
func NewS3ProofStore(ctx context.Context, cfg config.StorageConfig, opts ...Option) (*S3ProofStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	store := &S3ProofStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.KeyPrefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Key returns the object key of a tenant's proof
func (s *S3ProofStore) Key(tenantID uuid.UUID, fileID string) string {
	return path.Join(s.prefix, tenantID.String(), fileID)
}

// VerifyProof checks that the file exists under the tenant's prefix, so a
// tenant cannot reference another tenant's upload
func (s *S3ProofStore) VerifyProof(ctx context.Context, tenantID uuid.UUID, fileID string) error {
	if err := validateFileID(fileID); err != nil {
		return err
	}
	key := s.Key(tenantID, fileID)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return shared.NewValidationError("PROOF_NOT_FOUND", "Payment proof file was not found").
			WithDetail("file_id", fileID)
	}
	s.logger.Error("Proof lookup failed", zap.String("key", key), zap.Error(err))
	return fmt.Errorf("failed to check payment proof: %w", err)
}

// Ping checks that the bucket is reachable
func (s *S3ProofStore) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func validateFileID(fileID string) error {
	if !fileIDPattern.MatchString(fileID) || strings.Contains(fileID, "..") {
		return shared.NewValidationError("INVALID_FILE_ID", "Payment proof file ID is malformed").
			WithDetail("file_id", fileID)
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	// some S3-compatible servers only surface the code in the message
	msg := err.Error()
	return strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchKey")
}
