// Package s3 stores chunks as objects in an S3-compatible bucket.
// Each chunk is one object keyed {prefix}/{blob id}/{seq:08d}.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/storage"
)

// maxDeleteBatch is the DeleteObjects per-request key limit.
const maxDeleteBatch = 1000

// Config contains S3 backend settings.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// API is the subset of the S3 client used by the backend.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Backend implements storage.ChunkBackend on S3.
type Backend struct {
	client API
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewClient builds an S3 client from configuration.
// Static credentials are used when both keys are set; otherwise the default
// AWS credential chain applies.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// NewBackend creates a Backend over an existing client.
func NewBackend(client API, cfg Config, logger zerolog.Logger) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 backend: bucket is required")
	}
	return &Backend{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger.With().Str("component", "s3-backend").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

func (b *Backend) blobPrefix(blobID uuid.UUID) string {
	if b.prefix == "" {
		return blobID.String() + "/"
	}
	return b.prefix + "/" + blobID.String() + "/"
}

// ChunkKey returns the object key of chunk seq.
func (b *Backend) ChunkKey(blobID uuid.UUID, seq int) string {
	return fmt.Sprintf("%s%08d", b.blobPrefix(blobID), seq)
}

// PutChunk implements storage.ChunkBackend.
func (b *Backend) PutChunk(ctx context.Context, chunk *domain.Chunk) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.ChunkKey(chunk.BlobID, chunk.Seq)),
		Body:          bytes.NewReader(chunk.Data),
		ContentLength: aws.Int64(int64(len(chunk.Data))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("failed to put chunk object: %w", err)
	}
	return nil
}

// GetChunk implements storage.ChunkBackend.
func (b *Backend) GetChunk(ctx context.Context, blobID uuid.UUID, seq int) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.ChunkKey(blobID, seq)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, fmt.Errorf("failed to get chunk object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk object: %w", err)
	}
	return data, nil
}

// DeleteChunks implements storage.ChunkBackend.
func (b *Backend) DeleteChunks(ctx context.Context, blobID uuid.UUID) error {
	prefix := b.blobPrefix(blobID)
	var token *string

	for {
		list, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
			MaxKeys:           aws.Int32(maxDeleteBatch),
		})
		if err != nil {
			return fmt.Errorf("failed to list chunk objects: %w", err)
		}

		if len(list.Contents) > 0 {
			ids := make([]types.ObjectIdentifier, 0, len(list.Contents))
			for _, obj := range list.Contents {
				ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
			}

			out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(b.bucket),
				Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
			})
			if err != nil {
				return fmt.Errorf("failed to delete chunk objects: %w", err)
			}
			if len(out.Errors) > 0 {
				first := out.Errors[0]
				return fmt.Errorf("failed to delete %d chunk objects: %s: %s",
					len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
			}
		}

		if !aws.ToBool(list.IsTruncated) {
			return nil
		}
		token = list.NextContinuationToken
	}
}

// HealthCheck verifies the bucket is reachable.
func (b *Backend) HealthCheck(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s not reachable: %w", b.bucket, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}

var (
	_ storage.ChunkBackend  = (*Backend)(nil)
	_ storage.HealthChecker = (*Backend)(nil)
)
