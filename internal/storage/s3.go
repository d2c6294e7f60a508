package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/rquest-bridge/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const archiveContentType = "application/zip"

type S3Params struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Client creates a path-style client suitable for MinIO.
func NewS3Client(ctx context.Context, params S3Params) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(params.Region),
		config.WithBaseEndpoint(params.Endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return client, nil
}

// ArchiveKey is the object key a task's crate is stored under.
func ArchiveKey(taskID string) string {
	return taskID + ".zip"
}

// ArchiveStore uploads crate archives into one bucket.
type ArchiveStore struct {
	client *s3.Client
	bucket string
}

func NewArchiveStore(client *s3.Client, bucket string) *ArchiveStore {
	return &ArchiveStore{client: client, bucket: bucket}
}

func (s *ArchiveStore) Bucket() string {
	return s.bucket
}

// Put uploads the archive for taskID and returns its key. Uploading the same
// task again overwrites the previous object.
func (s *ArchiveStore) Put(ctx context.Context, taskID string, data []byte) (string, error) {
	key := ArchiveKey(taskID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(archiveContentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}

	return key, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *ArchiveStore) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var apiErr smithy.APIError
	if !errors.As(err, &notFound) && !(errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound") {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}

	logger.Info("[Storage] Creating bucket", "bucket", s.bucket)
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}
