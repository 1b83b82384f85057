package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/posturepulse/dashboard/internal/config"
)

type S3Store struct {
	bucket string
	client *s3.Client
}

// Open returns an S3Store, or a NoopStore when no bucket is configured
func Open(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	if cfg.Bucket == "" {
		return NewNoopStore(), nil
	}
	store, err := NewS3Store(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func NewS3Store(
	ctx context.Context,
	region, endpoint, accessKey, secretKey, bucket string,
) (*S3Store, error) {
	loadOpts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(region),
	}
	if accessKey != "" {
		loadOpts = append(loadOpts,
			awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{bucket: bucket, client: client}, nil
}

func (s *S3Store) StoreJSON(ctx context.Context, objectKey string, payload json.RawMessage) error {
	if !json.Valid(payload) {
		return fmt.Errorf("archive payload is not valid json: %s", objectKey)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(bytes.TrimSpace(payload)),
		ContentType: aws.String("application/json"),
	})
	return err
}

func (s *S3Store) LoadJSON(ctx context.Context, objectKey string) (json.RawMessage, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, objectKey)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if !json.Valid(payload) {
		return nil, fmt.Errorf("archived object is not valid json: %s", objectKey)
	}
	return json.RawMessage(bytes.TrimSpace(payload)), nil
}

func (s *S3Store) Close() error {
	return nil
}
