// Package objectstore implements the object store contract on S3.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/cabinet-cloud/cabinet/internal/domain"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/rs/zerolog/log"
)

// deleteBatchSize is the DeleteObjects API limit per request.
const deleteBatchSize = 1000

type S3Store struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

type S3StoreDependencies struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint overrides the S3 endpoint for S3-compatible backends
	// (MinIO and friends). Empty means AWS.
	Endpoint string
}

func NewS3Store(deps S3StoreDependencies) (*S3Store, error) {
	cfg := &aws.Config{
		Region:      aws.String(deps.Region),
		Credentials: credentials.NewStaticCredentials(deps.AccessKeyID, deps.SecretAccessKey, ""),
	}

	if deps.Endpoint != "" {
		cfg.Endpoint = aws.String(deps.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Store{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   deps.Bucket,
	}, nil
}

func (s *S3Store) PutObject(ctx context.Context, params domain.PutObjectParams) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(params.Key),
		Body:        params.Body,
		ContentType: aws.String(params.ContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %q: %w", params.Key, err)
	}

	return nil
}

func (s *S3Store) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %q: %w", key, err)
	}

	return out.Body, nil
}

func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageDeleteFailed, err)
	}

	return nil
}

func (s *S3Store) DeleteObjects(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		chunk := keys[start:end]
		objects := make([]*s3.ObjectIdentifier, len(chunk))
		for i, key := range chunk {
			objects[i] = &s3.ObjectIdentifier{Key: aws.String(key)}
		}

		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorageDeleteFailed, err)
		}

		if len(out.Errors) > 0 {
			first := out.Errors[0]
			log.Warn().
				Int("failed_count", len(out.Errors)).
				Str("first_key", aws.StringValue(first.Key)).
				Str("first_message", aws.StringValue(first.Message)).
				Msg("Batch delete reported per-key failures")
			return fmt.Errorf("%w: %d of %d keys failed", domain.ErrStorageDeleteFailed, len(out.Errors), len(chunk))
		}
	}

	return nil
}

func (s *S3Store) PresignGetURL(ctx context.Context, params domain.PresignGetParams) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(params.Key),
	}

	if params.Filename != "" {
		disposition := fmt.Sprintf("attachment; filename=%q", url.PathEscape(params.Filename))
		input.ResponseContentDisposition = aws.String(disposition)
	}
	if params.ContentType != "" {
		input.ResponseContentType = aws.String(params.ContentType)
	}

	req, _ := s.client.GetObjectRequest(input)
	req.SetContext(ctx)

	signedURL, err := req.Presign(params.TTL)
	if err != nil {
		return "", fmt.Errorf("failed to presign url for %q: %w", params.Key, err)
	}

	return signedURL, nil
}
