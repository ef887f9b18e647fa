package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const filenameMetaKey = "Filename"

// MinIOStore keeps blobs in an S3-compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore connects to the endpoint and creates the bucket when missing.
func NewMinIOStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, logger *zap.Logger) (*MinIOStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		logger.Info("bucket created", zap.String("bucket", bucket))
	}

	return &MinIOStore{client: client, bucket: bucket}, nil
}

func (s *MinIOStore) StoreBlob(ctx context.Context, body io.Reader, meta Metadata) (string, error) {
	ref := uuid.NewString()
	size := meta.Size
	if size <= 0 {
		size = -1
	}
	opts := minio.PutObjectOptions{ContentType: meta.ContentType}
	if meta.Filename != "" {
		opts.UserMetadata = map[string]string{filenameMetaKey: meta.Filename}
	}
	if _, err := s.client.PutObject(ctx, s.bucket, ref, body, size, opts); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return ref, nil
}

func (s *MinIOStore) FetchBlob(ctx context.Context, ref string) (io.ReadCloser, Metadata, error) {
	info, err := s.client.StatObject(ctx, s.bucket, ref, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, Metadata{}, ErrNotFound
		}
		return nil, Metadata{}, fmt.Errorf("stat object: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("get object: %w", err)
	}
	return obj, Metadata{
		ContentType: info.ContentType,
		Size:        info.Size,
		Filename:    info.UserMetadata[filenameMetaKey],
	}, nil
}

// DeleteBlob removes the object. Missing objects are not an error.
func (s *MinIOStore) DeleteBlob(ctx context.Context, ref string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{}); err != nil && !isNotFound(err) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}
