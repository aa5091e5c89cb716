package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pitabwire/quill/model"
)

// MinioStore is a MinIO/S3-backed Store for document artifacts.
type MinioStore struct {
	client *minio.Client
	bucket string
	region string
}

// MinioOptions holds connection settings for a MinIO store.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// NewMinioStore creates a MinIO client and verifies the bucket exists,
// creating it if necessary.
func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: init minio: %w", err)
	}

	s := &MinioStore{client: client, bucket: opts.Bucket, region: opts.Region}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("blobstore: check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("blobstore: make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Store uploads a blob under a fresh object key and returns its reference.
func (s *MinioStore) Store(ctx context.Context, blob []byte, contentType string) (model.FileRef, error) {
	key := uuid.New().String()
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(blob), int64(len(blob)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("blobstore: put object %s: %w", key, err)
	}
	return model.FileRef("s3://" + s.bucket + "/" + key), nil
}

// Fetch downloads the blob for a file reference.
func (s *MinioStore) Fetch(ctx context.Context, ref model.FileRef) ([]byte, error) {
	key, err := s.objectKey(ref)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("blobstore: get object %s: %w", key, err)
	}
	defer obj.Close()

	blob, err := io.ReadAll(obj)
	if err != nil {
		if errResp := minio.ToErrorResponse(err); errResp.Code == "NoSuchKey" {
			return nil, model.NewNotFoundError(fmt.Sprintf("blob %q not found", ref))
		}
		return nil, fmt.Errorf("blobstore: read object %s: %w", key, err)
	}
	return blob, nil
}

// HealthCheck verifies the bucket is reachable.
func (s *MinioStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// objectKey extracts the object key from an "s3://bucket/key" reference.
func (s *MinioStore) objectKey(ref model.FileRef) (string, error) {
	rest, ok := strings.CutPrefix(string(ref), "s3://")
	if !ok {
		return "", model.NewBadRequestError(fmt.Sprintf("malformed file reference %q", ref))
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket != s.bucket || key == "" {
		return "", model.NewBadRequestError(fmt.Sprintf("file reference %q does not belong to bucket %s", ref, s.bucket))
	}
	return key, nil
}
