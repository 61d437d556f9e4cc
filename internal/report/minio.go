package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"

	"github.com/sells-group/icp-analyzer/internal/model"
)

// MinioStore uploads artifacts to an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// MinioConfig holds connection settings for the artifact bucket.
type MinioConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewMinioStore connects and ensures the bucket exists.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "report: connecting to object store")
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, eris.Wrapf(err, "report: checking bucket %s", cfg.Bucket)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, eris.Wrapf(err, "report: creating bucket %s", cfg.Bucket)
		}
	}

	return &MinioStore{client: cli, bucket: cfg.Bucket}, nil
}

func (s *MinioStore) Put(ctx context.Context, filename, contentType string, data []byte) (*model.ArtifactRef, error) {
	_, err := s.client.PutObject(ctx, s.bucket, filename,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, eris.Wrapf(err, "report: uploading %s", filename)
	}

	return &model.ArtifactRef{
		ID:          uuid.New().String(),
		Filename:    filename,
		ContentType: contentType,
		URL:         fmt.Sprintf("%s/%s/%s", s.client.EndpointURL(), s.bucket, filename),
		Size:        len(data),
		CreatedAt:   time.Now().UTC(),
	}, nil
}
