// Package storage archives exported proposal PDFs in S3-compatible object
// storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotConfigured is returned when the endpoint or bucket is missing.
var ErrNotConfigured = errors.New("object storage not configured")

// Config describes the MinIO connection.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region skips the bucket location lookup when set.
	Region string
}

// Archive stores PDFs under proposals/<id>/<unix>.pdf.
type Archive struct {
	client *minio.Client
	bucket string
}

// ObjectKey returns the key of one PDF revision.
func ObjectKey(proposalID string, updatedAt time.Time) string {
	return "proposals/" + proposalID + "/" + strconv.FormatInt(updatedAt.Unix(), 10) + ".pdf"
}

// NewArchive connects to MinIO and creates the bucket when missing.
func NewArchive(ctx context.Context, cfg Config) (*Archive, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &Archive{client: client, bucket: cfg.Bucket}, nil
}

// PutPDF uploads data and returns its object key.
func (a *Archive) PutPDF(ctx context.Context, proposalID string, updatedAt time.Time, data []byte) (string, error) {
	key := ObjectKey(proposalID, updatedAt)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

// PresignedURL returns a time-limited download link for key.
func (a *Archive) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	params := url.Values{}
	params.Set("response-content-disposition", "attachment")
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (a *Archive) Bucket() string {
	return a.bucket
}
