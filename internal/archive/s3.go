// Package archive uploads staged CSV files to S3.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of the S3 client used for uploads
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes files under <prefix>/<run timestamp>/ in a bucket
type S3Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Archiver builds an archiver from the default AWS credential chain
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3ArchiverWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewS3ArchiverWithClient builds an archiver around an existing client
func NewS3ArchiverWithClient(client PutObjectAPI, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

// Upload puts every file into the bucket and returns the object keys written.
// Upload stops at the first failure.
func (a *S3Archiver) Upload(ctx context.Context, files ...string) ([]string, error) {
	runDir := path.Join(a.prefix, a.now().UTC().Format("20060102T150405Z"))

	keys := make([]string, 0, len(files))
	for _, file := range files {
		key := path.Join(runDir, filepath.Base(file))
		if err := a.put(ctx, file, key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
		slog.Info("Archived staging file", "bucket", a.bucket, "key", key)
	}
	return keys, nil
}

func (a *S3Archiver) put(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer func() { _ = f.Close() }()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", file, a.bucket, key, err)
	}
	return nil
}
