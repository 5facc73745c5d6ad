// Package storage archives exports to S3-compatible object storage
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// DefaultPrefix is used when ArchiveConfig.Prefix is empty
const DefaultPrefix = "userinfo-exports/"

// ArchiveConfig contains configuration for an S3-compatible bucket such as
// Digital Ocean Spaces or MinIO
type ArchiveConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
	// PathStyle addresses the bucket as a path segment, which MinIO and
	// local endpoints need
	PathStyle bool
}

// Enabled reports whether a bucket is configured
func (c ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

// Archiver uploads export payloads to a bucket
type Archiver struct {
	client *s3.S3
	bucket string
	prefix string
	now    func() time.Time
}

// NewArchiver creates a new archiver
func NewArchiver(config ArchiveConfig) (*Archiver, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if !strings.HasSuffix(config.Prefix, "/") {
		config.Prefix += "/"
	}

	awsConfig := &aws.Config{
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(config.PathStyle),
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint) // e.g., "nyc3.digitaloceanspaces.com"
	}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Archiver{
		client: s3.New(sess),
		bucket: config.Bucket,
		prefix: config.Prefix,
		now:    time.Now,
	}, nil
}

// ObjectKey builds the date-partitioned key for an export
func (a *Archiver) ObjectKey(exportType, format string) string {
	ts := a.now().UTC()
	name := fmt.Sprintf("%s-%s.%s", exportType, ts.Format("150405"), format)
	return a.prefix + path.Join(ts.Format("2006-01-02"), name)
}

// UploadExport stores an export body and returns its object key
func (a *Archiver) UploadExport(ctx context.Context, exportType, format string, data []byte) (string, error) {
	key := a.ObjectKey(exportType, format)

	_, err := a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
		Metadata: map[string]*string{
			"export-type":  aws.String(exportType),
			"archive-time": aws.String(a.now().UTC().Format(time.RFC3339)),
		},
		ContentType: aws.String(contentType(format)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}

	return key, nil
}

// GetExport retrieves an archived export
func (a *Archiver) GetExport(ctx context.Context, key string) ([]byte, error) {
	result, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get export: %w", err)
	}
	defer result.Body.Close()

	return io.ReadAll(result.Body)
}

// DeleteExport removes an archived export
func (a *Archiver) DeleteExport(ctx context.Context, key string) error {
	_, err := a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete export: %w", err)
	}

	return nil
}

func contentType(format string) string {
	switch format {
	case "csv":
		return "text/csv"
	case "json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
