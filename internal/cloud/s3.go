package cloud

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gyeh/npi-enrich/internal/domain"
)

// putObjectAPI is the subset of the S3 client used for uploads.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Client uploads finished output artifacts.
type S3Client struct {
	client putObjectAPI
	bucket string
	prefix string
}

// NewS3Client creates an S3 client for the given bucket using the default
// AWS credential chain.
func NewS3Client(ctx context.Context, bucket, region, prefix string) (*S3Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &S3Client{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// KeyFor returns the object key for a run's output file:
// <prefix>/<runID>/<basename>.
func (c *S3Client) KeyFor(runID, localPath string) string {
	parts := []string{}
	if p := strings.Trim(c.prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, runID, filepath.Base(localPath))
	return path.Join(parts...)
}

// UploadFile uploads the file at localPath and returns its s3:// URI.
func (c *S3Client) UploadFile(ctx context.Context, runID, localPath string) (string, error) {
	key := c.KeyFor(runID, localPath)
	uploadErr := func(err error) error {
		return &domain.OpError{Op: "s3.upload", Kind: domain.KindUpload, Path: localPath, Err: err}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", uploadErr(err)
	}
	defer f.Close()

	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(localPath)),
	})
	if err != nil {
		return "", uploadErr(fmt.Errorf("putting s3://%s/%s: %w", c.bucket, key, err))
	}
	return fmt.Sprintf("s3://%s/%s", c.bucket, key), nil
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".gz":
		return "application/gzip"
	default:
		return "text/csv"
	}
}
