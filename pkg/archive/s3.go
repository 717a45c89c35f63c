package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Bucket reads archive objects from an S3-compatible object store.
type S3Bucket struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewS3Bucket creates an S3Bucket from cfg. Static credentials are used when
// an access key is configured, otherwise the default AWS credential chain.
func NewS3Bucket(ctx context.Context, cfg *Config, logger *slog.Logger) (*S3Bucket, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket name is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(cfg.MaxAttempts))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load object storage config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3BucketFromClient(client, cfg.Bucket, logger), nil
}

// NewS3BucketFromClient wraps an existing client.
func NewS3BucketFromClient(client *s3.Client, bucket string, logger *slog.Logger) *S3Bucket {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Bucket{client: client, bucket: bucket, logger: logger}
}

func (b *S3Bucket) Name() string { return b.bucket }

func (b *S3Bucket) ListNames(ctx context.Context) []string {
	var names []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			b.logger.Warn("failed to list archive objects", "bucket", b.bucket, "error", err)
			return nil
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				names = append(names, *obj.Key)
			}
		}
	}
	return names
}

func (b *S3Bucket) Download(ctx context.Context, name string) ([]byte, bool) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			b.logger.Info("archive object not found", "bucket", b.bucket, "artifact", name)
		} else {
			b.logger.Warn("failed to download archive object", "bucket", b.bucket, "artifact", name, "error", err)
		}
		return nil, false
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		b.logger.Warn("failed to read archive object", "bucket", b.bucket, "artifact", name, "error", err)
		return nil, false
	}
	return data, true
}
