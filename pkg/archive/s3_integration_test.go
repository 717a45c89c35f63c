//go:build integration

package archive

import (
	"bytes"
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
)

// TestS3BucketAgainstLocalStack exercises the bucket against a real S3 API.
// Requires Docker.
func TestS3BucketAgainstLocalStack(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := localstack.Run(ctx, "localstack/localstack:3.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "4566/tcp", "http")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Bucket = "arcade-oem"
	cfg.Endpoint = endpoint
	cfg.AccessKeyID = "test"
	cfg.SecretAccessKey = "test"

	b, err := NewS3Bucket(ctx, cfg, nil)
	require.NoError(t, err)

	_, err = b.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)})
	require.NoError(t, err)
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String("20201124_block_25.tar"),
		Body:   bytes.NewReader([]byte("archive")),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"20201124_block_25.tar"}, b.ListNames(ctx))

	data, ok := b.Download(ctx, "20201124_block_25.tar")
	require.True(t, ok)
	assert.Equal(t, "archive", string(data))

	_, ok = b.Download(ctx, "20201121_block_25.tar")
	assert.False(t, ok)
}
