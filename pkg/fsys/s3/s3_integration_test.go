//go:build integration

package s3_test

import (
	"context"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/webio/pkg/fsys"
	fsysS3 "github.com/marmos91/webio/pkg/fsys/s3"
)

// setupTestS3 connects to Localstack (LOCALSTACK_ENDPOINT, default
// http://localhost:4566) and creates bucketName. The cleanup function
// deletes every object and the bucket.
func setupTestS3(t *testing.T, bucketName string) (*s3.Client, func()) {
	t.Helper()
	ctx := context.Background()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)})
	require.NoError(t, err)

	cleanup := func() {
		list, _ := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(bucketName)})
		if list != nil {
			for _, obj := range list.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucketName), Key: obj.Key})
			}
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucketName)})
	}
	return client, cleanup
}

// TestBackend_Integration exercises the backend against a real
// S3-compatible service.
//
// Prerequisites:
//   - Localstack running on localhost:4566
//   - Run with: go test -tags=integration ./pkg/fsys/s3/...
//
// To start Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
func TestBackend_Integration(t *testing.T) {
	ctx := context.Background()

	bucketName := "webio-test-bucket"
	client, cleanup := setupTestS3(t, bucketName)
	defer cleanup()

	b, err := fsysS3.New(ctx, fsysS3.Config{Client: client, Bucket: bucketName, KeyPrefix: "www/"})
	require.NoError(t, err)

	t.Run("CreateAndRead", func(t *testing.T) {
		d, err := b.Open("page.html", fsys.ModeWrite|fsys.ModeCreate|fsys.ModeTruncate)
		require.NoError(t, err)
		n, err := b.Write(d, []byte("hello from s3"))
		require.NoError(t, err)
		assert.Equal(t, 13, n)
		require.NoError(t, b.Close(d))

		head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucketName),
			Key:    aws.String("www/page.html"),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(13), aws.ToInt64(head.ContentLength))

		d, err = b.Open("page.html", fsys.ModeRead)
		require.NoError(t, err)
		defer func() { _ = b.Close(d) }()

		require.NoError(t, b.Seek(d, 6, fsys.SeekSet))
		buf := make([]byte, 4)
		n, err = b.Read(d, buf)
		require.NoError(t, err)
		assert.Equal(t, "from", string(buf[:n]))

		require.NoError(t, b.Seek(d, 0, fsys.SeekEnd))
		n, err = b.Read(d, buf)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Append", func(t *testing.T) {
		d, err := b.Open("page.html", fsys.ModeWrite|fsys.ModeAppend)
		require.NoError(t, err)
		_, err = b.Write(d, []byte("!"))
		require.NoError(t, err)
		require.NoError(t, b.Close(d))

		d, err = b.Open("page.html", fsys.ModeRead)
		require.NoError(t, err)
		defer func() { _ = b.Close(d) }()

		buf := make([]byte, 32)
		n, err := b.Read(d, buf)
		require.NoError(t, err)
		assert.Equal(t, "hello from s3!", string(buf[:n]))
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := b.Open("missing.html", fsys.ModeRead)
		assert.ErrorIs(t, err, fsys.ErrNoFile)
	})

	assert.Zero(t, b.OpenCount())
}
