package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/webio/pkg/fault"
	"github.com/marmos91/webio/pkg/fsys"
)

// fakeClient keeps objects in memory and records ranged reads.
type fakeClient struct {
	bucket  string
	objects map[string][]byte
	ranges  []string
}

func newFakeClient(bucket string) *fakeClient {
	return &fakeClient{bucket: bucket, objects: make(map[string][]byte)}
}

func (c *fakeClient) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if aws.ToString(in.Bucket) != c.bucket {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (c *fakeClient) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (c *fakeClient) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	if in.Range != nil {
		c.ranges = append(c.ranges, *in.Range)
		var start, end int
		if _, err := fmt.Sscanf(*in.Range, "bytes=%d-%d", &start, &end); err != nil {
			return nil, err
		}
		if start >= len(data) {
			return nil, errors.New("api error InvalidRange")
		}
		data = data[start:min(end+1, len(data))]
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (c *fakeClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func newTestBackend(t *testing.T) (*Backend, *fakeClient) {
	t.Helper()
	c := newFakeClient("site")
	c.objects["www/index.html"] = []byte("hello from s3")

	b, err := New(context.Background(), Config{Client: c, Bucket: "site", KeyPrefix: "www/"})
	require.NoError(t, err)
	return b, c
}

func TestS3_New(t *testing.T) {
	c := newFakeClient("site")

	_, err := New(context.Background(), Config{Bucket: "site"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Client: c})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Client: c, Bucket: "other"})
	assert.ErrorContains(t, err, "failed to access bucket")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(ctx, Config{Client: c, Bucket: "site"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestS3_RangedReads(t *testing.T) {
	b, c := newTestBackend(t)

	d, err := b.Open("/index.html", fsys.ModeRead)
	require.NoError(t, err)

	buf := make([]byte, 5)
	n, err := b.Read(d, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	require.NoError(t, b.Seek(d, -2, fsys.SeekEnd))
	n, err = b.Read(d, buf)
	require.NoError(t, err)
	assert.Equal(t, "s3", string(buf[:n]))

	n, err = b.Read(d, buf)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, []string{"bytes=0-4", "bytes=11-12"}, c.ranges, "end of object issues no request")
	require.NoError(t, b.Close(d))
	assert.Zero(t, b.OpenCount())
}

func TestS3_Missing(t *testing.T) {
	b, _ := newTestBackend(t)
	_, err := b.Open("absent.html", fsys.ModeRead)
	assert.ErrorIs(t, err, fsys.ErrNoFile)
	assert.Zero(t, b.OpenCount())
}

func TestS3_WriteUploadsOnClose(t *testing.T) {
	b, c := newTestBackend(t)

	d, err := b.Open("log.txt", fsys.ModeWrite|fsys.ModeCreate|fsys.ModeTruncate)
	require.NoError(t, err)
	_, err = b.Write(d, []byte("line1\n"))
	require.NoError(t, err)
	assert.NotContains(t, c.objects, "www/log.txt")

	require.NoError(t, b.Close(d))
	assert.Equal(t, "line1\n", string(c.objects["www/log.txt"]))

	d, err = b.Open("log.txt", fsys.ModeWrite|fsys.ModeCreate|fsys.ModeAppend)
	require.NoError(t, err)
	_, err = b.Write(d, []byte("line2\n"))
	require.NoError(t, err)
	require.NoError(t, b.Close(d))
	assert.Equal(t, "line1\nline2\n", string(c.objects["www/log.txt"]))
}

func TestS3_ReadWriteDescriptorReadsLocalCopy(t *testing.T) {
	b, c := newTestBackend(t)

	d, err := b.Open("index.html", fsys.ModeRead|fsys.ModeWrite)
	require.NoError(t, err)
	_, err = b.Write(d, []byte("HELLO"))
	require.NoError(t, err)
	require.NoError(t, b.Seek(d, 0, fsys.SeekSet))

	buf := make([]byte, 32)
	n, err := b.Read(d, buf)
	require.NoError(t, err)
	assert.Equal(t, "HELLO from s3", string(buf[:n]))
	assert.Empty(t, c.ranges)

	require.NoError(t, b.Close(d))
	assert.Equal(t, "HELLO from s3", string(c.objects["www/index.html"]))
}

func TestS3_ReadOnly(t *testing.T) {
	c := newFakeClient("site")
	b, err := New(context.Background(), Config{Client: c, Bucket: "site", ReadOnly: true})
	require.NoError(t, err)

	_, err = b.Open("x", fsys.ModeWrite|fsys.ModeCreate)
	assert.ErrorIs(t, err, fsys.ErrReadOnly)

	rb, rc := newTestBackend(t)
	d, err := rb.Open("index.html", fsys.ModeRead)
	require.NoError(t, err)
	_, err = rb.Write(d, []byte("x"))
	assert.ErrorIs(t, err, fsys.ErrReadOnly)
	require.NoError(t, rb.Close(d))
	assert.Equal(t, "hello from s3", string(rc.objects["www/index.html"]))
}

func TestS3_SeekAndStaleDescriptors(t *testing.T) {
	b, _ := newTestBackend(t)
	d, err := b.Open("index.html", fsys.ModeRead)
	require.NoError(t, err)

	assert.ErrorIs(t, b.Seek(d, 14, fsys.SeekSet), fsys.ErrBadParam)
	pos, err := b.Tell(d)
	require.NoError(t, err)
	assert.Zero(t, pos)

	require.NoError(t, b.Close(d))
	assert.ErrorIs(t, b.Close(d), fsys.ErrBadFile)
	pos, err = b.Tell(d)
	assert.ErrorIs(t, err, fsys.ErrBadFile)
	assert.Equal(t, int64(-1), pos)
}

func TestS3_UnknownWhenceIsFatal(t *testing.T) {
	b, _ := newTestBackend(t)
	d, err := b.Open("index.html", fsys.ModeRead)
	require.NoError(t, err)

	defer func() {
		v := fault.Recover(recover())
		require.NotNil(t, v)
		assert.True(t, v.Fatal)
	}()
	_ = b.Seek(d, 0, fsys.Whence(7))
}
