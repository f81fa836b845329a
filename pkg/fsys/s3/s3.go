// Package s3 implements a backend that serves objects from an S3 bucket or
// any S3-compatible store.
//
// Reads are issued as ranged GetObject requests so only the requested window
// is downloaded. Files opened for writing are buffered in memory and uploaded
// with a single PutObject when the descriptor is closed.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/webio/internal/logger"
	"github.com/marmos91/webio/pkg/fault"
	"github.com/marmos91/webio/pkg/fsys"
)

// Client is the subset of *s3.Client used by the backend.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ Client = (*s3.Client)(nil)

// DefaultTimeout bounds each request made on behalf of a descriptor call.
const DefaultTimeout = 30 * time.Second

// Config contains configuration for the S3 backend.
type Config struct {
	// Client is the configured S3 client
	Client Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is prepended to every file name.
	// Example: "www/" maps "index.html" to "www/index.html"
	KeyPrefix string

	// ReadOnly rejects every open that requests write access.
	ReadOnly bool

	// Timeout bounds each request (default: DefaultTimeout)
	Timeout time.Duration
}

// object is the descriptor issued by this backend.
type object struct {
	name string
	key  string
	mode fsys.Mode
	size int64
	pos  int64

	// buf holds the whole object for descriptors opened for writing.
	buf   []byte
	dirty bool
}

func (o *object) writable() bool {
	return o.mode.Has(fsys.ModeWrite)
}

// Backend serves files from an S3 bucket.
type Backend struct {
	client    Client
	bucket    string
	keyPrefix string
	readOnly  bool
	timeout   time.Duration
	open      map[*object]struct{}
}

var _ fsys.Backend = (*Backend)(nil)

// New verifies bucket access and returns a backend for it. The bucket must
// already exist.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &Backend{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		readOnly:  cfg.ReadOnly,
		timeout:   timeout,
		open:      make(map[*object]struct{}),
	}, nil
}

// OpenCount returns the number of live descriptors.
func (b *Backend) OpenCount() int {
	return len(b.open)
}

func (b *Backend) Open(name string, mode fsys.Mode) (fsys.Descriptor, error) {
	if b.readOnly && !mode.ReadOnly() {
		return nil, fmt.Errorf("s3 open %q (%s): %w", name, mode, fsys.ErrReadOnly)
	}

	o := &object{name: name, key: b.objectKey(name), mode: mode}

	ctx, cancel := b.context()
	defer cancel()

	size, err := b.head(ctx, o.key)
	switch {
	case errors.Is(err, fsys.ErrNoFile):
		if !mode.Has(fsys.ModeCreate) {
			return nil, fmt.Errorf("s3 open %q: %w", name, fsys.ErrNoFile)
		}
		o.dirty = true
	case err != nil:
		return nil, fmt.Errorf("s3 open %q: %w", name, err)
	default:
		o.size = size
	}

	if o.writable() {
		switch {
		case mode.Has(fsys.ModeTruncate):
			o.size = 0
			o.dirty = true
		case o.size > 0:
			o.buf, err = b.download(ctx, o.key)
			if err != nil {
				return nil, fmt.Errorf("s3 open %q: %w", name, err)
			}
			o.size = int64(len(o.buf))
		}
	}

	b.open[o] = struct{}{}
	logger.Debug("s3 open %s (key %s, %s, %d bytes)", name, o.key, mode, o.size)
	return o, nil
}

// Read returns 0 and no error at end of object.
func (b *Backend) Read(d fsys.Descriptor, p []byte) (int, error) {
	o, err := b.verify("read", d)
	if err != nil {
		return 0, err
	}
	if !o.mode.Has(fsys.ModeRead) {
		return 0, fmt.Errorf("s3 read %q: opened write-only: %w", o.name, fsys.ErrBadFile)
	}
	if len(p) == 0 || o.pos >= o.size {
		return 0, nil
	}

	if o.writable() {
		n := copy(p, o.buf[o.pos:])
		o.pos += int64(n)
		return n, nil
	}

	end := min(o.pos+int64(len(p)), o.size) - 1

	ctx, cancel := b.context()
	defer cancel()

	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", o.pos, end)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("s3 read %q: %w", o.name, fsys.ErrNoFile)
		}
		if strings.Contains(err.Error(), "InvalidRange") {
			return 0, nil
		}
		return 0, fmt.Errorf("s3 read %q: %w", o.name, err)
	}
	defer func() { _ = result.Body.Close() }()

	n, err := io.ReadFull(result.Body, p[:end-o.pos+1])
	o.pos += int64(n)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return n, nil
	}
	if err != nil {
		return n, fmt.Errorf("s3 read %q: %w", o.name, err)
	}
	return n, nil
}

// Write edits the local copy. Nothing reaches the bucket before Close.
func (b *Backend) Write(d fsys.Descriptor, p []byte) (int, error) {
	o, err := b.verify("write", d)
	if err != nil {
		return 0, err
	}
	if !o.writable() {
		return 0, fmt.Errorf("s3 write %q: %w", o.name, fsys.ErrReadOnly)
	}

	if o.mode.Has(fsys.ModeAppend) {
		o.pos = o.size
	}

	end := o.pos + int64(len(p))
	if end > int64(len(o.buf)) {
		grown := make([]byte, end)
		copy(grown, o.buf)
		o.buf = grown
	}
	copy(o.buf[o.pos:], p)
	o.pos = end
	o.size = max(o.size, end)
	o.dirty = true
	return len(p), nil
}

// Seek accepts targets in [0, size]; anything else is ErrBadParam and
// leaves the position unchanged. An unknown whence is fatal.
func (b *Backend) Seek(d fsys.Descriptor, offset int64, whence fsys.Whence) error {
	o, err := b.verify("seek", d)
	if err != nil {
		return err
	}

	var pos int64
	switch whence {
	case fsys.SeekSet:
		pos = offset
	case fsys.SeekCur:
		pos = o.pos + offset
	case fsys.SeekEnd:
		pos = o.size + offset
	default:
		fault.Fatal("s3.seek", "unknown whence %d", int(whence))
	}

	if pos < 0 || pos > o.size {
		return fmt.Errorf("s3 seek %q to %d (size %d): %w", o.name, pos, o.size, fsys.ErrBadParam)
	}
	o.pos = pos
	return nil
}

func (b *Backend) Tell(d fsys.Descriptor) (int64, error) {
	o, err := b.verify("tell", d)
	if err != nil {
		return -1, err
	}
	return o.pos, nil
}

// Close uploads pending writes. The descriptor is forgotten even when the
// upload fails.
func (b *Backend) Close(d fsys.Descriptor) error {
	o, err := b.verify("close", d)
	if err != nil {
		return err
	}
	delete(b.open, o)

	if !o.writable() || !o.dirty {
		return nil
	}

	ctx, cancel := b.context()
	defer cancel()

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(o.key),
		Body:          bytes.NewReader(o.buf[:o.size]),
		ContentLength: aws.Int64(o.size),
	})
	if err != nil {
		return fmt.Errorf("s3 close %q: upload: %w", o.name, err)
	}
	logger.Debug("s3 uploaded %s (%d bytes)", o.key, o.size)
	return nil
}

func (b *Backend) head(ctx context.Context, key string) (int64, error) {
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fsys.ErrNoFile
		}
		return 0, fmt.Errorf("failed to head object: %w", err)
	}
	if result.ContentLength == nil {
		return 0, fmt.Errorf("content length not available for %s", key)
	}
	return *result.ContentLength, nil
}

func (b *Backend) download(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer func() { _ = result.Body.Close() }()
	return io.ReadAll(result.Body)
}

func (b *Backend) verify(op string, d fsys.Descriptor) (*object, error) {
	o, ok := d.(*object)
	if !ok {
		return nil, fmt.Errorf("s3 %s %v: %w", op, d, fsys.ErrBadFile)
	}
	if _, live := b.open[o]; !live {
		return nil, fmt.Errorf("s3 %s %q: %w", op, o.name, fsys.ErrBadFile)
	}
	return o, nil
}

func (b *Backend) objectKey(name string) string {
	return b.keyPrefix + strings.TrimPrefix(name, "/")
}

func (b *Backend) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.timeout)
}

// isNotFound reports whether err is S3's missing-object error. HeadObject
// reports NotFound while GetObject reports NoSuchKey.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
