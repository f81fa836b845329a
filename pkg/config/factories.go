package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/webio/internal/logger"
	"github.com/marmos91/webio/pkg/alloc"
	"github.com/marmos91/webio/pkg/fsys"
	"github.com/marmos91/webio/pkg/fsys/embedded"
	"github.com/marmos91/webio/pkg/fsys/kv"
	"github.com/marmos91/webio/pkg/fsys/native"
	fsysS3 "github.com/marmos91/webio/pkg/fsys/s3"
)

// CreateBackend creates a backend based on configuration.
//
// The Type field selects the implementation; the Options map is decoded
// into the type-specific settings.
//
// Supported types:
//   - "embedded": pkg/fsys/embedded, serving an image file or the built-in table
//   - "native": pkg/fsys/native, serving a host directory
//   - "s3": pkg/fsys/s3, serving objects from a bucket
//   - "kv": pkg/fsys/kv, serving files stored in BadgerDB
//
// builtin is the table served by embedded backends configured without an
// image.
func CreateBackend(ctx context.Context, b BackendConfig, cfg *Config, builtin embedded.Table) (fsys.Backend, error) {
	switch b.Type {
	case "embedded":
		return createEmbeddedBackend(b.Options, cfg, builtin)
	case "native":
		return createNativeBackend(b.Options)
	case "s3":
		return createS3Backend(ctx, b.Options)
	case "kv":
		return createKVBackend(b.Options)
	default:
		return nil, fmt.Errorf("unknown backend type: %q", b.Type)
	}
}

// decodeOptions decodes a backend option map, accepting duration strings.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return fmt.Errorf("failed to decode options: %w", err)
	}
	return nil
}

func createEmbeddedBackend(options map[string]any, cfg *Config, builtin embedded.Table) (fsys.Backend, error) {
	var opts struct {
		Image   string `mapstructure:"image"`
		MaxOpen int    `mapstructure:"max_open"`
	}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("embedded backend: %w", err)
	}

	table := builtin
	if opts.Image != "" {
		f, err := os.Open(opts.Image)
		if err != nil {
			return nil, fmt.Errorf("embedded backend: %w", err)
		}
		defer func() { _ = f.Close() }()

		table, err = embedded.ReadImage(f)
		if err != nil {
			return nil, fmt.Errorf("embedded backend %s: %w", opts.Image, err)
		}
	} else if builtin != nil {
		// Routines are bound per backend, so each one gets its own copy.
		table = make(embedded.Table, len(builtin))
		copy(table, builtin)
	}

	maxOpen := opts.MaxOpen
	if maxOpen == 0 {
		maxOpen = cfg.Allocator.Limits.EmbeddedFiles
	}

	backend, err := embedded.New(table, embedded.Config{
		Strategy: alloc.Strategy(cfg.Allocator.Strategy),
		MaxOpen:  maxOpen,
		User:     cfg.Auth.User,
		Password: cfg.Auth.Password,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Embedded backend initialized: entries=%d, image=%q", len(table), opts.Image)
	return backend, nil
}

func createNativeBackend(options map[string]any) (fsys.Backend, error) {
	var opts struct {
		Root     string `mapstructure:"root"`
		ReadOnly bool   `mapstructure:"read_only"`
	}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("native backend: %w", err)
	}

	backend, err := native.New(native.Config{Root: opts.Root, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, err
	}

	logger.Info("Native backend initialized: root=%s, read_only=%v", opts.Root, opts.ReadOnly)
	return backend, nil
}

func createKVBackend(options map[string]any) (fsys.Backend, error) {
	var opts struct {
		Path     string `mapstructure:"path"`
		InMemory bool   `mapstructure:"in_memory"`
		ReadOnly bool   `mapstructure:"read_only"`
	}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("kv backend: %w", err)
	}

	backend, err := kv.New(kv.Config{Path: opts.Path, InMemory: opts.InMemory, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, err
	}

	logger.Info("KV backend initialized: path=%q, in_memory=%v", opts.Path, opts.InMemory)
	return backend, nil
}

// createS3Backend creates an S3 backend from options.
//
// Credentials come from the options when both keys are set, otherwise from
// the default AWS credential chain.
func createS3Backend(ctx context.Context, options map[string]any) (fsys.Backend, error) {
	var opts struct {
		Region          string        `mapstructure:"region"`
		Bucket          string        `mapstructure:"bucket"`
		KeyPrefix       string        `mapstructure:"key_prefix"`
		Endpoint        string        `mapstructure:"endpoint"`
		AccessKeyID     string        `mapstructure:"access_key_id"`
		SecretAccessKey string        `mapstructure:"secret_access_key"`
		ReadOnly        bool          `mapstructure:"read_only"`
		MaxRetries      int           `mapstructure:"max_retries"`
		Timeout         time.Duration `mapstructure:"timeout"`
	}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("s3 backend: %w", err)
	}

	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 backend: bucket is required")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(opts.Region))

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoints (MinIO, Localstack) need path-style addressing
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	backend, err := fsysS3.New(ctx, fsysS3.Config{
		Client:    client,
		Bucket:    opts.Bucket,
		KeyPrefix: opts.KeyPrefix,
		ReadOnly:  opts.ReadOnly,
		Timeout:   opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 backend: %w", err)
	}

	logger.Info("S3 backend initialized: bucket=%s, region=%s, prefix=%s",
		opts.Bucket, opts.Region, opts.KeyPrefix)
	return backend, nil
}
