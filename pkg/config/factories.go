package config

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittofd/internal/logger"
	"github.com/marmos91/dittofd/pkg/metrics"
	"github.com/marmos91/dittofd/pkg/vfs"
	"github.com/marmos91/dittofd/pkg/vnode"
	vnodeBadger "github.com/marmos91/dittofd/pkg/vnode/badger"
	"github.com/marmos91/dittofd/pkg/vnode/device"
	vnodeFs "github.com/marmos91/dittofd/pkg/vnode/fs"
	"github.com/marmos91/dittofd/pkg/vnode/memory"
	vnodeS3 "github.com/marmos91/dittofd/pkg/vnode/s3"
	"github.com/mitchellh/mapstructure"
)

// Closers collects backends that hold resources (open databases) and must
// be closed after the kernel shuts down.
type Closers []io.Closer

// Close closes every backend, returning the joined errors.
func (c Closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CreateVFS builds the mount table: the root backend, every configured
// mount, and the console under "con" when console is non-nil.
//
// Parameters:
//   - ctx: Context for backend initialization
//   - cfg: Complete configuration
//   - console: Console device, or nil to leave "con:" unmounted
//   - s3Metrics: Observer for S3 backends (nil = no-op)
//
// Returns:
//   - *vfs.VFS: Mount table resolving every kernel path
//   - Closers: Backends to close on shutdown (already closed on error)
//   - error: Backend construction or mount failure
func CreateVFS(ctx context.Context, cfg *Config, console *device.Console, s3Metrics metrics.S3Metrics) (*vfs.VFS, Closers, error) {
	var closers Closers
	fail := func(err error) (*vfs.VFS, Closers, error) {
		_ = closers.Close()
		return nil, nil, err
	}

	root, err := CreateFileSystem(ctx, &cfg.Filesystem, s3Metrics)
	if err != nil {
		return fail(fmt.Errorf("root filesystem: %w", err))
	}
	if c, ok := root.(io.Closer); ok {
		closers = append(closers, c)
	}

	mounts := vfs.New(root)

	if console != nil {
		if err := mounts.Mount(consoleDevice, console); err != nil {
			return fail(err)
		}
	}

	for _, m := range cfg.Mounts {
		fs, err := CreateFileSystem(ctx, &m.FilesystemConfig, s3Metrics)
		if err != nil {
			return fail(fmt.Errorf("mount %s: %w", m.Name, err))
		}
		if c, ok := fs.(io.Closer); ok {
			closers = append(closers, c)
		}
		if err := mounts.Mount(m.Name, fs); err != nil {
			return fail(err)
		}
		logger.Info("Mounted %s: type=%s", m.Name, m.Type)
	}

	return mounts, closers, nil
}

// CreateFileSystem creates a vnode backend based on configuration.
//
// This factory function uses the Type field to determine which backend
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the backend's constructor.
//
// Supported types:
//   - "memory": Uses pkg/vnode/memory (volatile)
//   - "filesystem": Uses pkg/vnode/fs (host directory)
//   - "s3": Uses pkg/vnode/s3 (Amazon S3 or compatible storage)
//   - "badger": Uses pkg/vnode/badger (BadgerDB, persistent)
//
// Backends holding resources implement io.Closer.
func CreateFileSystem(ctx context.Context, cfg *FilesystemConfig, s3Metrics metrics.S3Metrics) (vnode.FileSystem, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryFileSystem(ctx, cfg.Memory)
	case "filesystem":
		return createHostFileSystem(ctx, cfg.Filesystem)
	case "s3":
		return createS3FileSystem(ctx, cfg.S3, s3Metrics)
	case "badger":
		return createBadgerFileSystem(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown filesystem type: %q (supported: memory, filesystem, s3, badger)", cfg.Type)
	}
}

// decodeOptions decodes a backend section into out, accepting the string
// forms environment variables produce.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

func createMemoryFileSystem(ctx context.Context, options map[string]any) (vnode.FileSystem, error) {
	var fsCfg memory.MemoryFileSystemConfig
	if err := decodeOptions(options, &fsCfg); err != nil {
		return nil, fmt.Errorf("invalid memory config: %w", err)
	}

	return memory.NewMemoryFileSystem(ctx, fsCfg)
}

func createHostFileSystem(ctx context.Context, options map[string]any) (vnode.FileSystem, error) {
	var fsCfg vnodeFs.HostFileSystemConfig
	if err := decodeOptions(options, &fsCfg); err != nil {
		return nil, fmt.Errorf("invalid filesystem config: %w", err)
	}

	if err := validate.Struct(fsCfg); err != nil {
		return nil, fmt.Errorf("filesystem backend: %w", formatValidationError(err))
	}

	fs, err := vnodeFs.NewHostFileSystem(ctx, fsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filesystem backend: %w", err)
	}
	return fs, nil
}

func createBadgerFileSystem(ctx context.Context, options map[string]any) (vnode.FileSystem, error) {
	var fsCfg vnodeBadger.BadgerFileSystemConfig
	if err := decodeOptions(options, &fsCfg); err != nil {
		return nil, fmt.Errorf("invalid badger config: %w", err)
	}

	if fsCfg.DBPath == "" && !fsCfg.InMemory {
		return nil, fmt.Errorf("badger backend: db_path is required")
	}

	fs, err := vnodeBadger.NewBadgerFileSystem(ctx, fsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return fs, nil
}

// s3Options is the s3 section of a filesystem config.
type s3Options struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

func createS3FileSystem(ctx context.Context, options map[string]any, s3Metrics metrics.S3Metrics) (vnode.FileSystem, error) {
	var opts s3Options
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("invalid s3 config: %w", err)
	}

	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 backend: bucket is required")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("s3 backend: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	client, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Create S3 backend (verifies the bucket)
	// ========================================================================

	fs, err := vnodeS3.NewS3FileSystem(ctx, vnodeS3.S3FileSystemConfig{
		Client:    client,
		Bucket:    opts.Bucket,
		KeyPrefix: opts.KeyPrefix,
		Metrics:   s3Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 backend: %w", err)
	}

	logger.Info("S3 backend initialized: bucket=%s, region=%s, prefix=%s",
		opts.Bucket, opts.Region, opts.KeyPrefix)

	return fs, nil
}

// newS3Client builds an S3 client from the s3 section.
func newS3Client(ctx context.Context, opts s3Options) (*s3.Client, error) {
	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(opts.Region),
	}

	// Static credentials when given, otherwise the default chain.
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
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

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			// MinIO and Localstack need path-style addressing.
			o.UsePathStyle = true
		}
		if opts.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}
