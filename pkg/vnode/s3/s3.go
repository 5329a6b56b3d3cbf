// Package s3 implements a vnode.FileSystem on Amazon S3 or S3-compatible
// storage.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	gopath "path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/metrics"
	"github.com/marmos91/dittofd/pkg/vnode"
)

// S3FileSystem implements vnode.FileSystem using one object per file.
//
// Path-Based Key Design:
//   - The kernel path (without its leading "/") is the object key
//   - An optional prefix is prepended to every key
//   - The bucket mirrors the file structure and stays human-readable
//
// S3 Characteristics:
//   - Object storage (no true random access like filesystem)
//   - Reads use byte-range GetObject requests
//   - Writes use read-modify-write of the whole object
//   - No local caching (every read hits S3)
//
// Thread Safety:
// Writes to the same key from this process are serialized by a per-key lock,
// so concurrent writers never lose each other's bytes. Writers in other
// processes get last-write-wins behavior.
type S3FileSystem struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	metrics   metrics.S3Metrics

	// keyLocks holds one *sync.Mutex per object key
	keyLocks sync.Map
}

// S3FileSystemConfig contains configuration for the S3 filesystem.
type S3FileSystemConfig struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "dittofd/" results in keys like "dittofd/home/notes.txt"
	KeyPrefix string

	// Metrics receives per-call observations (nil = no-op)
	Metrics metrics.S3Metrics
}

// NewS3FileSystem creates a new S3-backed filesystem.
//
// The bucket must already exist - this function does not create it.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: S3 configuration
//
// Returns:
//   - *S3FileSystem: Initialized filesystem
//   - error: Returns error if bucket access fails or context is cancelled
func NewS3FileSystem(ctx context.Context, cfg S3FileSystemConfig) (*S3FileSystem, error) {
	// ========================================================================
	// Step 1: Check context and validate configuration
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoopS3Metrics()
	}

	// ========================================================================
	// Step 2: Verify bucket access
	// ========================================================================

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3FileSystem{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		metrics:   m,
	}, nil
}

// objectKey returns the full S3 object key for a kernel path.
//
// Example:
//
//	Path:       "/documents/report.txt"
//	Key Prefix: "dittofd/"
//	S3 Key:     "dittofd/documents/report.txt"
func (s *S3FileSystem) objectKey(p string) string {
	key := strings.TrimPrefix(gopath.Clean("/"+p), "/")
	return s.keyPrefix + key
}

// lockKey returns the write lock for key.
func (s *S3FileSystem) lockKey(key string) *sync.Mutex {
	mu, _ := s.keyLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Open implements vnode.FileSystem.
//
// Open Semantics:
//   - Missing object without O_CREAT: ENOENT
//   - O_CREAT|O_EXCL: conditional PutObject (If-None-Match: *), EEXIST if present
//   - O_TRUNC with a writable access mode: object replaced by an empty one
func (s *S3FileSystem) Open(ctx context.Context, path string, flags int, mode uint32) (vnode.Vnode, error) {
	// ========================================================================
	// Step 1: Check context and resolve key
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if path == "" {
		return nil, fmt.Errorf("empty path: %w", errno.ENOENT)
	}

	key := s.objectKey(path)
	if key == s.keyPrefix {
		return nil, fmt.Errorf("open %s: %w", path, errno.EISDIR)
	}

	creating := flags&vnode.O_CREAT != 0
	exclusive := creating && flags&vnode.O_EXCL != 0
	truncating := flags&vnode.O_TRUNC != 0 && flags&vnode.O_ACCMODE != vnode.O_RDONLY

	// ========================================================================
	// Step 2: Exclusive create
	// ========================================================================

	if exclusive {
		err := s.putObject(ctx, key, nil, true)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return &s3Vnode{fs: s, key: key, name: path}, nil
	}

	// ========================================================================
	// Step 3: Existence check, create or truncate
	// ========================================================================

	_, err := s.headObject(ctx, key)
	switch {
	case err == nil && truncating:
		if err := s.putObject(ctx, key, nil, false); err != nil {
			return nil, fmt.Errorf("truncate %s: %w", path, err)
		}
	case err == nil:
	case errors.Is(err, errno.ENOENT) && creating:
		if err := s.putObject(ctx, key, nil, false); err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return &s3Vnode{fs: s, key: key, name: path}, nil
}

// headObject issues HeadObject and maps a missing object to ENOENT.
func (s *S3FileSystem) headObject(ctx context.Context, key string) (result *s3.HeadObjectOutput, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("HeadObject", time.Since(start), err)
	}()

	result, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translateError(err)
	}
	return result, nil
}

// putObject replaces the object at key with data. With exclusive set the
// put only succeeds if no object exists.
func (s *S3FileSystem) putObject(ctx context.Context, key string, data []byte, exclusive bool) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("PutObject", time.Since(start), err)
	}()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if exclusive {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err = s.client.PutObject(ctx, input); err != nil {
		return translateError(err)
	}
	return nil
}

// translateError maps S3 API errors onto errno values.
func translateError(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return errno.ENOENT
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return errno.EEXIST
		case "AccessDenied":
			return fmt.Errorf("%w: %v", errno.EACCES, err)
		case "NoSuchBucket":
			return fmt.Errorf("%w: %v", errno.ENOENT, err)
		}
	}

	return fmt.Errorf("%w: %v", errno.EIO, err)
}
