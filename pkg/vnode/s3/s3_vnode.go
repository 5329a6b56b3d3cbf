package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
)

// s3Vnode is one open instance of an S3 object.
type s3Vnode struct {
	fs   *S3FileSystem
	key  string
	name string
}

// Read implements vnode.Vnode using an S3 byte-range request.
//
// A range starting at or past the end of the object yields 0 bytes and a nil
// error.
func (v *s3Vnode) Read(ctx context.Context, offset int64, buf []byte) (n int, err error) {
	start := time.Now()
	defer func() {
		v.fs.metrics.ObserveOperation("GetObject", time.Since(start), err)
		if n > 0 {
			v.fs.metrics.RecordBytes("read", int64(n))
		}
	}()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("offset %d: %w", offset, errno.EINVAL)
	}
	if len(buf) == 0 {
		return 0, nil
	}

	// S3 range is inclusive, so end = offset + len(buf) - 1
	end := offset + int64(len(buf)) - 1
	result, err := v.fs.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.fs.bucket),
		Key:    aws.String(v.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, end)),
	})
	if err != nil {
		if isInvalidRange(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", v.name, translateError(err))
	}
	defer func() { _ = result.Body.Close() }()

	n, err = io.ReadFull(result.Body, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return n, nil
	}
	if err != nil {
		return n, fmt.Errorf("read %s: %w", v.name, errors.Join(errno.EIO, err))
	}
	return n, nil
}

// Write implements vnode.Vnode.
//
// S3 has no partial object update, so the object is downloaded, patched in
// memory and uploaded again. Writes past the end zero-fill the gap.
func (v *s3Vnode) Write(ctx context.Context, offset int64, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	end, err := vnode.WriteEnd(offset, len(buf), vnode.MaxBufferedSize)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	mu := v.fs.lockKey(v.key)
	mu.Lock()
	defer mu.Unlock()

	// ========================================================================
	// Step 1: Download current content
	// ========================================================================

	current, err := v.download(ctx)
	if err != nil && !errors.Is(err, errno.ENOENT) {
		return 0, fmt.Errorf("write %s: %w", v.name, err)
	}

	// ========================================================================
	// Step 2: Patch
	// ========================================================================

	if end > int64(len(current)) {
		extended := make([]byte, end)
		copy(extended, current)
		current = extended
	}
	copy(current[offset:], buf)

	// ========================================================================
	// Step 3: Upload
	// ========================================================================

	if err := v.fs.putObject(ctx, v.key, current, false); err != nil {
		return 0, fmt.Errorf("write %s: %w", v.name, err)
	}

	v.fs.metrics.RecordBytes("write", int64(len(buf)))
	return len(buf), nil
}

// download fetches the whole object.
func (v *s3Vnode) download(ctx context.Context) (data []byte, err error) {
	start := time.Now()
	defer func() {
		v.fs.metrics.ObserveOperation("GetObject", time.Since(start), err)
	}()

	result, err := v.fs.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.fs.bucket),
		Key:    aws.String(v.key),
	})
	if err != nil {
		return nil, translateError(err)
	}
	defer func() { _ = result.Body.Close() }()

	var out bytes.Buffer
	if _, err := io.Copy(&out, result.Body); err != nil {
		return nil, errors.Join(errno.EIO, err)
	}
	return out.Bytes(), nil
}

// Stat implements vnode.Vnode.
func (v *s3Vnode) Stat(ctx context.Context) (vnode.Stat, error) {
	if err := ctx.Err(); err != nil {
		return vnode.Stat{}, err
	}

	result, err := v.fs.headObject(ctx, v.key)
	if err != nil {
		return vnode.Stat{}, fmt.Errorf("stat %s: %w", v.name, err)
	}

	st := vnode.Stat{Mode: 0o644}
	if result.ContentLength != nil {
		st.Size = *result.ContentLength
	}
	if result.LastModified != nil {
		st.Mtime = *result.LastModified
	}
	return st, nil
}

// IsSeekable implements vnode.Vnode.
func (v *s3Vnode) IsSeekable() bool { return true }

// Close implements vnode.Vnode. No server-side state is held.
func (v *s3Vnode) Close(ctx context.Context) error { return nil }

// isInvalidRange reports whether S3 rejected a range that starts past the
// end of the object.
func isInvalidRange(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "InvalidRange"
	}
	return false
}
