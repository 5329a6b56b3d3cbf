package metrics

import "time"

// S3Metrics provides observability for the S3 vnode backend.
//
// Example usage:
//
//	fs, err := s3.NewS3FileSystem(ctx, s3.S3FileSystemConfig{
//	    Client:  client,
//	    Bucket:  "dittofd",
//	    Metrics: prometheus.NewS3Metrics(),
//	})
type S3Metrics interface {
	// ObserveOperation records an S3 API call with its duration and outcome.
	//
	// Parameters:
	//   - operation: API name (e.g., "GetObject", "PutObject", "HeadObject")
	//   - duration: Time taken by the call
	//   - err: Error if the call failed, nil if successful
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes moved by a vnode read or write.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - bytes: Number of bytes transferred
	RecordBytes(direction string, bytes int64)
}

// NewNoopS3Metrics returns an S3Metrics that discards everything.
func NewNoopS3Metrics() S3Metrics {
	return noopS3Metrics{}
}

type noopS3Metrics struct{}

func (noopS3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {}
func (noopS3Metrics) RecordBytes(direction string, bytes int64)                           {}
