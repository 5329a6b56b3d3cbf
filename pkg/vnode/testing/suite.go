package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittofd/pkg/vnode"
)

// FileSystemTestSuite is a conformance suite for vnode.FileSystem
// implementations. It tests the interface contract, not implementation
// details, so it runs unchanged against the memory, host, BadgerDB and S3
// backends.
//
// Usage:
//
//	func TestMyFileSystem(t *testing.T) {
//	    suite := &testing.FileSystemTestSuite{
//	        NewFileSystem: func() vnode.FileSystem {
//	            return myfs.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type FileSystemTestSuite struct {
	// NewFileSystem creates a fresh FileSystem for each test.
	NewFileSystem func() vnode.FileSystem
}

// Run executes all tests in the suite.
func (suite *FileSystemTestSuite) Run(t *testing.T) {
	t.Run("OpenOperations", suite.RunOpenTests)
	t.Run("IOOperations", suite.RunIOTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}
