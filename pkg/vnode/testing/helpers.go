package testing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/dittofd/pkg/vnode"
	"github.com/stretchr/testify/require"
)

// generateTestPath returns a path unique to one test run, so suites sharing
// a backend (e.g. one S3 bucket) never collide.
func generateTestPath(name string) string {
	return "/suite/" + name + "-" + uuid.NewString()
}

// mustOpen opens path and fails the test if it errors. The vnode is closed
// when the test ends.
func mustOpen(t *testing.T, fs vnode.FileSystem, path string, flags int) vnode.Vnode {
	t.Helper()
	vn, err := fs.Open(testContext(), path, flags, 0o644)
	require.NoError(t, err, "Open(%s) should succeed", path)
	t.Cleanup(func() { _ = vn.Close(testContext()) })
	return vn
}

// mustCreate creates path with data as its content.
func mustCreate(t *testing.T, fs vnode.FileSystem, path string, data []byte) {
	t.Helper()
	vn, err := fs.Open(testContext(), path, vnode.O_WRONLY|vnode.O_CREAT|vnode.O_TRUNC, 0o644)
	require.NoError(t, err, "Open(%s, O_CREAT) should succeed", path)
	if len(data) > 0 {
		n, err := vn.Write(testContext(), 0, data)
		require.NoError(t, err, "Write should succeed")
		require.Equal(t, len(data), n, "Write should be complete")
	}
	require.NoError(t, vn.Close(testContext()), "Close should succeed")
}

// mustReadAll reads the whole object from offset 0.
func mustReadAll(t *testing.T, vn vnode.Vnode) []byte {
	t.Helper()
	st, err := vn.Stat(testContext())
	require.NoError(t, err, "Stat should succeed")

	buf := make([]byte, st.Size)
	var total int
	for total < len(buf) {
		n, err := vn.Read(testContext(), int64(total), buf[total:])
		require.NoError(t, err, "Read should succeed")
		if n == 0 {
			break
		}
		total += n
	}
	return buf[:total]
}
