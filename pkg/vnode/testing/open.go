package testing

import (
	"testing"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunOpenTests executes all FileSystem.Open tests.
func (suite *FileSystemTestSuite) RunOpenTests(t *testing.T) {
	t.Run("Open_MissingWithoutCreate", suite.testOpenMissingWithoutCreate)
	t.Run("Open_Create", suite.testOpenCreate)
	t.Run("Open_CreateExisting", suite.testOpenCreateExisting)
	t.Run("Open_CreateExclusive", suite.testOpenCreateExclusive)
	t.Run("Open_Truncate", suite.testOpenTruncate)
	t.Run("Open_ReadOnlyIgnoresTruncate", suite.testOpenReadOnlyIgnoresTruncate)
}

func (suite *FileSystemTestSuite) testOpenMissingWithoutCreate(t *testing.T) {
	fs := suite.NewFileSystem()

	_, err := fs.Open(testContext(), generateTestPath("missing"), vnode.O_RDONLY, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errno.ENOENT)
}

func (suite *FileSystemTestSuite) testOpenCreate(t *testing.T) {
	fs := suite.NewFileSystem()
	path := generateTestPath("create")

	vn := mustOpen(t, fs, path, vnode.O_RDWR|vnode.O_CREAT)

	st, err := vn.Stat(testContext())
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Size, "new object should be empty")
	assert.True(t, vn.IsSeekable(), "regular objects are seekable")
}

func (suite *FileSystemTestSuite) testOpenCreateExisting(t *testing.T) {
	fs := suite.NewFileSystem()
	path := generateTestPath("create-existing")
	mustCreate(t, fs, path, []byte("keep me"))

	vn := mustOpen(t, fs, path, vnode.O_RDONLY|vnode.O_CREAT)
	assert.Equal(t, []byte("keep me"), mustReadAll(t, vn), "O_CREAT alone must not truncate")
}

func (suite *FileSystemTestSuite) testOpenCreateExclusive(t *testing.T) {
	fs := suite.NewFileSystem()
	path := generateTestPath("create-excl")
	mustCreate(t, fs, path, []byte("x"))

	_, err := fs.Open(testContext(), path, vnode.O_RDWR|vnode.O_CREAT|vnode.O_EXCL, 0o644)
	require.Error(t, err)
	assert.ErrorIs(t, err, errno.EEXIST)
}

func (suite *FileSystemTestSuite) testOpenTruncate(t *testing.T) {
	fs := suite.NewFileSystem()
	path := generateTestPath("truncate")
	mustCreate(t, fs, path, []byte("old content"))

	vn := mustOpen(t, fs, path, vnode.O_RDWR|vnode.O_TRUNC)

	st, err := vn.Stat(testContext())
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Size)
}

func (suite *FileSystemTestSuite) testOpenReadOnlyIgnoresTruncate(t *testing.T) {
	fs := suite.NewFileSystem()
	path := generateTestPath("ro-truncate")
	mustCreate(t, fs, path, []byte("survives"))

	vn := mustOpen(t, fs, path, vnode.O_RDONLY|vnode.O_TRUNC)
	assert.Equal(t, []byte("survives"), mustReadAll(t, vn))
}
