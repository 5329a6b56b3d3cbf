package testing

import (
	"testing"

	"github.com/marmos91/dittofd/pkg/vnode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunIOTests executes all Vnode read/write/stat tests.
func (suite *FileSystemTestSuite) RunIOTests(t *testing.T) {
	t.Run("Write_ReadBack", suite.testWriteReadBack)
	t.Run("Read_AtEOF", suite.testReadAtEOF)
	t.Run("Read_Partial", suite.testReadPartial)
	t.Run("Write_Overwrite", suite.testWriteOverwrite)
	t.Run("Write_Sparse", suite.testWriteSparse)
	t.Run("Write_VisibleAcrossVnodes", suite.testWriteVisibleAcrossVnodes)
	t.Run("Close_Persists", suite.testClosePersists)
}

func (suite *FileSystemTestSuite) testWriteReadBack(t *testing.T) {
	fs := suite.NewFileSystem()
	vn := mustOpen(t, fs, generateTestPath("readback"), vnode.O_RDWR|vnode.O_CREAT)

	n, err := vn.Write(testContext(), 0, []byte("Hello, World!"))
	require.NoError(t, err)
	assert.Equal(t, 13, n)

	buf := make([]byte, 13)
	n, err = vn.Read(testContext(), 0, buf)
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, "Hello, World!", string(buf))

	st, err := vn.Stat(testContext())
	require.NoError(t, err)
	assert.Equal(t, int64(13), st.Size)
}

func (suite *FileSystemTestSuite) testReadAtEOF(t *testing.T) {
	fs := suite.NewFileSystem()
	path := generateTestPath("eof")
	mustCreate(t, fs, path, []byte("abc"))
	vn := mustOpen(t, fs, path, vnode.O_RDONLY)

	buf := make([]byte, 8)
	n, err := vn.Read(testContext(), 3, buf)
	require.NoError(t, err, "read at EOF is not an error")
	assert.Equal(t, 0, n)

	n, err = vn.Read(testContext(), 100, buf)
	require.NoError(t, err, "read past EOF is not an error")
	assert.Equal(t, 0, n)
}

func (suite *FileSystemTestSuite) testReadPartial(t *testing.T) {
	fs := suite.NewFileSystem()
	path := generateTestPath("partial")
	mustCreate(t, fs, path, []byte("0123456789"))
	vn := mustOpen(t, fs, path, vnode.O_RDONLY)

	buf := make([]byte, 4)
	n, err := vn.Read(testContext(), 8, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "read is short at end of object")
	assert.Equal(t, "89", string(buf[:n]))
}

func (suite *FileSystemTestSuite) testWriteOverwrite(t *testing.T) {
	fs := suite.NewFileSystem()
	path := generateTestPath("overwrite")
	mustCreate(t, fs, path, []byte("aaaaaaaa"))
	vn := mustOpen(t, fs, path, vnode.O_RDWR)

	_, err := vn.Write(testContext(), 2, []byte("BB"))
	require.NoError(t, err)
	assert.Equal(t, []byte("aaBBaaaa"), mustReadAll(t, vn))
}

func (suite *FileSystemTestSuite) testWriteSparse(t *testing.T) {
	fs := suite.NewFileSystem()
	vn := mustOpen(t, fs, generateTestPath("sparse"), vnode.O_RDWR|vnode.O_CREAT)

	_, err := vn.Write(testContext(), 4, []byte("x"))
	require.NoError(t, err)

	assert.Equal(t, []byte{0, 0, 0, 0, 'x'}, mustReadAll(t, vn), "gap is zero-filled")
}

func (suite *FileSystemTestSuite) testWriteVisibleAcrossVnodes(t *testing.T) {
	fs := suite.NewFileSystem()
	path := generateTestPath("shared")
	mustCreate(t, fs, path, nil)

	writer := mustOpen(t, fs, path, vnode.O_WRONLY)
	reader := mustOpen(t, fs, path, vnode.O_RDONLY)

	_, err := writer.Write(testContext(), 0, []byte("shared"))
	require.NoError(t, err)

	assert.Equal(t, []byte("shared"), mustReadAll(t, reader))
}

func (suite *FileSystemTestSuite) testClosePersists(t *testing.T) {
	fs := suite.NewFileSystem()
	path := generateTestPath("persist")
	mustCreate(t, fs, path, []byte("persisted"))

	vn := mustOpen(t, fs, path, vnode.O_RDONLY)
	assert.Equal(t, []byte("persisted"), mustReadAll(t, vn))
}
