package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
	vnodetesting "github.com/marmos91/dittofd/pkg/vnode/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostFileSystem(t *testing.T) {
	suite := &vnodetesting.FileSystemTestSuite{
		NewFileSystem: func() vnode.FileSystem {
			fs, err := NewHostFileSystem(context.Background(), HostFileSystemConfig{Path: t.TempDir()})
			require.NoError(t, err)
			return fs
		},
	}
	suite.Run(t)
}

func TestHostFileSystem_StaysUnderBase(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	fs, err := NewHostFileSystem(ctx, HostFileSystemConfig{Path: base})
	require.NoError(t, err)

	vn, err := fs.Open(ctx, "/../../escape", vnode.O_WRONLY|vnode.O_CREAT, 0o644)
	require.NoError(t, err)
	require.NoError(t, vn.Close(ctx))

	_, err = os.Stat(filepath.Join(base, "escape"))
	assert.NoError(t, err, "path is clamped to the base directory")
}

func TestHostFileSystem_RejectsDirectories(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "sub"), 0o755))

	fs, err := NewHostFileSystem(ctx, HostFileSystemConfig{Path: base})
	require.NoError(t, err)

	_, err = fs.Open(ctx, "/sub", vnode.O_RDONLY, 0)
	assert.ErrorIs(t, err, errno.EISDIR)
}

func TestHostFileSystem_RequiresPath(t *testing.T) {
	_, err := NewHostFileSystem(context.Background(), HostFileSystemConfig{})
	assert.Error(t, err)
}
