package device

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_ReadWrite(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	con := NewConsole(strings.NewReader("typed"), &out)

	in, err := con.Open(ctx, ConsoleName, vnode.O_RDONLY, 0)
	require.NoError(t, err)
	outVn, err := con.Open(ctx, ConsoleName, vnode.O_WRONLY, 0)
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := in.Read(ctx, 12345, buf)
	require.NoError(t, err)
	assert.Equal(t, "typed", string(buf[:n]), "offset is ignored")

	n, err = in.Read(ctx, 0, buf)
	require.NoError(t, err, "end of input is not an error")
	assert.Equal(t, 0, n)

	n, err = outVn.Write(ctx, 99, []byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "hello\n", out.String())

	assert.False(t, in.IsSeekable())
	assert.NoError(t, in.Close(ctx))
	assert.NoError(t, outVn.Close(ctx))
}

func TestConsole_NilStreams(t *testing.T) {
	ctx := context.Background()
	con := NewConsole(nil, nil)

	vn, err := con.Open(ctx, ConsoleName, vnode.O_RDWR, 0)
	require.NoError(t, err)

	n, err := vn.Read(ctx, 0, make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = vn.Write(ctx, 0, []byte("dropped"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestConsole_OpenValidation(t *testing.T) {
	ctx := context.Background()
	con := NewConsole(nil, nil)

	_, err := con.Open(ctx, ConsoleName, vnode.O_ACCMODE, 0)
	assert.ErrorIs(t, err, errno.EINVAL)

	_, err = con.Open(ctx, ConsoleName, vnode.O_RDWR|vnode.O_CREAT|vnode.O_EXCL, 0)
	assert.ErrorIs(t, err, errno.EEXIST)
}
