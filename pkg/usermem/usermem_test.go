package usermem

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyStringIn(t *testing.T) {
	ctx := context.Background()
	mem := NewBytesIO(256)
	require.NoError(t, CopyStringOut(ctx, mem, 16, "/f"))

	s, err := CopyStringIn(ctx, mem, 16, 1024)
	require.NoError(t, err)
	assert.Equal(t, "/f", s)
}

func TestCopyStringIn_SpansIncrements(t *testing.T) {
	ctx := context.Background()
	mem := NewBytesIO(512)
	long := strings.Repeat("abcdefgh", 20) // 160 bytes, three increments
	require.NoError(t, CopyStringOut(ctx, mem, 0, long))

	s, err := CopyStringIn(ctx, mem, 0, 1024)
	require.NoError(t, err)
	assert.Equal(t, long, s)
}

func TestCopyStringIn_NameTooLong(t *testing.T) {
	ctx := context.Background()
	mem := NewBytesIO(64)
	require.NoError(t, CopyStringOut(ctx, mem, 0, "0123456789"))

	_, err := CopyStringIn(ctx, mem, 0, 10)
	assert.ErrorIs(t, err, errno.ENAMETOOLONG, "the NUL must fit within maxlen")

	s, err := CopyStringIn(ctx, mem, 0, 11)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", s)
}

func TestCopyStringIn_Fault(t *testing.T) {
	ctx := context.Background()
	mem := NewBytesIO(8)
	copy(mem.Bytes, "abcdefgh") // no terminator before the end

	_, err := CopyStringIn(ctx, mem, 0, 1024)
	assert.ErrorIs(t, err, errno.EFAULT)

	_, err = CopyStringIn(ctx, mem, 100, 1024)
	assert.ErrorIs(t, err, errno.EFAULT)
}

func TestCopyStringIn_AddressOverflow(t *testing.T) {
	_, err := CopyStringIn(context.Background(), NewBytesIO(8), Addr(math.MaxUint64-4), 1024)
	assert.ErrorIs(t, err, errno.EFAULT)
}

func TestBytesIO_PartialCopy(t *testing.T) {
	ctx := context.Background()
	mem := NewBytesIO(4)

	n, err := mem.CopyOut(ctx, 2, []byte("xyz"))
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, errno.EFAULT)

	dst := make([]byte, 3)
	n, err = mem.CopyIn(ctx, 2, dst)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, errno.EFAULT)
	assert.Equal(t, []byte("xy"), dst[:n])
}
