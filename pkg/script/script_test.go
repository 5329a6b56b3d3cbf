package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/dittofd/pkg/vnode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		s, err := Parse(strings.NewReader(`
name: basic
steps:
  - op: open
    path: /f
    flags: [O_RDWR, O_CREAT]
    mode: 0o644
    expect: {result: 3}
  - op: lseek
    fd: 3
    offset: -1
    whence: SEEK_END
  - op: fork
    as: child
  - op: read
    proc: child
    fd: 3
    count: 4
    expect: {data: ""}
`))
		require.NoError(t, err)
		assert.Equal(t, "basic", s.Name)
		require.Len(t, s.Steps, 4)

		open := s.Steps[0]
		assert.Equal(t, OpOpen, open.Op)
		assert.Equal(t, MainProcess, open.process())
		flags, err := open.flags()
		require.NoError(t, err)
		assert.Equal(t, vnode.O_RDWR|vnode.O_CREAT, flags)
		assert.Equal(t, uint32(0o644), open.Mode)
		require.NotNil(t, open.Expect.Result)
		assert.Equal(t, int64(3), *open.Expect.Result)

		whence, err := s.Steps[1].whence()
		require.NoError(t, err)
		assert.Equal(t, vnode.SEEK_END, whence)
		assert.Equal(t, int64(-1), s.Steps[1].Offset)

		assert.Equal(t, "child", s.Steps[3].process())
		require.NotNil(t, s.Steps[3].Expect.Data)
		assert.Empty(t, *s.Steps[3].Expect.Data)
	})

	t.Run("DefaultWhence", func(t *testing.T) {
		whence, err := Step{Op: OpLseek}.whence()
		require.NoError(t, err)
		assert.Equal(t, vnode.SEEK_SET, whence)
	})

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"Empty", "", "empty script"},
		{"NoSteps", "name: x\n", "Steps"},
		{"UnknownField", "steps:\n  - op: close\n    bogus: 1\n", "bogus"},
		{"UnknownOp", "steps:\n  - op: unlink\n", "oneof"},
		{"UnknownFlag", "steps:\n  - op: open\n    path: /f\n    flags: [O_SYNC]\n", "oneof"},
		{"UnknownWhence", "steps:\n  - op: lseek\n    whence: SEEK_HOLE\n", "oneof"},
		{"NegativeCount", "steps:\n  - op: read\n    count: -1\n", "gte"},
		{"OpenWithoutPath", "steps:\n  - op: open\n    flags: [O_RDONLY]\n", "requires path"},
		{"OpenWithoutFlags", "steps:\n  - op: open\n    path: /f\n", "requires flags"},
		{"ForkWithoutName", "steps:\n  - op: fork\n", "requires as"},
		{"ForkDuplicate", "steps:\n  - op: fork\n    as: main\n", "already exists"},
		{"ProcessNotForked", "steps:\n  - op: close\n    proc: ghost\n", "before it is forked"},
		{"UnknownErrno", "steps:\n  - op: close\n    expect: {errno: EWHATEVER}\n", "unknown errno"},
		{"Malformed", "steps: [\n", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - op: close\n    fd: 9\n"), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, 9, s.Steps[0].FD)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
