package script

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/kernel"
	"github.com/marmos91/dittofd/pkg/openfile"
	"github.com/marmos91/dittofd/pkg/vfs"
	"github.com/marmos91/dittofd/pkg/vnode/device"
	"github.com/marmos91/dittofd/pkg/vnode/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerEnv struct {
	kernel *kernel.Kernel
	root   *memory.MemoryFileSystem
	runner *Runner
	stdout *bytes.Buffer
}

func newRunnerEnv(t *testing.T) *runnerEnv {
	t.Helper()
	ctx := context.Background()

	root, err := memory.NewMemoryFileSystem(ctx, memory.MemoryFileSystemConfig{})
	require.NoError(t, err)

	stdout := &bytes.Buffer{}
	mounts := vfs.New(root)
	require.NoError(t, mounts.Mount("con", device.NewConsole(strings.NewReader("hi\n"), stdout)))

	table, err := openfile.NewTable(32)
	require.NoError(t, err)

	k, err := kernel.New(table, mounts, kernel.Options{Console: true})
	require.NoError(t, err)

	r := NewRunner(k, 0)
	t.Cleanup(func() { _ = r.Close(context.Background()) })

	return &runnerEnv{kernel: k, root: root, runner: r, stdout: stdout}
}

func mustParse(t *testing.T, src string) *Script {
	t.Helper()
	s, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	return s
}

func TestRunner(t *testing.T) {
	ctx := context.Background()

	t.Run("SharedCursorThroughDup2", func(t *testing.T) {
		env := newRunnerEnv(t)
		results, err := env.runner.Run(ctx, mustParse(t, `
steps:
  - op: open
    path: /f
    flags: [O_RDWR, O_CREAT]
    expect: {result: 3}
  - op: dup2
    fd: 3
    newfd: 7
    expect: {result: 7}
  - op: write
    fd: 7
    data: hello
    expect: {result: 5}
  - op: lseek
    fd: 3
    whence: SEEK_CUR
    expect: {result: 5}
  - op: lseek
    fd: 3
    expect: {result: 0}
  - op: read
    fd: 7
    count: 16
    expect: {result: 5, data: hello}
  - op: close
    fd: 3
  - op: read
    fd: 3
    count: 1
    expect: {result: -1, errno: EBADF}
`))
		require.NoError(t, err)
		require.Len(t, results, 8)
		assert.Equal(t, "hello", string(results[5].Data))
		assert.ErrorIs(t, results[7].Err, errno.EBADF)

		data, err := env.root.ReadFile(ctx, "/f")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})

	t.Run("ForkSharesOpenFiles", func(t *testing.T) {
		env := newRunnerEnv(t)
		_, err := env.runner.Run(ctx, mustParse(t, `
steps:
  - op: open
    path: /f
    flags: [O_RDWR, O_CREAT]
  - op: fork
    as: child
  - op: write
    proc: child
    fd: 3
    data: ab
  - op: write
    fd: 3
    data: cd
  - op: exit
    proc: child
  - op: lseek
    fd: 3
    whence: SEEK_CUR
    expect: {result: 4}
`))
		require.NoError(t, err)

		_, ok := env.runner.Process("child")
		assert.False(t, ok)
		assert.Equal(t, 1, env.kernel.Processes())

		data, err := env.root.ReadFile(ctx, "/f")
		require.NoError(t, err)
		assert.Equal(t, "abcd", string(data))
	})

	t.Run("Console", func(t *testing.T) {
		env := newRunnerEnv(t)
		_, err := env.runner.Run(ctx, mustParse(t, `
steps:
  - op: write
    fd: 1
    data: "out\n"
  - op: read
    fd: 0
    count: 8
    expect: {data: "hi\n"}
  - op: lseek
    fd: 0
    expect: {errno: ESPIPE}
`))
		require.NoError(t, err)
		assert.Equal(t, "out\n", env.stdout.String())
	})

	t.Run("Mismatch", func(t *testing.T) {
		env := newRunnerEnv(t)
		results, err := env.runner.Run(ctx, mustParse(t, `
steps:
  - op: open
    path: /missing
    flags: [O_RDONLY]
    expect: {errno: EBADF}
  - op: close
    fd: 0
`))
		var mismatch *MismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, 0, mismatch.Result.Index)
		assert.ErrorIs(t, mismatch.Result.Err, errno.ENOENT)
		assert.Contains(t, err.Error(), "expected EBADF")
		assert.Len(t, results, 1)
	})

	t.Run("UnexpectedError", func(t *testing.T) {
		env := newRunnerEnv(t)
		_, err := env.runner.Run(ctx, mustParse(t, `
steps:
  - op: close
    fd: 40
    expect: {}
`))
		var mismatch *MismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Contains(t, mismatch.Reason, "unexpected error")
	})

	t.Run("ExpectedErrorButSucceeded", func(t *testing.T) {
		env := newRunnerEnv(t)
		_, err := env.runner.Run(ctx, mustParse(t, `
steps:
  - op: close
    fd: 2
    expect: {errno: EBADF}
`))
		var mismatch *MismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Contains(t, mismatch.Reason, "got success")
	})

	t.Run("NoExpectationPassesFailures", func(t *testing.T) {
		env := newRunnerEnv(t)
		results, err := env.runner.Run(ctx, mustParse(t, `
steps:
  - op: dup2
    fd: 30
    newfd: 4
`))
		require.NoError(t, err)
		assert.Equal(t, int64(-1), results[0].Value)
		assert.ErrorIs(t, results[0].Err, errno.EBADF)
	})

	t.Run("ProcessesPersistAcrossRuns", func(t *testing.T) {
		env := newRunnerEnv(t)
		_, err := env.runner.Run(ctx, mustParse(t, "steps:\n  - op: fork\n    as: worker\n"))
		require.NoError(t, err)
		_, ok := env.runner.Process("worker")
		assert.True(t, ok)

		_, err = env.runner.Run(ctx, mustParse(t, "steps:\n  - op: fork\n    as: worker\n"))
		assert.ErrorContains(t, err, "already exists")

		require.NoError(t, env.runner.Close(ctx))
		assert.Equal(t, 0, env.kernel.Processes())
	})

	t.Run("UnknownProcessAtRuntime", func(t *testing.T) {
		env := newRunnerEnv(t)
		s := &Script{Steps: []Step{{Op: OpClose, Proc: "ghost", FD: 3}}}
		_, err := env.runner.Run(ctx, s)
		assert.ErrorContains(t, err, `no process "ghost"`)
	})
}

func TestResultString(t *testing.T) {
	ok := Result{Step: Step{Op: OpRead, FD: 3, Count: 4}, Value: 2, Data: []byte("hi")}
	assert.Equal(t, `[main] read(3, 4) = 2 "hi"`, ok.String())

	failed := Result{Step: Step{Op: OpClose, Proc: "child", FD: 9}, Value: -1, Err: errno.EBADF}
	assert.Equal(t, "[child] close(9) = -1 EBADF (bad file descriptor)", failed.String())
}
