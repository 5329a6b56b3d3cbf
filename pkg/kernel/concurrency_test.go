package kernel

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentOpensGetUniqueDescriptors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 256, withOpenMax(128))
	p := env.newProcess(t)

	const workers, perWorker = 8, 16

	var (
		mu  sync.Mutex
		fds = make(map[int]bool)
		wg  sync.WaitGroup
	)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				fd, err := p.OpenPath(ctx, fmt.Sprintf("/w%d/%d", w, i), rwCreate, 0o644)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, fds[fd], "descriptor %d handed out twice", fd)
				fds[fd] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, fds, workers*perWorker)
	assert.Len(t, p.Descriptors(), workers*perWorker)

	_, err := p.OpenPath(ctx, "/one-too-many", rwCreate, 0o644)
	assert.Equal(t, errno.EMFILE, err)
	assertRefsMatchCells(t, env.kernel)
}

// TestRandomInterleavingKeepsRefsConsistent runs random open, dup2, close
// and fork sequences from several goroutines, then checks that every
// record's reference count equals the cells bound to it.
func TestRandomInterleavingKeepsRefsConsistent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 32, withOpenMax(16))
	root := env.newProcess(t)

	procs := []*Process{root}
	var procsMu sync.Mutex
	pick := func(rng *rand.Rand) *Process {
		procsMu.Lock()
		defer procsMu.Unlock()
		return procs[rng.Intn(len(procs))]
	}

	const workers, steps = 6, 400

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w + 1)))
			for range steps {
				p := pick(rng)
				switch op := rng.Intn(10); {
				case op < 4:
					_, _ = p.OpenPath(ctx, fmt.Sprintf("/f%d", rng.Intn(8)), rwCreate, 0o644)
				case op < 6:
					_, _ = p.Dup2(ctx, rng.Intn(16), rng.Intn(16))
				case op < 9:
					_ = p.Close(ctx, rng.Intn(16))
				default:
					child, err := p.Fork(ctx)
					if err == nil {
						procsMu.Lock()
						procs = append(procs, child)
						procsMu.Unlock()
					}
				}
			}
		}()
	}
	wg.Wait()

	assertRefsMatchCells(t, env.kernel)
	assert.Equal(t, env.kernel.Table().InUse(), env.fs.live())

	require.NoError(t, env.kernel.Shutdown(ctx))
	assert.Zero(t, env.kernel.Table().InUse())
	assert.Zero(t, env.fs.live())
}

func TestCloseRacingRead(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 16)
	require.NoError(t, env.root.WriteFile(ctx, "/f", []byte("payload"), 0o644))

	for round := range 50 {
		p := env.newProcess(t)
		fd := mustOpenPath(t, p, "/f", vnode.O_RDONLY)

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				buf := make([]byte, 2)
				for {
					_, err := p.Read(ctx, fd, buf)
					if err != nil {
						assert.Equal(t, errno.EBADF, err, "round %d", round)
						return
					}
					_, _ = p.Lseek(ctx, fd, 0, vnode.SEEK_SET)
				}
			}()
		}

		require.NoError(t, p.Close(ctx, fd))
		wg.Wait()
		require.NoError(t, p.Exit(ctx))
	}

	assert.Zero(t, env.fs.live())
	assert.Zero(t, env.kernel.Table().InUse())
}

func TestConcurrentDup2SameTarget(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 64)
	p := env.newProcess(t)

	sources := make([]int, 8)
	for i := range sources {
		sources[i] = mustOpenPath(t, p, fmt.Sprintf("/s%d", i), rwCreate)
	}
	const target = 40

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				fd, err := p.Dup2(ctx, src, target)
				if err != nil {
					assert.Equal(t, errno.EBUSY, err)
					continue
				}
				assert.Equal(t, target, fd)
			}
		}()
	}
	wg.Wait()

	assert.Contains(t, p.Descriptors(), target)
	assertRefsMatchCells(t, env.kernel)
	assert.Equal(t, len(sources), env.fs.live())
}
