package script

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/marmos91/dittofd/internal/logger"
	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/kernel"
	"github.com/marmos91/dittofd/pkg/usermem"
)

// DefaultMemorySize is the address-space size given to the main process.
const DefaultMemorySize = 64 * 1024

// pathAddr is where open stages its path argument.
const pathAddr = usermem.Addr(0)

// Result is the outcome of one executed step.
type Result struct {
	Index int
	Step  Step

	// Value is the syscall's return value (-1 on failure)
	Value int64

	// Data holds the bytes returned by read
	Data []byte

	Err error
}

// String formats the result like a syscall trace line.
func (r Result) String() string {
	var call string
	st := r.Step
	switch st.Op {
	case OpOpen:
		call = fmt.Sprintf("open(%q, %v)", st.Path, st.Flags)
	case OpClose:
		call = fmt.Sprintf("close(%d)", st.FD)
	case OpRead:
		call = fmt.Sprintf("read(%d, %d)", st.FD, st.Count)
	case OpWrite:
		call = fmt.Sprintf("write(%d, %q)", st.FD, st.Data)
	case OpLseek:
		call = fmt.Sprintf("lseek(%d, %d, %s)", st.FD, st.Offset, st.Whence)
	case OpDup2:
		call = fmt.Sprintf("dup2(%d, %d)", st.FD, st.NewFD)
	case OpFork:
		call = fmt.Sprintf("fork() as %s", st.As)
	case OpExit:
		call = "exit()"
	}

	out := fmt.Sprintf("[%s] %s = %d", st.process(), call, r.Value)
	if r.Err != nil {
		out += " " + errno.Errno(errno.Code(r.Err)).Symbol() + " (" + r.Err.Error() + ")"
	}
	if st.Op == OpRead && r.Err == nil {
		out += " " + strconv.Quote(string(r.Data))
	}
	return out
}

// MismatchError reports a step whose outcome differs from its expectation.
type MismatchError struct {
	Result Result
	Reason string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("step %d (%s): %s", e.Result.Index, e.Result.Step.Op, e.Reason)
}

// Runner executes scripts against one kernel. Processes persist across Run
// calls, so scripts can be chained.
type Runner struct {
	k       *kernel.Kernel
	memSize int
	procs   map[string]*kernel.Process
}

// NewRunner creates a runner whose main process gets memSize bytes of
// address space (0 = DefaultMemorySize).
func NewRunner(k *kernel.Kernel, memSize int) *Runner {
	if memSize <= 0 {
		memSize = DefaultMemorySize
	}
	return &Runner{k: k, memSize: memSize, procs: make(map[string]*kernel.Process)}
}

// Process returns the live process registered under name.
func (r *Runner) Process(name string) (*kernel.Process, bool) {
	p, ok := r.procs[name]
	return p, ok
}

// Run executes every step in order and returns the results so far. It stops
// at the first step whose expectation fails (*MismatchError) or that cannot
// be issued at all.
func (r *Runner) Run(ctx context.Context, s *Script) ([]Result, error) {
	logger.Info("Running script %q (%d steps)", s.Name, len(s.Steps))

	results := make([]Result, 0, len(s.Steps))
	for i, st := range s.Steps {
		res, err := r.step(ctx, i, st)
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i, st.Op, err)
		}
		results = append(results, res)
		logger.Debug("SCRIPT: %s", res)

		if err := check(res); err != nil {
			return results, err
		}
	}
	return results, nil
}

// step issues one syscall. The returned error means the step could not be
// issued; syscall failures are carried in Result.Err.
func (r *Runner) step(ctx context.Context, i int, st Step) (Result, error) {
	res := Result{Index: i, Step: st}

	p, err := r.process(ctx, st.process())
	if err != nil {
		return res, err
	}

	switch st.Op {
	case OpOpen:
		flags, err := st.flags()
		if err != nil {
			return res, err
		}
		if err := usermem.CopyStringOut(ctx, p.Memory(), pathAddr, st.Path); err != nil {
			return res, fmt.Errorf("stage path: %w", err)
		}
		fd, err := p.Open(ctx, pathAddr, flags, st.Mode)
		res.Value, res.Err = int64(fd), err

	case OpClose:
		res.Err = p.Close(ctx, st.FD)

	case OpRead:
		buf := make([]byte, st.Count)
		n, err := p.Read(ctx, st.FD, buf)
		res.Value, res.Data, res.Err = int64(n), buf[:n], err

	case OpWrite:
		n, err := p.Write(ctx, st.FD, []byte(st.Data))
		res.Value, res.Err = int64(n), err

	case OpLseek:
		whence, err := st.whence()
		if err != nil {
			return res, err
		}
		res.Value, res.Err = p.Lseek(ctx, st.FD, st.Offset, whence)

	case OpDup2:
		fd, err := p.Dup2(ctx, st.FD, st.NewFD)
		res.Value, res.Err = int64(fd), err

	case OpFork:
		if _, exists := r.procs[st.As]; exists {
			return res, fmt.Errorf("process %q already exists", st.As)
		}
		child, err := p.Fork(ctx)
		if err == nil {
			r.procs[st.As] = child
			res.Value = int64(child.PID())
		}
		res.Err = err

	case OpExit:
		res.Err = p.Exit(ctx)
		delete(r.procs, st.process())

	default:
		return res, fmt.Errorf("unknown op %q", st.Op)
	}

	if res.Err != nil {
		res.Value = -1
	}
	return res, nil
}

// process returns the named process, creating main on first use.
func (r *Runner) process(ctx context.Context, name string) (*kernel.Process, error) {
	if p, ok := r.procs[name]; ok {
		return p, nil
	}
	if name != MainProcess {
		return nil, fmt.Errorf("no process %q", name)
	}

	p, err := r.k.NewProcess(ctx, usermem.NewBytesIO(r.memSize))
	if err != nil {
		return nil, fmt.Errorf("create process: %w", err)
	}
	r.procs[name] = p
	return p, nil
}

// check compares a result with its step's expectation.
func check(res Result) error {
	exp := res.Step.Expect
	if exp == nil {
		return nil
	}

	if exp.Errno == "" && res.Err != nil {
		return &MismatchError{Result: res, Reason: fmt.Sprintf("unexpected error: %v", res.Err)}
	}
	if exp.Errno != "" {
		want, _ := errno.Parse(exp.Errno)
		if res.Err == nil {
			return &MismatchError{Result: res, Reason: fmt.Sprintf("expected %s, got success", exp.Errno)}
		}
		if !errors.Is(res.Err, want) {
			return &MismatchError{Result: res, Reason: fmt.Sprintf("expected %s, got %v", exp.Errno, res.Err)}
		}
	}

	if exp.Result != nil && *exp.Result != res.Value {
		return &MismatchError{Result: res, Reason: fmt.Sprintf("expected result %d, got %d", *exp.Result, res.Value)}
	}
	if exp.Data != nil && *exp.Data != string(res.Data) {
		return &MismatchError{Result: res, Reason: fmt.Sprintf("expected data %q, got %q", *exp.Data, res.Data)}
	}
	return nil
}

// Close exits every process the runner still holds.
func (r *Runner) Close(ctx context.Context) error {
	var errs []error
	for name, p := range r.procs {
		if err := p.Exit(ctx); err != nil {
			errs = append(errs, fmt.Errorf("exit %s: %w", name, err))
		}
		delete(r.procs, name)
	}
	return errors.Join(errs...)
}
