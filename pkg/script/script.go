// Package script runs YAML descriptions of syscall sequences against a
// kernel and checks each step's outcome.
//
// Example:
//
//	name: shared cursor
//	steps:
//	  - op: open
//	    path: /f
//	    flags: [O_RDWR, O_CREAT]
//	    expect: {result: 3}
//	  - op: dup2
//	    fd: 3
//	    newfd: 7
//	  - op: write
//	    fd: 7
//	    data: hello
//	  - op: lseek
//	    fd: 3
//	    whence: SEEK_CUR
//	    expect: {result: 5}
//
// Steps run in the process named by proc ("main" when omitted); "main" is
// created on first use, others come from fork steps.
package script

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
	"gopkg.in/yaml.v3"
)

// MainProcess is the process steps run in by default.
const MainProcess = "main"

// Ops accepted in Step.Op.
const (
	OpOpen  = "open"
	OpClose = "close"
	OpRead  = "read"
	OpWrite = "write"
	OpLseek = "lseek"
	OpDup2  = "dup2"
	OpFork  = "fork"
	OpExit  = "exit"
)

// Script is a named sequence of syscall steps.
type Script struct {
	Name  string `yaml:"name" json:"name,omitempty"`
	Steps []Step `yaml:"steps" json:"steps" validate:"required,min=1,dive"`
}

// Step is one syscall.
type Step struct {
	// Op is the syscall to issue
	Op string `yaml:"op" json:"op" validate:"required,oneof=open close read write lseek dup2 fork exit" jsonschema:"enum=open,enum=close,enum=read,enum=write,enum=lseek,enum=dup2,enum=fork,enum=exit"`

	// Proc names the calling process (default "main")
	Proc string `yaml:"proc,omitempty" json:"proc,omitempty"`

	// Path is the file opened by open; it is staged in the process's
	// memory and passed by address
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// Flags are open flag names, e.g. [O_RDWR, O_CREAT]
	Flags []string `yaml:"flags,omitempty" json:"flags,omitempty" validate:"dive,oneof=O_RDONLY O_WRONLY O_RDWR O_CREAT O_EXCL O_TRUNC O_APPEND"`

	// Mode is the permission mode for created files
	Mode uint32 `yaml:"mode,omitempty" json:"mode,omitempty"`

	// FD is the descriptor for close, read, write, lseek and the oldfd of dup2
	FD int `yaml:"fd,omitempty" json:"fd,omitempty"`

	// NewFD is the target descriptor of dup2
	NewFD int `yaml:"newfd,omitempty" json:"newfd,omitempty"`

	// Data is the payload of write
	Data string `yaml:"data,omitempty" json:"data,omitempty"`

	// Count is the buffer size of read
	Count int `yaml:"count,omitempty" json:"count,omitempty" validate:"gte=0"`

	// Offset and Whence are the lseek arguments
	Offset int64  `yaml:"offset,omitempty" json:"offset,omitempty"`
	Whence string `yaml:"whence,omitempty" json:"whence,omitempty" validate:"omitempty,oneof=SEEK_SET SEEK_CUR SEEK_END"`

	// As names the child created by fork
	As string `yaml:"as,omitempty" json:"as,omitempty"`

	// Expect checks the outcome; without it any outcome passes
	Expect *Expect `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Result is the returned value: the descriptor, byte count or offset;
	// -1 on failure
	Result *int64 `yaml:"result,omitempty" json:"result,omitempty"`

	// Errno is the expected error symbol, e.g. EBADF; empty means success
	Errno string `yaml:"errno,omitempty" json:"errno,omitempty"`

	// Data is the expected payload of read
	Data *string `yaml:"data,omitempty" json:"data,omitempty"`
}

var validate = validator.New()

// Parse decodes and validates a script. Unknown fields are rejected.
func Parse(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty script")
		}
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses the script at path.
func Load(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Validate checks struct tags and the per-op required arguments.
func (s *Script) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return err
	}

	forked := map[string]bool{MainProcess: true}
	for i, st := range s.Steps {
		proc := st.process()
		if !forked[proc] {
			return fmt.Errorf("steps[%d]: process %q used before it is forked", i, proc)
		}

		switch st.Op {
		case OpOpen:
			if st.Path == "" {
				return fmt.Errorf("steps[%d]: open requires path", i)
			}
			if len(st.Flags) == 0 {
				return fmt.Errorf("steps[%d]: open requires flags", i)
			}
		case OpFork:
			if st.As == "" {
				return fmt.Errorf("steps[%d]: fork requires as", i)
			}
			if forked[st.As] {
				return fmt.Errorf("steps[%d]: process %q already exists", i, st.As)
			}
			forked[st.As] = true
		}

		if st.Expect != nil && st.Expect.Errno != "" {
			if _, ok := errno.Parse(st.Expect.Errno); !ok {
				return fmt.Errorf("steps[%d]: unknown errno %q", i, st.Expect.Errno)
			}
		}
	}
	return nil
}

func (st Step) process() string {
	if st.Proc == "" {
		return MainProcess
	}
	return st.Proc
}

// flags resolves the flag names.
func (st Step) flags() (int, error) {
	return vnode.ParseFlags(st.Flags)
}

// whence resolves the whence name (SEEK_SET when empty).
func (st Step) whence() (int, error) {
	if st.Whence == "" {
		return vnode.SEEK_SET, nil
	}
	return vnode.ParseWhence(st.Whence)
}
