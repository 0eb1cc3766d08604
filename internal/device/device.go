// Package device abstracts the accelerator the solver runs on: kernels are
// compiled from source, buffers are allocated on the device, and launches,
// copies and reads are issued to one ordered queue.
//
// Two backends exist. The CPU backend is always available and runs the Go
// host version of each program. The OpenCL backend is compiled in with the
// `opencl` build tag.
package device

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupported is returned when a backend is not compiled in or has no
	// usable device.
	ErrUnsupported = errors.New("device: backend unsupported")
	// ErrUnknownKernel is returned by Compile when a program has no entry
	// point the backend can run.
	ErrUnknownKernel = errors.New("device: unknown kernel")
	// ErrReleased is returned for any operation on a released context.
	ErrReleased = errors.New("device: context released")
)

// Kind names a backend.
type Kind string

const (
	CPU    Kind = "cpu"
	OpenCL Kind = "opencl"
)

// ParseKind accepts a backend name in any case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case CPU:
		return CPU, nil
	case OpenCL:
		return OpenCL, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, s)
}

// Local requests work-group local memory of the given size in bytes for a
// kernel argument.
type Local int

// Program is a kernel in source form. Source is OpenCL C; Host is the
// equivalent Go implementation used by the CPU backend. Args is the number of
// arguments the kernel expects.
type Program struct {
	Name   string
	Source string
	Args   int
	Host   GroupFunc
}

// GroupFunc executes one work-group of a launch on the host.
type GroupFunc func(args Args, group, groupSize, globalSize int) error

// Buffer is a device-resident array of float32.
type Buffer interface {
	Len() int
	Label() string
}

// Kernel is a compiled program with bound arguments.
type Kernel interface {
	Name() string
	SetArg(index int, value any) error
	SetArgs(values ...any) error
}

// Context owns a device, its single command queue and everything allocated
// on it. Operations execute in the order they are issued.
type Context interface {
	Name() string
	Kind() Kind
	// MaxGroupSize is the largest work-group size a launch may use.
	MaxGroupSize() int
	Compile(p Program) (Kernel, error)
	Allocate(label string, n int) (Buffer, error)
	// Enqueue launches k over global work items split into groups of local.
	Enqueue(k Kernel, global, local int) error
	// Copy copies the whole of src into dst.
	Copy(src, dst Buffer) error
	// Read blocks until len(dst) values from the start of buf are on the host.
	Read(buf Buffer, dst []float32) error
	// Release frees every kernel and buffer and the device itself. It is safe
	// to call more than once.
	Release()
}

// Open acquires a context for the requested backend.
func Open(kind Kind) (Context, error) {
	switch kind {
	case CPU, "":
		return NewCPU(0), nil
	case OpenCL:
		return openOpenCL()
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, kind)
}

// BuildError carries the compiler diagnostics for a program that failed to
// build.
type BuildError struct {
	Program string
	Log     string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building %s: %s", e.Program, e.Log)
}

// RoundUp returns the smallest multiple of local that is >= n.
func RoundUp(n, local int) int {
	if local <= 0 {
		return n
	}
	return ((n + local - 1) / local) * local
}

func checkLaunch(global, local int) error {
	if local <= 0 {
		return fmt.Errorf("invalid work-group size %d", local)
	}
	if global <= 0 || global%local != 0 {
		return fmt.Errorf("global size %d is not a positive multiple of group size %d", global, local)
	}
	return nil
}
