package device

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// cpuMaxGroupSize mirrors the common OpenCL device limit so launch geometry
// chosen against the CPU backend is also valid on a GPU.
const cpuMaxGroupSize = 1024

type cpuBuffer struct {
	label string
	data  []float32
}

func (b *cpuBuffer) Len() int { return len(b.data) }
func (b *cpuBuffer) Label() string { return b.label }
func (b *cpuBuffer) Float32s() []float32 { return b.data }

type cpuKernel struct {
	owner *cpuContext
	prog  Program
	args  Args
}

func (k *cpuKernel) Name() string { return k.prog.Name }

func (k *cpuKernel) SetArg(index int, value any) error {
	if index < 0 || index >= len(k.args) {
		return fmt.Errorf("%s: argument index %d out of range (kernel takes %d)", k.prog.Name, index, len(k.args))
	}
	switch v := value.(type) {
	case *cpuBuffer:
		if v.data == nil {
			return fmt.Errorf("%s: argument %d: %w", k.prog.Name, index, ErrReleased)
		}
	case int32, float32, Local:
	default:
		return fmt.Errorf("%s: argument %d: unsupported type %T", k.prog.Name, index, value)
	}
	k.args[index] = value
	return nil
}

func (k *cpuKernel) SetArgs(values ...any) error {
	if len(values) != len(k.args) {
		return fmt.Errorf("%s: got %d arguments, kernel takes %d", k.prog.Name, len(values), len(k.args))
	}
	for i, v := range values {
		if err := k.SetArg(i, v); err != nil {
			return err
		}
	}
	return nil
}

// cpuContext runs every launch synchronously on the calling goroutine's
// behalf. Work-groups of a single launch run in parallel; launches never
// overlap, which gives the in-order queue semantics for free.
type cpuContext struct {
	workers  int
	kernels  []*cpuKernel
	buffers  []*cpuBuffer
	released bool
}

// NewCPU returns a host-backed context. workers <= 0 uses GOMAXPROCS.
func NewCPU(workers int) Context {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &cpuContext{workers: workers}
}

func (c *cpuContext) Name() string { return fmt.Sprintf("host CPU (%d workers)", c.workers) }
func (c *cpuContext) Kind() Kind { return CPU }
func (c *cpuContext) MaxGroupSize() int { return cpuMaxGroupSize }

func (c *cpuContext) Compile(p Program) (Kernel, error) {
	if c.released {
		return nil, ErrReleased
	}
	if p.Host == nil {
		return nil, fmt.Errorf("%w: %s has no host implementation", ErrUnknownKernel, p.Name)
	}
	if p.Args < 0 {
		return nil, fmt.Errorf("%s: negative argument count", p.Name)
	}
	k := &cpuKernel{owner: c, prog: p, args: make(Args, p.Args)}
	c.kernels = append(c.kernels, k)
	return k, nil
}

func (c *cpuContext) Allocate(label string, n int) (Buffer, error) {
	if c.released {
		return nil, ErrReleased
	}
	if n <= 0 {
		return nil, fmt.Errorf("allocating %s: invalid length %d", label, n)
	}
	b := &cpuBuffer{label: label, data: make([]float32, n)}
	c.buffers = append(c.buffers, b)
	return b, nil
}

func (c *cpuContext) kernel(k Kernel) (*cpuKernel, error) {
	ck, ok := k.(*cpuKernel)
	if !ok || ck.owner != c {
		return nil, fmt.Errorf("kernel %T does not belong to this context", k)
	}
	return ck, nil
}

func (c *cpuContext) buffer(b Buffer) (*cpuBuffer, error) {
	cb, ok := b.(*cpuBuffer)
	if !ok {
		return nil, fmt.Errorf("buffer %T does not belong to this context", b)
	}
	if cb.data == nil {
		return nil, fmt.Errorf("buffer %s: %w", cb.label, ErrReleased)
	}
	return cb, nil
}

func (c *cpuContext) Enqueue(k Kernel, global, local int) error {
	if c.released {
		return ErrReleased
	}
	ck, err := c.kernel(k)
	if err != nil {
		return err
	}
	if err := checkLaunch(global, local); err != nil {
		return fmt.Errorf("enqueueing %s: %w", ck.prog.Name, err)
	}
	for i, a := range ck.args {
		if a == nil {
			return fmt.Errorf("enqueueing %s: argument %d not set", ck.prog.Name, i)
		}
	}
	args := make(Args, len(ck.args))
	copy(args, ck.args)

	groups := global / local
	var g errgroup.Group
	g.SetLimit(c.workers)
	for group := 0; group < groups; group++ {
		group := group
		g.Go(func() error {
			return ck.prog.Host(args, group, local, global)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("running %s: %w", ck.prog.Name, err)
	}
	return nil
}

func (c *cpuContext) Copy(src, dst Buffer) error {
	if c.released {
		return ErrReleased
	}
	s, err := c.buffer(src)
	if err != nil {
		return err
	}
	d, err := c.buffer(dst)
	if err != nil {
		return err
	}
	if len(d.data) < len(s.data) {
		return fmt.Errorf("copying %s into %s: destination holds %d values, need %d", s.label, d.label, len(d.data), len(s.data))
	}
	copy(d.data, s.data)
	return nil
}

func (c *cpuContext) Read(buf Buffer, dst []float32) error {
	if c.released {
		return ErrReleased
	}
	b, err := c.buffer(buf)
	if err != nil {
		return err
	}
	if len(dst) > len(b.data) {
		return fmt.Errorf("reading %s: requested %d values, buffer holds %d", b.label, len(dst), len(b.data))
	}
	copy(dst, b.data)
	return nil
}

func (c *cpuContext) Release() {
	if c.released {
		return
	}
	for _, b := range c.buffers {
		b.data = nil
	}
	for _, k := range c.kernels {
		k.args = nil
	}
	c.buffers = nil
	c.kernels = nil
	c.released = true
}
