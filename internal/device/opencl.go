//go:build opencl

package device

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
)

type clBuffer struct {
	label string
	n     int
	mem   *cl.MemObject
}

func (b *clBuffer) Len() int { return b.n }
func (b *clBuffer) Label() string { return b.label }

type clKernel struct {
	owner   *clContext
	name    string
	args    int
	program *cl.Program
	kernel  *cl.Kernel
}

func (k *clKernel) Name() string { return k.name }

func (k *clKernel) SetArg(index int, value any) error {
	if index < 0 || index >= k.args {
		return fmt.Errorf("%s: argument index %d out of range (kernel takes %d)", k.name, index, k.args)
	}
	var err error
	switch v := value.(type) {
	case *clBuffer:
		if v.mem == nil {
			return fmt.Errorf("%s: argument %d: %w", k.name, index, ErrReleased)
		}
		err = k.kernel.SetArgBuffer(index, v.mem)
	case int32:
		err = k.kernel.SetArgInt32(index, v)
	case float32:
		err = k.kernel.SetArgFloat32(index, v)
	case Local:
		err = k.kernel.SetArgLocal(index, int(v))
	default:
		return fmt.Errorf("%s: argument %d: unsupported type %T", k.name, index, value)
	}
	if err != nil {
		return fmt.Errorf("%s: setting argument %d: %w", k.name, index, err)
	}
	return nil
}

func (k *clKernel) SetArgs(values ...any) error {
	if len(values) != k.args {
		return fmt.Errorf("%s: got %d arguments, kernel takes %d", k.name, len(values), k.args)
	}
	for i, v := range values {
		if err := k.SetArg(i, v); err != nil {
			return err
		}
	}
	return nil
}

type clContext struct {
	context      *cl.Context
	queue        *cl.CommandQueue
	device       *cl.Device
	deviceName   string
	maxGroupSize int
	kernels      []*clKernel
	buffers      []*clBuffer
}

const float32Size = int(unsafe.Sizeof(float32(0)))

func pickDevice(platforms []*cl.Platform, kind cl.DeviceType) *cl.Device {
	for _, p := range platforms {
		devices, err := p.GetDevices(kind)
		if err != nil && err != cl.ErrDeviceNotFound {
			continue
		}
		if len(devices) > 0 {
			return devices[0]
		}
	}
	return nil
}

// openOpenCL prefers the first GPU and falls back to the first CPU device.
func openOpenCL() (Context, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: no OpenCL platforms available; ensure a vendor driver is installed and detected by `clinfo`", ErrUnsupported)
	}
	device := pickDevice(platforms, cl.DeviceTypeGPU)
	if device == nil {
		device = pickDevice(platforms, cl.DeviceTypeCPU)
	}
	if device == nil {
		return nil, fmt.Errorf("%w: no suitable OpenCL devices found", ErrUnsupported)
	}

	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	queue, err := context.CreateCommandQueue(device, 0)
	if err != nil {
		context.Release()
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	maxGroup := device.MaxWorkGroupSize()
	if maxGroup <= 0 {
		maxGroup = 1
	}
	return &clContext{
		context:      context,
		queue:        queue,
		device:       device,
		deviceName:   device.Name(),
		maxGroupSize: maxGroup,
	}, nil
}

func (c *clContext) Name() string { return c.deviceName }
func (c *clContext) Kind() Kind { return OpenCL }
func (c *clContext) MaxGroupSize() int { return c.maxGroupSize }

func (c *clContext) Compile(p Program) (Kernel, error) {
	if c.context == nil {
		return nil, ErrReleased
	}
	if strings.TrimSpace(p.Source) == "" {
		return nil, fmt.Errorf("%w: %s has no OpenCL source", ErrUnknownKernel, p.Name)
	}
	program, err := c.context.CreateProgramWithSource([]string{p.Source})
	if err != nil {
		return nil, fmt.Errorf("creating program %s: %w", p.Name, err)
	}
	if err := program.BuildProgram([]*cl.Device{c.device}, ""); err != nil {
		program.Release()
		var buildErr cl.BuildError
		if errors.As(err, &buildErr) {
			return nil, &BuildError{Program: p.Name, Log: string(buildErr)}
		}
		return nil, &BuildError{Program: p.Name, Log: err.Error()}
	}
	kernel, err := program.CreateKernel(p.Name)
	if err != nil {
		program.Release()
		return nil, fmt.Errorf("%w: creating %s: %v", ErrUnknownKernel, p.Name, err)
	}
	k := &clKernel{owner: c, name: p.Name, args: p.Args, program: program, kernel: kernel}
	c.kernels = append(c.kernels, k)
	return k, nil
}

func (c *clContext) Allocate(label string, n int) (Buffer, error) {
	if c.context == nil {
		return nil, ErrReleased
	}
	if n <= 0 {
		return nil, fmt.Errorf("allocating %s: invalid length %d", label, n)
	}
	mem, err := c.context.CreateEmptyBuffer(cl.MemReadWrite, n*float32Size)
	if err != nil {
		return nil, fmt.Errorf("allocating %s: %w", label, err)
	}
	b := &clBuffer{label: label, n: n, mem: mem}
	c.buffers = append(c.buffers, b)
	return b, nil
}

func (c *clContext) buffer(b Buffer) (*clBuffer, error) {
	cb, ok := b.(*clBuffer)
	if !ok {
		return nil, fmt.Errorf("buffer %T does not belong to this context", b)
	}
	if cb.mem == nil {
		return nil, fmt.Errorf("buffer %s: %w", cb.label, ErrReleased)
	}
	return cb, nil
}

func (c *clContext) Enqueue(k Kernel, global, local int) error {
	if c.queue == nil {
		return ErrReleased
	}
	ck, ok := k.(*clKernel)
	if !ok || ck.owner != c {
		return fmt.Errorf("kernel %T does not belong to this context", k)
	}
	if err := checkLaunch(global, local); err != nil {
		return fmt.Errorf("enqueueing %s: %w", ck.name, err)
	}
	if _, err := c.queue.EnqueueNDRangeKernel(ck.kernel, nil, []int{global}, []int{local}, nil); err != nil {
		return fmt.Errorf("enqueueing %s: %w", ck.name, err)
	}
	return nil
}

func (c *clContext) Copy(src, dst Buffer) error {
	if c.queue == nil {
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
	if d.n < s.n {
		return fmt.Errorf("copying %s into %s: destination holds %d values, need %d", s.label, d.label, d.n, s.n)
	}
	if _, err := c.queue.EnqueueCopyBuffer(s.mem, d.mem, 0, 0, s.n*float32Size, nil); err != nil {
		return fmt.Errorf("copying %s into %s: %w", s.label, d.label, err)
	}
	return nil
}

func (c *clContext) Read(buf Buffer, dst []float32) error {
	if c.queue == nil {
		return ErrReleased
	}
	b, err := c.buffer(buf)
	if err != nil {
		return err
	}
	if len(dst) > b.n {
		return fmt.Errorf("reading %s: requested %d values, buffer holds %d", b.label, len(dst), b.n)
	}
	if len(dst) == 0 {
		return nil
	}
	if _, err := c.queue.EnqueueReadBufferFloat32(b.mem, true, 0, dst, nil); err != nil {
		return fmt.Errorf("reading %s: %w", b.label, err)
	}
	return nil
}

func (c *clContext) Release() {
	if c.queue != nil {
		_ = c.queue.Finish()
	}
	for i := len(c.buffers) - 1; i >= 0; i-- {
		if b := c.buffers[i]; b.mem != nil {
			b.mem.Release()
			b.mem = nil
		}
	}
	c.buffers = nil
	for i := len(c.kernels) - 1; i >= 0; i-- {
		k := c.kernels[i]
		if k.kernel != nil {
			k.kernel.Release()
			k.kernel = nil
		}
		if k.program != nil {
			k.program.Release()
			k.program = nil
		}
	}
	c.kernels = nil
	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}
	if c.context != nil {
		c.context.Release()
		c.context = nil
	}
}
