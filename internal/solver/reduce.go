package solver

import (
	"fmt"

	"acoustic1d/internal/device"
	"acoustic1d/internal/kernels"
)

// Pass is one launch of the max_speed kernel.
type Pass struct {
	Length    int // active entries folded by this pass
	GroupSize int
	Groups    int // entries left for the next pass
	Global    int // Groups * GroupSize
}

// Plan lays out the reduction of n values with groups of groupSize. The group
// size never exceeds the active length, and shrinks to the number of groups
// once that falls below it so the last pass is a single group.
func Plan(n, groupSize int) ([]Pass, error) {
	if n < 1 {
		return nil, fmt.Errorf("reduction over %d values", n)
	}
	if n > 1 && groupSize < 2 {
		return nil, fmt.Errorf("reduction group size must be at least 2, got %d", groupSize)
	}
	var passes []Pass
	l := min(groupSize, n)
	for length := n; length > 1; {
		groups := (length-1)/l + 1
		passes = append(passes, Pass{Length: length, GroupSize: l, Groups: groups, Global: groups * l})
		length = groups
		if groups < l {
			l = groups
		}
	}
	return passes, nil
}

// Reducer folds the speed scratch buffer to its maximum on the device and
// moves only that scalar to the host. Passes alternate between the scratch
// buffer and a partial buffer so that no group reads a slot another group of
// the same pass writes.
type Reducer struct {
	ctx     device.Context
	kernel  device.Kernel
	scratch device.Buffer
	partial device.Buffer
	passes  []Pass
	result  [1]float32
}

// NewReducer compiles max_speed and allocates the partial buffer.
func NewReducer(ctx device.Context, scratch device.Buffer, groupSize int) (*Reducer, error) {
	passes, err := Plan(scratch.Len(), groupSize)
	if err != nil {
		return nil, err
	}
	r := &Reducer{ctx: ctx, scratch: scratch, passes: passes}
	if len(passes) == 0 {
		return r, nil
	}
	if r.kernel, err = ctx.Compile(kernels.MaxSpeed); err != nil {
		return nil, fmt.Errorf("compiling %s: %w", kernels.MaxSpeed.Name, err)
	}
	if r.partial, err = ctx.Allocate("speed partials", passes[0].Groups); err != nil {
		return nil, err
	}
	return r, nil
}

// Passes returns the launch plan.
func (r *Reducer) Passes() []Pass { return r.passes }

// Reduce enqueues every pass and blocks on the single-value read.
func (r *Reducer) Reduce() (float32, error) {
	src, dst := r.scratch, r.partial
	for i, p := range r.passes {
		if err := r.kernel.SetArgs(src, dst, kernels.LocalBytes(p.GroupSize), int32(p.Length)); err != nil {
			return 0, fmt.Errorf("binding reduction pass %d: %w", i, err)
		}
		if err := r.ctx.Enqueue(r.kernel, p.Global, p.GroupSize); err != nil {
			return 0, fmt.Errorf("reduction pass %d: %w", i, err)
		}
		src, dst = dst, src
	}
	if err := r.ctx.Read(src, r.result[:]); err != nil {
		return 0, fmt.Errorf("reading reduced speed: %w", err)
	}
	return r.result[0], nil
}
