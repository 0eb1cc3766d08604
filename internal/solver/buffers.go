package solver

import (
	"fmt"

	"acoustic1d/internal/device"
	"acoustic1d/internal/grid"
)

// launch is the geometry used for the cell-wise kernels.
type launch struct {
	global int
	local  int
}

func cellLaunch(g grid.Grid, local int) launch {
	return launch{global: device.RoundUp(g.Mtot(), local), local: local}
}

// StateBuffers are the device arrays the loop owns for the whole run: the
// current state, the start-of-step copy and the per-cell speed scratch.
type StateBuffers struct {
	ctx  device.Context
	grid grid.Grid
	cell launch

	Q    device.Buffer
	QOld device.Buffer
	S    device.Buffer

	host []float32
}

// NewStateBuffers allocates all three arrays. Any failure is fatal to the run;
// buffers already allocated are released with the context.
func NewStateBuffers(ctx device.Context, g grid.Grid, local int) (*StateBuffers, error) {
	b := &StateBuffers{ctx: ctx, grid: g, cell: cellLaunch(g, local)}
	var err error
	if b.Q, err = ctx.Allocate("q", g.Size()); err != nil {
		return nil, err
	}
	if b.QOld, err = ctx.Allocate("q_old", g.Size()); err != nil {
		return nil, err
	}
	if b.S, err = ctx.Allocate("s", g.Mtot()); err != nil {
		return nil, err
	}
	b.host = make([]float32, g.Size())
	return b, nil
}

// Initialize runs the bound initial-condition kernel once.
func (b *StateBuffers) Initialize(qinit device.Kernel) error {
	if err := b.ctx.Enqueue(qinit, b.cell.global, b.cell.local); err != nil {
		return fmt.Errorf("initial condition: %w", err)
	}
	return nil
}

// SnapshotPrevious copies the current state into the previous-state buffer on
// the device.
func (b *StateBuffers) SnapshotPrevious() error {
	return b.ctx.Copy(b.Q, b.QOld)
}

// ReadBack blocks until the full state is on the host. The returned slice is
// reused by the next call.
func (b *StateBuffers) ReadBack() ([]float32, error) {
	if err := b.ctx.Read(b.Q, b.host); err != nil {
		return nil, err
	}
	return b.host, nil
}

// Interior reads the state back and strips the ghost cells.
func (b *StateBuffers) Interior() ([]float32, error) {
	q, err := b.ReadBack()
	if err != nil {
		return nil, err
	}
	return b.grid.Interior(q)
}
