// Package grid describes the fixed one-dimensional geometry of a run and the
// flat layout of the state array stored on the device.
package grid

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalid is returned by Validate for geometry that cannot be stored.
var ErrInvalid = errors.New("grid: invalid geometry")

// Grid is immutable for the lifetime of a run. Cell i of the stored array
// (0 <= i < Mtot) is a ghost cell when i < Mbc or i >= Mbc+Mx.
type Grid struct {
	Meqn   int
	Mx     int
	Mbc    int
	XLower float64
	XUpper float64
}

// New validates and returns a grid.
func New(meqn, mx, mbc int, xlower, xupper float64) (Grid, error) {
	g := Grid{Meqn: meqn, Mx: mx, Mbc: mbc, XLower: xlower, XUpper: xupper}
	if err := g.Validate(); err != nil {
		return Grid{}, err
	}
	return g, nil
}

// Validate reports whether the geometry is usable.
func (g Grid) Validate() error {
	switch {
	case g.Meqn < 1:
		return fmt.Errorf("%w: meqn must be positive, got %d", ErrInvalid, g.Meqn)
	case g.Mx < 1:
		return fmt.Errorf("%w: mx must be positive, got %d", ErrInvalid, g.Mx)
	case g.Mbc < 1:
		return fmt.Errorf("%w: mbc must be positive, got %d", ErrInvalid, g.Mbc)
	case !(g.XUpper > g.XLower):
		return fmt.Errorf("%w: domain [%g, %g] is empty", ErrInvalid, g.XLower, g.XUpper)
	}
	return nil
}

// Mtot is the number of stored cells, ghosts included.
func (g Grid) Mtot() int { return g.Mx + 2*g.Mbc }

// Dx is the cell width.
func (g Grid) Dx() float64 { return (g.XUpper - g.XLower) / float64(g.Mx) }

// Size is the number of reals in a state array.
func (g Grid) Size() int { return g.Meqn * g.Mtot() }

// InteriorSize is the number of reals emitted per frame.
func (g Grid) InteriorSize() int { return g.Meqn * g.Mx }

// IsGhost reports whether stored cell i lies outside the physical domain.
func (g Grid) IsGhost(i int) bool { return i < g.Mbc || i >= g.Mbc+g.Mx }

// Index returns the flat offset of component m in stored cell i.
func (g Grid) Index(i, m int) int { return g.Meqn*i + m }

// CenterCell is the interior cell nearest the middle of the domain, counted
// from the first interior cell.
func (g Grid) CenterCell() int { return g.Mx / 2 }

// Centers returns the cell-centre coordinates of the interior cells.
func (g Grid) Centers() []float64 {
	dx := g.Dx()
	xs := make([]float64, g.Mx)
	if g.Mx == 1 {
		xs[0] = g.XLower + 0.5*dx
		return xs
	}
	return floats.Span(xs, g.XLower+0.5*dx, g.XUpper-0.5*dx)
}

// Interior copies the non-ghost cells of a full state array into a new slice
// of length InteriorSize, preserving the component-major-by-cell order.
func (g Grid) Interior(q []float32) ([]float32, error) {
	if len(q) != g.Size() {
		return nil, fmt.Errorf("grid: state has %d values, want %d", len(q), g.Size())
	}
	out := make([]float32, g.InteriorSize())
	copy(out, q[g.Meqn*g.Mbc:g.Meqn*(g.Mbc+g.Mx)])
	return out, nil
}

// Component extracts component m of an interior slice.
func (g Grid) Component(interior []float32, m int) []float64 {
	out := make([]float64, 0, g.Mx)
	for i := 0; i < g.Mx; i++ {
		idx := g.Meqn*i + m
		if idx >= len(interior) {
			break
		}
		out = append(out, float64(interior[idx]))
	}
	return out
}
