// Package kernels holds the four stage programs of the acoustics solver. Each
// program carries its OpenCL C source for the OpenCL backend and a Go version
// of the same work-item logic for the CPU backend.
//
// State arrays are laid out row-major by cell: component m of stored cell i
// lives at q[meqn*i+m]. Component 0 is pressure, component 1 velocity.
package kernels

import (
	"fmt"
	"strings"
)

// Boundary selects what the bc1 program writes into ghost cells.
type Boundary int32

const (
	// Outflow copies the nearest interior cell (zero-order extrapolation).
	Outflow Boundary = iota
	// Wall mirrors the interior and negates velocity.
	Wall
	// Periodic wraps around to the opposite end of the domain.
	Periodic
)

func (b Boundary) String() string {
	switch b {
	case Outflow:
		return "outflow"
	case Wall:
		return "wall"
	case Periodic:
		return "periodic"
	}
	return fmt.Sprintf("Boundary(%d)", int32(b))
}

// ParseBoundary maps a policy name to its Boundary value.
func ParseBoundary(s string) (Boundary, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "outflow", "extrap", "":
		return Outflow, nil
	case "wall", "reflect", "reflecting":
		return Wall, nil
	case "periodic":
		return Periodic, nil
	}
	return 0, fmt.Errorf("unknown boundary policy %q", s)
}

// workItems calls fn for every global id in group that lies below limit.
func workItems(group, groupSize, limit int, fn func(gid, lid int)) {
	base := group * groupSize
	for lid := 0; lid < groupSize; lid++ {
		gid := base + lid
		if gid >= limit {
			return
		}
		fn(gid, lid)
	}
}

func checkLen(name string, buf []float32, want int) error {
	if len(buf) < want {
		return fmt.Errorf("%s: buffer holds %d values, need %d", name, len(buf), want)
	}
	return nil
}
