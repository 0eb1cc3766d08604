package solver

import (
	"errors"
	"fmt"
	"math"

	"acoustic1d/internal/grid"
	"acoustic1d/internal/kernels"
)

// ErrInvalidProblem wraps every validation failure from Problem.Validate.
var ErrInvalidProblem = errors.New("solver: invalid problem")

// Problem holds the administrative run parameters. They are fixed before the
// loop starts and never change during a run.
type Problem struct {
	Grid grid.Grid

	// Density and bulk modulus of the medium.
	Rho  float64
	Bulk float64

	Boundary kernels.Boundary
	// PulseCenter is the interior cell the initial pressure pulse sits on.
	PulseCenter int
	// PulseWidth > 0 selects a Gaussian pulse, otherwise a single cell.
	PulseWidth float64

	TStart float64
	TFinal float64
	// Outputs is the number of output intervals between TStart and TFinal.
	Outputs int

	DtInitial float64
	DtMin     float64
	DtMax     float64

	// DesiredCourant is the target the controller rescales dt toward.
	// MaxCourant only flags steps that exceeded it; they are not retaken.
	DesiredCourant float64
	MaxCourant     float64

	// MaxSteps bounds the number of iterations.
	MaxSteps int
	// GroupSize for launches and the first reduction pass; 0 picks Mtot/2.
	GroupSize int
}

// Reference returns the problem the solver was designed around: a unit
// pressure pulse in the middle of [-1, 1] on 100 cells between reflecting
// walls, run to t = 1.
func Reference() Problem {
	g := grid.Grid{Meqn: 2, Mx: 100, Mbc: 2, XLower: -1, XUpper: 1}
	return Problem{
		Grid:           g,
		Rho:            1,
		Bulk:           4,
		Boundary:       kernels.Wall,
		PulseCenter:    g.CenterCell(),
		TStart:         0,
		TFinal:         1,
		Outputs:        16,
		DtInitial:      g.Dx() / 2,
		DtMin:          0,
		DtMax:          1,
		DesiredCourant: 1,
		MaxCourant:     1,
		MaxSteps:       1000,
	}
}

// OutputInterval is the simulated time between scheduled frames.
func (p Problem) OutputInterval() float64 {
	return (p.TFinal - p.TStart) / float64(p.Outputs)
}

// SoundSpeed is sqrt(K/rho).
func (p Problem) SoundSpeed() float64 { return math.Sqrt(p.Bulk / p.Rho) }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidProblem, fmt.Sprintf(format, args...))
}

// Validate checks every parameter the loop relies on.
func (p Problem) Validate() error {
	if err := p.Grid.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProblem, err)
	}
	if p.Grid.Meqn != 2 {
		return invalid("acoustics needs meqn = 2, got %d", p.Grid.Meqn)
	}
	if p.Boundary != kernels.Outflow && p.Grid.Mx < p.Grid.Mbc {
		return invalid("%s boundaries need mx >= mbc", p.Boundary)
	}
	switch {
	case !(p.Rho > 0) || !(p.Bulk > 0):
		return invalid("rho and K must be positive, got rho=%g K=%g", p.Rho, p.Bulk)
	case p.PulseCenter < 0 || p.PulseCenter >= p.Grid.Mx:
		return invalid("pulse center %d outside [0, %d)", p.PulseCenter, p.Grid.Mx)
	case !(p.TFinal > p.TStart):
		return invalid("t_final %g must be after t_start %g", p.TFinal, p.TStart)
	case p.Outputs < 1:
		return invalid("output count must be positive, got %d", p.Outputs)
	case !(p.DtInitial > 0):
		return invalid("initial dt must be positive, got %g", p.DtInitial)
	case !(p.DtMax > 0):
		return invalid("dt max must be positive, got %g", p.DtMax)
	case p.DtMin < 0 || p.DtMin > p.DtMax:
		return invalid("dt min %g must lie in [0, %g]", p.DtMin, p.DtMax)
	case !(p.DesiredCourant > 0):
		return invalid("desired courant must be positive, got %g", p.DesiredCourant)
	case p.MaxCourant < 0:
		return invalid("max courant must not be negative, got %g", p.MaxCourant)
	case p.MaxSteps < 1:
		return invalid("max steps must be positive, got %d", p.MaxSteps)
	case p.GroupSize < 0 || p.GroupSize == 1:
		return invalid("group size must be 0 (auto) or at least 2, got %d", p.GroupSize)
	}
	return nil
}
