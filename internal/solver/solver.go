// Package solver drives the explicit time march of the acoustics system on a
// device: it sequences boundary fill, update and speed reduction each step,
// revises the step size against the Courant target and emits frames on a
// fixed output schedule.
package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"acoustic1d/internal/device"
	"acoustic1d/internal/kernels"
	"acoustic1d/internal/output"
)

// Phase is the loop's lifecycle state.
type Phase int

const (
	Uninitialized Phase = iota
	Initialized
	Stepping
	Finished
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Stepping:
		return "stepping"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Outcome distinguishes a run that reached t_final from one that ran out of
// iterations first.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeExhausted
)

func (o Outcome) String() string {
	if o == OutcomeExhausted {
		return "exhausted"
	}
	return "completed"
}

// TimeState is a snapshot of the loop's clock.
type TimeState struct {
	T, TOld, Dt    float64
	DtMin, DtMax   float64
	TStart, TFinal float64
	NextOutput     float64
	OutputInterval float64
	Frame          int
}

// Result summarises a run.
type Result struct {
	Outcome Outcome
	Steps   int
	Frames  int
	T       float64
	// Dt is the step size the next step would have used.
	Dt float64
	// MaxCourant is the largest Courant number observed; Violations counts
	// steps whose Courant number exceeded Problem.MaxCourant.
	MaxCourant float64
	Violations int
	Device     string
}

// Solver owns a device context and everything allocated on it.
type Solver struct {
	ctx     device.Context
	prob    Problem
	sink    output.Sink
	log     logrus.FieldLogger
	phase   Phase
	bufs    *StateBuffers
	reducer *Reducer
	control Controller
	sched   *Scheduler

	qinit   device.Kernel
	bc      device.Kernel
	advance device.Kernel

	t, tOld, dt float64
	boundDt     float32
	result      Result
}

// New validates the problem, compiles the stage kernels, allocates the state
// buffers and binds every kernel argument. The solver takes ownership of ctx
// and releases it on failure and in Close.
func New(ctx device.Context, prob Problem, sink output.Sink, log logrus.FieldLogger) (*Solver, error) {
	s, err := newSolver(ctx, prob, sink, log)
	if err != nil {
		ctx.Release()
		return nil, err
	}
	return s, nil
}

// Open acquires a context of the given kind and builds a solver on it.
func Open(kind device.Kind, prob Problem, sink output.Sink, log logrus.FieldLogger) (*Solver, error) {
	ctx, err := device.Open(kind)
	if err != nil {
		return nil, &SetupError{Stage: "device", Err: err}
	}
	return New(ctx, prob, sink, log)
}

func newSolver(ctx device.Context, prob Problem, sink output.Sink, log logrus.FieldLogger) (*Solver, error) {
	if err := prob.Validate(); err != nil {
		return nil, &SetupError{Stage: "problem", Err: err}
	}
	if sink == nil {
		sink = output.Multi(nil)
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	g := prob.Grid
	maxGroup := ctx.MaxGroupSize()
	if maxGroup < 2 {
		return nil, &SetupError{
			Stage: "launch geometry",
			Err:   fmt.Errorf("%w: max group %d", ErrGroupLimit, maxGroup),
		}
	}
	local := GroupSize(prob, maxGroup)

	s := &Solver{
		ctx:  ctx,
		prob: prob,
		sink: sink,
		log:  log.WithField("device", ctx.Name()),
		control: Controller{
			Desired: prob.DesiredCourant,
			DtMin:   prob.DtMin,
			DtMax:   prob.DtMax,
		},
		sched: NewScheduler(prob.TStart, prob.OutputInterval()),
		t:     prob.TStart,
		dt:    prob.DtInitial,
	}
	s.result.Device = ctx.Name()

	var err error
	for _, c := range []struct {
		prog *device.Program
		dst  *device.Kernel
	}{
		{&kernels.QInit, &s.qinit},
		{&kernels.BC1, &s.bc},
		{&kernels.Acoustic1D, &s.advance},
	} {
		if *c.dst, err = ctx.Compile(*c.prog); err != nil {
			return nil, &SetupError{Stage: "compile " + c.prog.Name, Err: err}
		}
	}
	if s.bufs, err = NewStateBuffers(ctx, g, local); err != nil {
		return nil, &SetupError{Stage: "allocate", Err: err}
	}
	if s.reducer, err = NewReducer(ctx, s.bufs.S, local); err != nil {
		return nil, &SetupError{Stage: "reduction", Err: err}
	}

	dx := float32(g.Dx())
	if err := s.qinit.SetArgs(s.bufs.Q, int32(g.Meqn), int32(g.Mx), int32(g.Mbc),
		float32(g.XLower), dx, int32(prob.PulseCenter), float32(prob.PulseWidth)); err != nil {
		return nil, &SetupError{Stage: "bind " + kernels.QInit.Name, Err: err}
	}
	if err := s.bc.SetArgs(s.bufs.Q, int32(g.Meqn), int32(g.Mx), int32(g.Mbc), int32(prob.Boundary)); err != nil {
		return nil, &SetupError{Stage: "bind " + kernels.BC1.Name, Err: err}
	}
	s.boundDt = float32(s.dt)
	if err := s.advance.SetArgs(s.bufs.Q, s.bufs.QOld, s.bufs.S, int32(g.Mx), int32(g.Mbc),
		s.boundDt, dx, float32(prob.Rho), float32(prob.Bulk)); err != nil {
		return nil, &SetupError{Stage: "bind " + kernels.Acoustic1D.Name, Err: err}
	}

	s.log.WithFields(logrus.Fields{
		"mx":       g.Mx,
		"mbc":      g.Mbc,
		"group":    local,
		"passes":   len(s.reducer.Passes()),
		"boundary": prob.Boundary,
	}).Info("solver ready")
	return s, nil
}

// GroupSize is the work-group size used for the cell kernels and the first
// reduction pass: Problem.GroupSize, or half the stored cells when that is
// zero, limited to [2, maxGroup]. maxGroup must be at least 2.
func GroupSize(p Problem, maxGroup int) int {
	local := p.GroupSize
	if local == 0 {
		local = p.Grid.Mtot() / 2
	}
	return max(2, min(local, maxGroup))
}

// Phase returns the current lifecycle phase.
func (s *Solver) Phase() Phase { return s.phase }

// Passes exposes the reduction plan chosen at setup.
func (s *Solver) Passes() []Pass { return s.reducer.Passes() }

// Time returns a snapshot of the clock.
func (s *Solver) Time() TimeState {
	return TimeState{
		T:              s.t,
		TOld:           s.tOld,
		Dt:             s.dt,
		DtMin:          s.prob.DtMin,
		DtMax:          s.prob.DtMax,
		TStart:         s.prob.TStart,
		TFinal:         s.prob.TFinal,
		NextOutput:     s.sched.NextOutput(),
		OutputInterval: s.sched.Interval(),
		Frame:          s.sched.Frame(),
	}
}

// Close releases the device. It is safe to call more than once.
func (s *Solver) Close() {
	if s.ctx != nil {
		s.ctx.Release()
		s.ctx = nil
	}
	s.phase = Finished
}

// Run marches from t_start until t_final or until MaxSteps iterations have
// been taken, then releases the device. Exhausting the iteration budget is
// reported through Result.Outcome, not as an error. Cancellation of ctx is
// honoured between steps only.
func (s *Solver) Run(ctx context.Context) (*Result, error) {
	if s.phase != Uninitialized {
		return nil, ErrAlreadyRun
	}
	defer s.Close()

	if err := s.initialize(); err != nil {
		return s.snapshot(), err
	}
	s.phase = Stepping
	s.result.Outcome = OutcomeExhausted
	for step := 1; step <= s.prob.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return s.snapshot(), fmt.Errorf("run stopped before step %d: %w", step, err)
		}
		done, err := s.step(step)
		if err != nil {
			return s.snapshot(), err
		}
		if done {
			s.result.Outcome = OutcomeCompleted
			break
		}
	}

	res := s.snapshot()
	entry := s.log.WithFields(logrus.Fields{
		"steps":  res.Steps,
		"frames": res.Frames,
		"t":      res.T,
	})
	if res.Outcome == OutcomeExhausted {
		entry.Warnf("iteration budget of %d exhausted before t_final=%g", s.prob.MaxSteps, s.prob.TFinal)
	} else {
		entry.Info("reached t_final")
	}
	return res, nil
}

func (s *Solver) snapshot() *Result {
	r := s.result
	r.T = s.t
	r.Dt = s.dt
	return &r
}

func (s *Solver) initialize() error {
	if err := s.bufs.Initialize(s.qinit); err != nil {
		return &DispatchError{Step: 0, Stage: "initialize", Err: err}
	}
	if err := s.emit(0, s.sched.Initial()); err != nil {
		return err
	}
	s.phase = Initialized
	return nil
}

// step performs one iteration and reports whether t_final was reached.
func (s *Solver) step(n int) (bool, error) {
	s.tOld = s.t
	if s.tOld+s.dt > s.prob.TFinal && s.prob.TStart < s.prob.TFinal {
		s.dt = s.prob.TFinal - s.tOld
	}
	s.t = s.tOld + s.dt
	if err := s.bindDt(); err != nil {
		return false, &DispatchError{Step: n, Stage: "bind dt", Err: err}
	}

	if err := s.bufs.SnapshotPrevious(); err != nil {
		return false, &DispatchError{Step: n, Stage: "snapshot previous", Err: err}
	}
	cell := s.bufs.cell
	if err := s.ctx.Enqueue(s.bc, cell.global, cell.local); err != nil {
		return false, &DispatchError{Step: n, Stage: "boundary fill", Err: err}
	}
	if err := s.ctx.Enqueue(s.advance, cell.global, cell.local); err != nil {
		return false, &DispatchError{Step: n, Stage: "advance", Err: err}
	}
	sMax32, err := s.reducer.Reduce()
	if err != nil {
		return false, &DispatchError{Step: n, Stage: "reduce", Err: err}
	}
	sMax := float64(sMax32)
	if math.IsNaN(sMax) || math.IsInf(sMax, 0) {
		return false, &DispatchError{Step: n, Stage: "reduce", Err: fmt.Errorf("%w: max speed %v at t=%g", ErrDiverged, sMax, s.t)}
	}

	taken := s.dt
	next, courant := s.control.Next(sMax, taken, s.prob.Grid.Dx())
	s.dt = next
	if err := s.bindDt(); err != nil {
		return false, &DispatchError{Step: n, Stage: "bind dt", Err: err}
	}
	s.result.Steps = n
	if courant > s.result.MaxCourant {
		s.result.MaxCourant = courant
	}
	fields := logrus.Fields{"step": n, "t": s.t, "dt": taken, "smax": sMax, "courant": courant}
	if s.prob.MaxCourant > 0 && courant > s.prob.MaxCourant {
		s.result.Violations++
		s.log.WithFields(fields).Warnf("courant number above %g", s.prob.MaxCourant)
	} else {
		s.log.WithFields(fields).Debug("step")
	}

	if s.t >= s.prob.TFinal {
		s.phase = Finished
		if s.sched.Reached(s.t) {
			if err := s.emit(n, s.sched.Fire()); err != nil {
				return false, err
			}
		}
		return true, nil
	}
	if s.sched.Due(s.t) {
		if err := s.emit(n, s.sched.Fire()); err != nil {
			return false, err
		}
	}
	return false, nil
}

// bindDt rebinds the advance kernel's step size when it has changed.
func (s *Solver) bindDt() error {
	dt := float32(s.dt)
	if dt == s.boundDt {
		return nil
	}
	if err := s.advance.SetArg(kernels.DtArg, dt); err != nil {
		return err
	}
	s.boundDt = dt
	return nil
}

func (s *Solver) emit(step, frame int) error {
	q, err := s.bufs.Interior()
	if err != nil {
		return &DispatchError{Step: step, Stage: "read state", Err: err}
	}
	f := output.Frame{Index: frame, Time: s.t, Grid: s.prob.Grid, Q: q}
	if err := s.sink.WriteFrame(f); err != nil {
		return fmt.Errorf("writing frame %d at t=%g: %w", frame, s.t, err)
	}
	s.result.Frames++
	s.log.WithFields(logrus.Fields{"frame": frame, "t": s.t}).Info("frame written")
	return nil
}
