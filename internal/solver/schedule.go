package solver

// Scheduler decides when a completed step gets a frame. At most one frame is
// emitted per step; thresholds skipped by a large step are not backfilled, so
// the schedule may stay behind t and fire again on the next step.
type Scheduler struct {
	next     float64
	interval float64
	frame    int
}

// NewScheduler schedules the first output one interval after tStart. Frame
// index 0 is reserved for the initial snapshot.
func NewScheduler(tStart, interval float64) *Scheduler {
	return &Scheduler{next: tStart + interval, interval: interval}
}

// Initial labels the zero-time snapshot.
func (s *Scheduler) Initial() int {
	idx := s.frame
	s.frame++
	return idx
}

// Due reports whether t has crossed the pending output time.
func (s *Scheduler) Due(t float64) bool { return t > s.next }

// Reached is Due with equality allowed, to within rounding of the
// accumulated schedule. It is used once, when the run ends on t_final.
func (s *Scheduler) Reached(t float64) bool {
	return t >= s.next-1e-9*s.interval
}

// Fire returns the index for a frame emitted now and moves the schedule one
// interval forward.
func (s *Scheduler) Fire() int {
	idx := s.frame
	s.frame++
	s.next += s.interval
	return idx
}

// NextOutput is the pending output time.
func (s *Scheduler) NextOutput() float64 { return s.next }

// Frame is the index the next frame will carry.
func (s *Scheduler) Frame() int { return s.frame }

// Interval is the output spacing.
func (s *Scheduler) Interval() float64 { return s.interval }
