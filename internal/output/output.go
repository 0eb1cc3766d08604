// Package output writes solution frames emitted by the solver.
package output

import (
	"errors"
	"sync"

	"acoustic1d/internal/grid"
)

// Frame is one emitted snapshot. Q holds the interior cells only, meqn
// values per cell, component-major-by-cell.
type Frame struct {
	Index int
	Time  float64
	Grid  grid.Grid
	Q     []float32
}

// Sink receives frames in emission order.
type Sink interface {
	WriteFrame(f Frame) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Frame) error

func (fn SinkFunc) WriteFrame(f Frame) error { return fn(f) }

// Multi writes each frame to every sink and joins their errors.
type Multi []Sink

func (m Multi) WriteFrame(f Frame) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.WriteFrame(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps every frame it receives.
type Memory struct {
	mu     sync.Mutex
	frames []Frame
}

func (m *Memory) WriteFrame(f Frame) error {
	q := make([]float32, len(f.Q))
	copy(q, f.Q)
	f.Q = q
	m.mu.Lock()
	m.frames = append(m.frames, f)
	m.mu.Unlock()
	return nil
}

// Frames returns the frames received so far.
func (m *Memory) Frames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, len(m.frames))
	copy(out, m.frames)
	return out
}
