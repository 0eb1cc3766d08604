package solver

import "math"

// Controller revises the step size from the largest wave speed seen during
// the step just taken. It never rejects a step.
type Controller struct {
	Desired float64
	DtMin   float64
	DtMax   float64
}

// Courant is the dimensionless wave travel per step.
func Courant(sMax, dt, dx float64) float64 { return sMax * dt / dx }

// Next returns the step size for the following step and the observed Courant
// number. Without a positive Courant number there is nothing to respect and
// the step grows to DtMax.
func (c Controller) Next(sMax, dt, dx float64) (next, courant float64) {
	courant = Courant(sMax, dt, dx)
	if courant > 0 {
		next = math.Min(c.DtMax, dt*c.Desired/courant)
	} else {
		next = c.DtMax
	}
	if c.DtMin > 0 && next < c.DtMin {
		next = c.DtMin
	}
	return next, courant
}
