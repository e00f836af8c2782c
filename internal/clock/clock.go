// Package clock abstracts time for components that poll or expire state,
// so tests can drive them without real sleeps.
package clock

import "time"

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// System returns the wall clock.
func System() Clock {
	return systemClock{}
}
