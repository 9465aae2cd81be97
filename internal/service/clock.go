package service

import "time"

// Clock supplies the engine's notion of "now". Every read and mutation of
// timer state takes its timestamp from here, so tests can drive phase
// transitions deterministically by injecting a manual clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock returns a Clock backed by the wall clock, normalized to UTC.
func SystemClock() Clock {
	return systemClock{}
}
