package store

import "time"

// Clock abstracts time for lazy counter resets so tests can cross UTC
// boundaries without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
