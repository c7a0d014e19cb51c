package timer

import "time"

// Clock supplies the current time. The real implementation is wall clock;
// tests inject a manual clock so no test ever sleeps.
type Clock interface {
	Now() time.Time
}

// CancelFunc cancels a scheduled callback. It reports whether the callback
// was still pending (false means it already fired or was cancelled).
type CancelFunc func() bool

// Scheduler schedules a single callback after a delay. Replacing a timer is
// always an explicit cancel-then-arm pair in the service, never implicit.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) CancelFunc
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) CancelFunc {
	t := time.AfterFunc(d, f)
	return t.Stop
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// RealScheduler returns a scheduler backed by time.AfterFunc.
func RealScheduler() Scheduler { return realScheduler{} }
