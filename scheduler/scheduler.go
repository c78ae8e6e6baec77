// Package scheduler defines the scheduled-executor collaborator the fault
// filter uses to delay abort delivery, plus a default implementation backed
// by time.AfterFunc.
package scheduler

import "time"

// Cancelable is a scheduled task that can be cancelled before it fires.
// *time.Timer already satisfies this.
type Cancelable interface {
	// Stop prevents the task from firing, if it hasn't already. It
	// reports whether the cancellation was in time.
	Stop() bool
}

// Scheduler schedules a single-shot callback after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Cancelable
}

// realScheduler backs Scheduler with the standard library's timer.
type realScheduler struct{}

// New returns the default Scheduler, backed by time.AfterFunc.
func New() Scheduler { return realScheduler{} }

func (realScheduler) AfterFunc(d time.Duration, f func()) Cancelable {
	return time.AfterFunc(d, f)
}
