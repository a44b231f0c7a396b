package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze time via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for run dates and completion records.
// Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time from the package clock.
func Now() time.Time {
	return clock.Now()
}

// DatedDir appends the run date as a _YYYYMMDD suffix, so repeated runs on
// different days write to separate directories.
func DatedDir(dir string) string {
	if dir == "" {
		return dir
	}
	return dir + "_" + clock.Now().Format("20060102")
}
