package clock

import (
	"time"

	utilclock "k8s.io/utils/clock"
)

// Clock is the read-only view of time used by the guard, gateway and engine.
// It is satisfied by k8s.io/utils/clock.RealClock and the fake clocks in
// k8s.io/utils/clock/testing.
type Clock = utilclock.PassiveClock

// RealClock implements Clock with the wall clock
type RealClock = utilclock.RealClock

// OrReal returns c, or the wall clock when c is nil
func OrReal(c Clock) Clock {
	if c == nil {
		return RealClock{}
	}
	return c
}

// NotBefore reports whether t is at or after the clock's current instant.
func NotBefore(c Clock, t time.Time) bool {
	return !t.Before(c.Now())
}
