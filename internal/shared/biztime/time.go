// Package biztime centralises time for the payment core. All storage uses UTC.
package biztime

import "time"

// Clock is injected wherever "now" drives a decision so tests can pin it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock { return systemClock{} }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c *FixedClock) Now() time.Time { return c.At }

// Advance moves the fixed clock forward by d.
func (c *FixedClock) Advance(d time.Duration) { c.At = c.At.Add(d) }

// NowUTC returns current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}
