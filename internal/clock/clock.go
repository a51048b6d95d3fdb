// Package clock provides an injectable time source so that negotiation
// timestamps, room retention timers and the reclamation sweep can be driven
// deterministically in tests.
//
// Production code takes a Clock field and is given Real(). Tests construct
// Fake(t0) and call Advance to fire pending timers and tickers.
package clock

import "time"

// Clock abstracts the parts of the time package this module uses
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f in its own goroutine (real) or synchronously during
	// Advance (fake) once d has elapsed.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on C every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a pending AfterFunc call
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. Returns false if it already fired or was
// stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers periodic ticks. C has capacity 1; late ticks are dropped.
type Ticker struct {
	C    <-chan time.Time
	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)
	return &Timer{stop: timer.Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stop: ticker.Stop}
}
