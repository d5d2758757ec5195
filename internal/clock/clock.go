// Package clock abstracts wall-clock time so schedulers, breakers and sweeps
// can be driven deterministically in tests.
package clock

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// New returns the system clock.
func New() Clock {
	return clockwork.NewRealClock()
}

// Mock is a manually advanced clock. Channels returned by After fire once
// Set or Add moves the current time past their deadline.
type Mock struct {
	*clockwork.FakeClock
}

func NewMock(t time.Time) *Mock {
	return &Mock{FakeClock: clockwork.NewFakeClockAt(t)}
}

func (m *Mock) Add(d time.Duration) {
	m.Advance(d)
}

// Set moves the clock forward to t. Earlier times are ignored.
func (m *Mock) Set(t time.Time) {
	if d := t.Sub(m.Now()); d > 0 {
		m.Advance(d)
	}
}

// AwaitWaiters blocks until exactly n After channels are pending or timeout
// elapses in real time.
func (m *Mock) AwaitWaiters(n int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return m.BlockUntilContext(ctx, n)
}
