package resilience

import (
	"context"
	"sync"
	"time"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/clock"
)

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 60 * time.Second
)

// BreakerState is a point-in-time copy of a breaker's state.
type BreakerState struct {
	State           State      `json:"state"`
	FailureCount    int        `json:"failure_count"`
	LastFailureTime *time.Time `json:"last_failure_time"`
}

type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	Clock            clock.Clock
	// OnStateChange is called outside the lock after every transition.
	OnStateChange func(from, to State)
}

// CircuitBreaker isolates a remote dependency. It trips OPEN after
// FailureThreshold failures and lets a trial call through (HALF_OPEN) once
// ResetTimeout has passed since the last failure.
type CircuitBreaker struct {
	name          string
	threshold     int
	resetTimeout  time.Duration
	clock         clock.Clock
	onStateChange func(from, to State)

	mu           sync.Mutex
	state        State
	failureCount int
	lastFailure  time.Time
}

func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &CircuitBreaker{
		name:          name,
		threshold:     cfg.FailureThreshold,
		resetTimeout:  cfg.ResetTimeout,
		clock:         cfg.Clock,
		onStateChange: cfg.OnStateChange,
		state:         StateClosed,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs op unless the breaker is OPEN and the reset timeout has not
// elapsed, in which case op is skipped and fallback (or ErrBreakerOpen) is
// used. A failed op also falls through to fallback when one is given.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error, fallback func(error) error) error {
	if err := cb.before(); err != nil {
		if fallback != nil {
			return fallback(err)
		}
		return err
	}

	err := op(ctx)
	cb.after(err)

	if err != nil && fallback != nil {
		return fallback(err)
	}
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen {
		if cb.clock.Now().Sub(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return apperror.Wrapf(apperror.ErrBreakerOpen, apperror.KindBreakerOpen, "%s", cb.name)
		}
		cb.state = StateHalfOpen
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	from := cb.state
	if err == nil {
		cb.state = StateClosed
		cb.failureCount = 0
	} else {
		cb.failureCount++
		cb.lastFailure = cb.clock.Now()
		if cb.failureCount >= cb.threshold {
			cb.state = StateOpen
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := BreakerState{State: cb.state, FailureCount: cb.failureCount}
	if !cb.lastFailure.IsZero() {
		t := cb.lastFailure
		s.LastFailureTime = &t
	}
	return s
}
