package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"market-pipeline/src/helpers"
	"market-pipeline/src/logger"
)

// -----------------------------------------------------------------------------
// Circuit Breaker
//
// CLOSED  -> OPEN       failure rate over the monitoring window reaches the
//                       threshold, evaluated at call completion only.
// OPEN    -> HALF_OPEN  first call attempted after nextAttempt (lazy, no timer).
// HALF_OPEN -> CLOSED   next successful call.
// HALF_OPEN -> OPEN     next failed call, new nextAttempt scheduled.
// -----------------------------------------------------------------------------

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// -----------------------------------------------------------------------------

type outcome struct {
	at      time.Time
	success bool
}

type CircuitBreakerConfig struct {
	FailureRateThreshold float64       // 0..1, OPEN when reached
	MonitoringWindow     time.Duration // rolling outcome window
	ResetTimeout         time.Duration // OPEN hold time before a probe
	MinimumCalls         int           // no rate evaluation below this
	ExpectedErrors       func(error) bool
}

type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	Logger *logger.Logger

	state       State
	window      []outcome
	nextAttempt time.Time

	// Notifications, used by the orchestrator for alerting
	OnStateChange func(name string, from, to State)
	OnOutcome     func(name string, success bool)

	mu  sync.Mutex
	now func() time.Time
}

// -----------------------------------------------------------------------------

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, log *logger.Logger) *CircuitBreaker {
	if cfg.FailureRateThreshold <= 0 {
		cfg.FailureRateThreshold = 0.5
	}
	if cfg.MonitoringWindow <= 0 {
		cfg.MonitoringWindow = time.Minute
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.MinimumCalls <= 0 {
		cfg.MinimumCalls = 5
	}

	return &CircuitBreaker{
		name:   name,
		config: cfg,
		Logger: log,
		state:  StateClosed,
		now:    time.Now,
	}
}

// -----------------------------------------------------------------------------

func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state without transitioning it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// -----------------------------------------------------------------------------

// Execute runs fn under the breaker. Callers are rejected with ErrCircuitOpen
// while the breaker is OPEN and nextAttempt has not elapsed.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Before(cb.nextAttempt) {
			cb.mu.Unlock()
			return fmt.Errorf("%s: %w", cb.name, helpers.ErrCircuitOpen)
		}
		// Lazy OPEN -> HALF_OPEN on the first attempt past nextAttempt
		cb.transition(StateHalfOpen)
	}
	cb.mu.Unlock()

	err := fn(ctx)
	cb.recordResult(err)
	return err
}

// -----------------------------------------------------------------------------

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && cb.config.ExpectedErrors != nil && cb.config.ExpectedErrors(err) {
		// Expected errors bypass failure accounting entirely
		return
	}

	success := err == nil
	now := cb.now()
	cb.window = append(cb.window, outcome{at: now, success: success})
	cb.prune(now)

	if cb.OnOutcome != nil {
		cb.OnOutcome(cb.name, success)
	}

	switch cb.state {
	case StateHalfOpen:
		if success {
			cb.window = nil
			cb.transition(StateClosed)
		} else {
			cb.nextAttempt = now.Add(cb.config.ResetTimeout)
			cb.transition(StateOpen)
		}

	case StateClosed:
		if !success && cb.failureRate() >= cb.config.FailureRateThreshold &&
			len(cb.window) >= cb.config.MinimumCalls {
			cb.nextAttempt = now.Add(cb.config.ResetTimeout)
			cb.transition(StateOpen)
		}
	}
}

// -----------------------------------------------------------------------------

// prune drops outcomes older than the monitoring window. Caller holds the lock.
func (cb *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-cb.config.MonitoringWindow)
	i := 0
	for ; i < len(cb.window); i++ {
		if cb.window[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		cb.window = cb.window[i:]
	}
}

// failureRate computes the failure share of the rolling window. Caller holds the lock.
func (cb *CircuitBreaker) failureRate() float64 {
	if len(cb.window) == 0 {
		return 0
	}
	failures := 0
	for _, o := range cb.window {
		if !o.success {
			failures++
		}
	}
	return float64(failures) / float64(len(cb.window))
}

// transition changes state and fires the notification. Caller holds the lock.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.Logger.Warning("Circuit '%s' %s -> %s", cb.name, from, to)
	if cb.OnStateChange != nil {
		cb.OnStateChange(cb.name, from, to)
	}
}
