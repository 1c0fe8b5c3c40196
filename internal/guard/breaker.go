package guard

import (
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/ahfmawlrl/sns-solution/pkg/logging"
)

// BreakerState is the reported state of a service's circuit.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

const defaultFailureThreshold = 5

// breakerRegistry owns one circuit breaker per external service identity.
// Breaker state reflects the remote service's health, not the caller's, so
// the registry is shared process-wide.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]circuitbreaker.CircuitBreaker[any]
	cooldown time.Duration
	logger   logging.Logger
}

func newBreakerRegistry(cooldown time.Duration, logger logging.Logger) *breakerRegistry {
	return &breakerRegistry{
		breakers: make(map[string]circuitbreaker.CircuitBreaker[any]),
		cooldown: cooldown,
		logger:   logger,
	}
}

func (r *breakerRegistry) get(service string) circuitbreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[service]; ok {
		return cb
	}

	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(defaultFailureThreshold).
		WithDelay(r.cooldown).
		WithSuccessThreshold(1).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			r.logger.WithFields(logging.Fields{
				"service":    service,
				"from_state": stateName(event.OldState),
				"to_state":   stateName(event.NewState),
			}).Warn("Circuit breaker state change")
		}).
		Build()

	r.breakers[service] = cb
	return cb
}

func (r *breakerRegistry) state(service string) BreakerState {
	r.mu.Lock()
	cb, ok := r.breakers[service]
	r.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return stateName(cb.State())
}

func stateName(state circuitbreaker.State) BreakerState {
	switch state {
	case circuitbreaker.OpenState:
		return StateOpen
	case circuitbreaker.HalfOpenState:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
