package guard

import "errors"

var (
	// ErrBreakerOpen is returned when the circuit for a service is open and
	// the call was rejected without touching the network.
	ErrBreakerOpen = errors.New("circuit breaker open")

	// ErrQuotaExceeded is returned when the service's call quota for the
	// current window is exhausted.
	ErrQuotaExceeded = errors.New("quota exceeded")
)
