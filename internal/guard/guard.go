// Package guard wraps every outbound call to a third-party service with a
// shared circuit breaker and a per-window quota counter.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ahfmawlrl/sns-solution/pkg/logging"
)

// Config configures the guard.
type Config struct {
	// Cooldown is how long an open circuit stays open before a half-open
	// trial is permitted. Default 30s.
	Cooldown time.Duration

	// CallTimeout bounds every guarded call. A timeout counts as a breaker
	// failure. Default 30s.
	CallTimeout time.Duration
}

// Guard is the single entry point for outbound third-party calls.
type Guard struct {
	breakers *breakerRegistry
	quota    *QuotaTracker
	timeout  time.Duration
	logger   logging.Logger
}

func New(cfg Config, redis goredis.UniversalClient, clock clockwork.Clock, logger logging.Logger) *Guard {
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Guard{
		breakers: newBreakerRegistry(cfg.Cooldown, logger),
		quota:    NewQuotaTracker(redis, clock, logger),
		timeout:  cfg.CallTimeout,
		logger:   logger,
	}
}

// Quota exposes the quota tracker for warn-callback wiring.
func (g *Guard) Quota() *QuotaTracker {
	return g.quota
}

// Do executes fn for the named service. The quota is checked first so a
// quota rejection never counts as a breaker failure; the breaker then either
// fails fast or admits the call. A window slot is consumed only for admitted
// calls, so an open circuit cannot drain the quota while the remote is down.
func (g *Guard) Do(ctx context.Context, service string, fn func(context.Context) error) error {
	if err := g.quota.Check(ctx, service); err != nil {
		return err
	}

	cb := g.breakers.get(service)
	if !cb.TryAcquirePermit() {
		return fmt.Errorf("%s: %w", service, ErrBreakerOpen)
	}

	if err := g.quota.Allow(ctx, service); err != nil {
		// Lost a concurrent race to the last window slot. The remote was
		// never called, so the permit is released without a failure mark.
		cb.RecordSuccess()
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := fn(callCtx); err != nil {
		cb.RecordError(err)
		return err
	}
	cb.RecordSuccess()
	return nil
}

// BreakerState reports the current circuit state for a service.
func (g *Guard) BreakerState(service string) BreakerState {
	return g.breakers.state(service)
}
