package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ahfmawlrl/sns-solution/pkg/logging"
)

// Published platform quota limits, calls per window.
var defaultLimits = map[string]int64{
	"instagram": 200,
	"facebook":  200,
	"youtube":   10000,
	"llm":       3600,
}

const defaultQuotaLimit = 1000

// QuotaTracker counts calls per service in fixed windows backed by Redis so
// the count is shared across instances. Crossing 80% of a limit raises a
// one-time warning per window; crossing 100% rejects until the window rolls.
type QuotaTracker struct {
	client goredis.UniversalClient
	limits map[string]int64
	window time.Duration
	clock  clockwork.Clock
	onWarn func(service string, used, limit int64)
	logger logging.Logger
}

func NewQuotaTracker(client goredis.UniversalClient, clock clockwork.Clock, logger logging.Logger) *QuotaTracker {
	return &QuotaTracker{
		client: client,
		limits: defaultLimits,
		window: time.Hour,
		clock:  clock,
		logger: logger,
	}
}

// OnWarn registers the callback invoked once per window when a service
// crosses 80% of its limit.
func (q *QuotaTracker) OnWarn(fn func(service string, used, limit int64)) {
	q.onWarn = fn
}

// SetLimit overrides the per-window limit for a service.
func (q *QuotaTracker) SetLimit(service string, limit int64) {
	q.limits[service] = limit
}

func (q *QuotaTracker) limit(service string) int64 {
	if l, ok := q.limits[service]; ok {
		return l
	}
	return defaultQuotaLimit
}

// Check reports whether the service has window budget left without
// consuming a slot. Fails open when redis is unreachable.
func (q *QuotaTracker) Check(ctx context.Context, service string) error {
	limit := q.limit(service)
	used, err := q.Used(ctx, service)
	if err != nil {
		q.logger.WithError(err).WithField("service", service).Warn("Quota counter unavailable, allowing call")
		return nil
	}
	if used >= limit {
		return fmt.Errorf("%s used %d of %d: %w", service, used, limit, ErrQuotaExceeded)
	}
	return nil
}

// Allow records one call for the service and reports whether it may proceed.
func (q *QuotaTracker) Allow(ctx context.Context, service string) error {
	limit := q.limit(service)
	bucket := q.clock.Now().UTC().Truncate(q.window).Unix()
	key := fmt.Sprintf("quota:%s:%d", service, bucket)

	used, err := q.client.Incr(ctx, key).Result()
	if err != nil {
		// Quota is advisory relative to the remote service's own limit
		// enforcement; fail open when redis is unreachable.
		q.logger.WithError(err).WithField("service", service).Warn("Quota counter unavailable, allowing call")
		return nil
	}
	if used == 1 {
		q.client.Expire(ctx, key, q.window)
	}

	if used > limit {
		return fmt.Errorf("%s used %d of %d: %w", service, used, limit, ErrQuotaExceeded)
	}

	if used*5 >= limit*4 {
		warned, err := q.client.SetNX(ctx, key+":warned", 1, q.window).Result()
		if err == nil && warned && q.onWarn != nil {
			q.onWarn(service, used, limit)
		}
	}

	return nil
}

// Used returns the current window's call count for a service.
func (q *QuotaTracker) Used(ctx context.Context, service string) (int64, error) {
	bucket := q.clock.Now().UTC().Truncate(q.window).Unix()
	key := fmt.Sprintf("quota:%s:%d", service, bucket)
	used, err := q.client.Get(ctx, key).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	return used, err
}
