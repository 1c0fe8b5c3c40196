package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const checkTimeout = 5 * time.Second

// CheckResult is one dependency's health probe outcome.
type CheckResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthCheck probes one dependency. Implementations must respect ctx.
type HealthCheck func(ctx context.Context) CheckResult

// HealthStatus is the aggregate served on /health.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp int64                  `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// HealthChecker runs named dependency probes and folds them into one
// aggregate status: any unhealthy check wins, then any degraded one.
type HealthChecker struct {
	service string
	version string
	names   []string
	checks  map[string]HealthCheck
}

func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		service: service,
		version: version,
		checks:  make(map[string]HealthCheck),
	}
}

func (hc *HealthChecker) AddCheck(name string, check HealthCheck) {
	if _, dup := hc.checks[name]; !dup {
		hc.names = append(hc.names, name)
		sort.Strings(hc.names)
	}
	hc.checks[name] = check
}

// CheckHealth runs every probe under a shared timeout.
func (hc *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	agg := HealthStatus{
		Status:    StatusHealthy,
		Service:   hc.service,
		Version:   hc.version,
		Timestamp: time.Now().Unix(),
		Checks:    make(map[string]CheckResult, len(hc.checks)),
	}

	for _, name := range hc.names {
		result := hc.checks[name](ctx)
		agg.Checks[name] = result

		switch result.Status {
		case StatusDegraded:
			if agg.Status == StatusHealthy {
				agg.Status = StatusDegraded
			}
		case StatusHealthy:
		default:
			agg.Status = StatusUnhealthy
		}
	}
	return agg
}

// Handler serves the aggregate; unhealthy answers 503 so load balancers
// rotate the instance out, degraded stays 200.
func (hc *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.CheckHealth(c.Request.Context())
		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, health)
	}
}

// DatabaseHealthCheck pings postgres. The database is load-bearing for every
// operation, so a failed ping is unhealthy.
func DatabaseHealthCheck(db *sql.DB) HealthCheck {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		if err := db.PingContext(ctx); err != nil {
			return CheckResult{
				Status:    StatusUnhealthy,
				Message:   fmt.Sprintf("postgres ping failed: %v", err),
				LatencyMS: time.Since(start).Milliseconds(),
			}
		}
		return CheckResult{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	}
}

// RedisHealthCheck pings redis. Losing redis degrades rather than kills:
// quotas fail open and unread counts fall back to the database, but realtime
// relay and presence stop working.
func RedisHealthCheck(client goredis.UniversalClient) HealthCheck {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		if client == nil {
			return CheckResult{Status: StatusDegraded, Message: "redis not configured"}
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return CheckResult{
				Status:    StatusDegraded,
				Message:   fmt.Sprintf("redis ping failed: %v", err),
				LatencyMS: time.Since(start).Milliseconds(),
			}
		}
		return CheckResult{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	}
}

// ConfigurationHealthCheck fails when a required setting is empty.
func ConfigurationHealthCheck(required map[string]string) HealthCheck {
	return func(ctx context.Context) CheckResult {
		for name, value := range required {
			if value == "" {
				return CheckResult{
					Status:  StatusUnhealthy,
					Message: fmt.Sprintf("%s is not set", name),
				}
			}
		}
		return CheckResult{Status: StatusHealthy}
	}
}
