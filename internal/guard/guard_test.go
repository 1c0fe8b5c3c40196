package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahfmawlrl/sns-solution/pkg/logging"
)

func newTestGuard(t *testing.T, cooldown time.Duration) (*Guard, *miniredis.Miniredis, *clockwork.FakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := clockwork.NewFakeClock()
	g := New(Config{Cooldown: cooldown, CallTimeout: time.Second}, client, clock, logging.NewLogger())
	return g, mr, clock
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	g, _, _ := newTestGuard(t, time.Minute)
	ctx := context.Background()
	boom := errors.New("remote down")

	calls := 0
	failing := func(context.Context) error {
		calls++
		return boom
	}

	for i := 0; i < defaultFailureThreshold; i++ {
		err := g.Do(ctx, "instagram", failing)
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, StateOpen, g.BreakerState("instagram"))

	// Open circuit fails fast without touching the remote.
	err := g.Do(ctx, "instagram", failing)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, defaultFailureThreshold, calls)
}

func TestBreakerIsolatesServices(t *testing.T) {
	g, _, _ := newTestGuard(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < defaultFailureThreshold; i++ {
		_ = g.Do(ctx, "instagram", func(context.Context) error { return errors.New("down") })
	}
	require.Equal(t, StateOpen, g.BreakerState("instagram"))

	// A different service keeps its own closed circuit.
	err := g.Do(ctx, "youtube", func(context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, g.BreakerState("youtube"))
}

func TestBreakerHalfOpenTrialClosesOnSuccess(t *testing.T) {
	g, _, _ := newTestGuard(t, 10*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < defaultFailureThreshold; i++ {
		_ = g.Do(ctx, "facebook", func(context.Context) error { return errors.New("down") })
	}
	require.Equal(t, StateOpen, g.BreakerState("facebook"))

	// After the cooldown one trial call is allowed; a success closes the
	// circuit again.
	time.Sleep(20 * time.Millisecond)
	err := g.Do(ctx, "facebook", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, g.BreakerState("facebook"))
}

func TestBreakerReopensOnFailedTrial(t *testing.T) {
	g, _, _ := newTestGuard(t, 10*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < defaultFailureThreshold; i++ {
		_ = g.Do(ctx, "facebook", func(context.Context) error { return errors.New("down") })
	}

	time.Sleep(20 * time.Millisecond)
	_ = g.Do(ctx, "facebook", func(context.Context) error { return errors.New("still down") })
	assert.Equal(t, StateOpen, g.BreakerState("facebook"))
}

func TestOpenBreakerDoesNotConsumeQuota(t *testing.T) {
	g, _, _ := newTestGuard(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < defaultFailureThreshold; i++ {
		_ = g.Do(ctx, "instagram", func(context.Context) error { return errors.New("down") })
	}
	require.Equal(t, StateOpen, g.BreakerState("instagram"))

	before, err := g.Quota().Used(ctx, "instagram")
	require.NoError(t, err)

	// Fast-failed calls never reach the remote and must not burn window
	// slots, or the service comes back quota-locked after an outage.
	for i := 0; i < 10; i++ {
		err := g.Do(ctx, "instagram", func(context.Context) error { return nil })
		require.ErrorIs(t, err, ErrBreakerOpen)
	}

	after, err := g.Quota().Used(ctx, "instagram")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestQuotaRejectsOverLimit(t *testing.T) {
	g, _, _ := newTestGuard(t, time.Minute)
	g.Quota().SetLimit("tiny", 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Do(ctx, "tiny", func(context.Context) error { return nil }))
	}

	err := g.Do(ctx, "tiny", func(context.Context) error {
		t.Fatal("call ran over quota")
		return nil
	})
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// A quota rejection is not a breaker failure.
	assert.Equal(t, StateClosed, g.BreakerState("tiny"))
}

func TestQuotaWindowRolls(t *testing.T) {
	g, _, clock := newTestGuard(t, time.Minute)
	g.Quota().SetLimit("tiny", 1)
	ctx := context.Background()

	require.NoError(t, g.Do(ctx, "tiny", func(context.Context) error { return nil }))
	require.ErrorIs(t, g.Do(ctx, "tiny", func(context.Context) error { return nil }), ErrQuotaExceeded)

	// The next hourly bucket starts fresh.
	clock.Advance(time.Hour)
	assert.NoError(t, g.Do(ctx, "tiny", func(context.Context) error { return nil }))
}

func TestQuotaWarnsOnceAtEightyPercent(t *testing.T) {
	g, _, _ := newTestGuard(t, time.Minute)
	g.Quota().SetLimit("warned", 10)

	var warnings []int64
	g.Quota().OnWarn(func(service string, used, limit int64) {
		assert.Equal(t, "warned", service)
		assert.EqualValues(t, 10, limit)
		warnings = append(warnings, used)
	})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, g.Do(ctx, "warned", func(context.Context) error { return nil }))
	}

	require.Len(t, warnings, 1, "warning must fire exactly once per window")
	assert.EqualValues(t, 8, warnings[0])
}

func TestQuotaFailsOpenWithoutRedis(t *testing.T) {
	g, mr, _ := newTestGuard(t, time.Minute)
	mr.Close()

	err := g.Do(context.Background(), "instagram", func(context.Context) error { return nil })
	assert.NoError(t, err, "quota must fail open when redis is unreachable")
}

func TestUsedCounts(t *testing.T) {
	g, _, _ := newTestGuard(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, g.Do(ctx, "instagram", func(context.Context) error { return nil }))
	}
	used, err := g.Quota().Used(ctx, "instagram")
	require.NoError(t, err)
	assert.EqualValues(t, 4, used)

	used, err = g.Quota().Used(ctx, "youtube")
	require.NoError(t, err)
	assert.Zero(t, used)
}
