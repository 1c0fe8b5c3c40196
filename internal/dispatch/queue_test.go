package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

func newEnvelope(kind Kind, notBefore time.Time) *TaskEnvelope {
	return &TaskEnvelope{
		ID:        uuid.New(),
		Kind:      kind,
		Lane:      LaneFor(kind),
		NotBefore: notBefore,
	}
}

func mustDequeue(t *testing.T, q PriorityTaskQueue) *TaskEnvelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	env, ok := q.DequeueEligible(ctx)
	if !ok {
		t.Fatal("DequeueEligible returned no envelope")
	}
	return env
}

func TestLaneDominance(t *testing.T) {
	clock := clockwork.NewRealClock()
	q := NewQueue(clock)
	now := clock.Now()

	low := newEnvelope(KindReportGeneration, now)
	medium := newEnvelope(KindCommentSync, now)
	high := newEnvelope(KindSentimentAnalysis, now)
	critical := newEnvelope(KindPublishToPlatform, now)

	// Enqueue in reverse priority order; dequeue must follow lane order.
	q.Enqueue(low)
	q.Enqueue(medium)
	q.Enqueue(high)
	q.Enqueue(critical)

	want := []uuid.UUID{critical.ID, high.ID, medium.ID, low.ID}
	for i, id := range want {
		env := mustDequeue(t, q)
		if env.ID != id {
			t.Fatalf("dequeue %d: got %s (%s), want %s", i, env.ID, env.Kind, id)
		}
	}
}

func TestFIFOWithinLane(t *testing.T) {
	clock := clockwork.NewRealClock()
	q := NewQueue(clock)
	now := clock.Now()

	first := newEnvelope(KindPublishToPlatform, now)
	second := newEnvelope(KindPublishToPlatform, now)
	third := newEnvelope(KindPublishToPlatform, now)
	q.Enqueue(first)
	q.Enqueue(second)
	q.Enqueue(third)

	for i, want := range []*TaskEnvelope{first, second, third} {
		env := mustDequeue(t, q)
		if env.ID != want.ID {
			t.Fatalf("dequeue %d out of order", i)
		}
	}
}

func TestBackedOffTaskDoesNotBlockLowerLanes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := NewQueue(clock)
	now := clock.Now()

	delayed := newEnvelope(KindPublishToPlatform, now.Add(30*time.Second))
	ready := newEnvelope(KindReportGeneration, now)
	q.Enqueue(delayed)
	q.Enqueue(ready)

	// The critical envelope is not yet eligible; the low one must pass it.
	env := mustDequeue(t, q)
	if env.ID != ready.ID {
		t.Fatalf("got %s, want the eligible low-lane envelope", env.Kind)
	}

	// Once the clock reaches the backoff deadline the delayed envelope runs.
	done := make(chan *TaskEnvelope, 1)
	go func() {
		env, _ := q.DequeueEligible(context.Background())
		done <- env
	}()

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)

	select {
	case env := <-done:
		if env.ID != delayed.ID {
			t.Fatalf("got %s, want the delayed envelope", env.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delayed envelope never became eligible")
	}
}

func TestCancelPendingEnvelope(t *testing.T) {
	clock := clockwork.NewRealClock()
	q := NewQueue(clock)
	now := clock.Now()

	victim := newEnvelope(KindPublishToPlatform, now)
	survivor := newEnvelope(KindPublishToPlatform, now)
	q.Enqueue(victim)
	q.Enqueue(survivor)

	if !q.Cancel(victim.ID) {
		t.Fatal("Cancel did not find the pending envelope")
	}
	if q.Cancel(victim.ID) {
		t.Fatal("Cancel found an already-cancelled envelope")
	}
	if got := q.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}

	env := mustDequeue(t, q)
	if env.ID != survivor.ID {
		t.Fatal("cancelled envelope was dequeued")
	}
}

func TestCancelUnknownID(t *testing.T) {
	q := NewQueue(clockwork.NewRealClock())
	if q.Cancel(uuid.New()) {
		t.Fatal("Cancel reported success for an unknown id")
	}
}
