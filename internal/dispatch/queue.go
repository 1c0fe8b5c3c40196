package dispatch

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// PriorityTaskQueue orders envelopes by lane dominance, then eligibility
// time, then enqueue order. Envelopes with a not-before time in the future
// are skipped so backed-off work never blocks eligible lower-priority work.
type PriorityTaskQueue interface {
	Enqueue(env *TaskEnvelope)
	// DequeueEligible blocks until an envelope is eligible or ctx is
	// cancelled. The second return is false only on cancellation.
	DequeueEligible(ctx context.Context) (*TaskEnvelope, bool)
	// Cancel flags a pending envelope, reporting whether it was found.
	Cancel(id uuid.UUID) bool
	Len() int
}

// envelopeHeap is a min-heap keyed by (NotBefore, seq).
type envelopeHeap []*TaskEnvelope

func (h envelopeHeap) Len() int { return len(h) }

func (h envelopeHeap) Less(i, j int) bool {
	if !h[i].NotBefore.Equal(h[j].NotBefore) {
		return h[i].NotBefore.Before(h[j].NotBefore)
	}
	return h[i].seq < h[j].seq
}

func (h envelopeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *envelopeHeap) Push(x interface{}) {
	env := x.(*TaskEnvelope)
	env.index = len(*h)
	*h = append(*h, env)
}

func (h *envelopeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	env := old[n-1]
	old[n-1] = nil
	env.index = -1
	*h = old[:n-1]
	return env
}

type laneQueue struct {
	mu      sync.Mutex
	lanes   [laneCount]envelopeHeap
	pending map[uuid.UUID]*TaskEnvelope
	wake    chan struct{}
	clock   clockwork.Clock
	seq     uint64
}

// NewQueue creates the in-memory lane queue.
func NewQueue(clock clockwork.Clock) PriorityTaskQueue {
	return &laneQueue{
		pending: make(map[uuid.UUID]*TaskEnvelope),
		wake:    make(chan struct{}, 1),
		clock:   clock,
	}
}

func (q *laneQueue) Enqueue(env *TaskEnvelope) {
	q.mu.Lock()
	q.seq++
	env.seq = q.seq
	heap.Push(&q.lanes[env.Lane], env)
	q.pending[env.ID] = env
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *laneQueue) DequeueEligible(ctx context.Context) (*TaskEnvelope, bool) {
	for {
		q.mu.Lock()
		env, wait := q.pop(q.clock.Now())
		q.mu.Unlock()

		if env != nil {
			return env, true
		}

		var timer <-chan time.Time
		if wait > 0 {
			timer = q.clock.After(wait)
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.wake:
		case <-timer:
		}
	}
}

// pop returns the next eligible envelope, or the wait until one becomes
// eligible (0 when the queue holds nothing schedulable). Must be called with
// the mutex held.
func (q *laneQueue) pop(now time.Time) (*TaskEnvelope, time.Duration) {
	var wait time.Duration
	for lane := range q.lanes {
		for q.lanes[lane].Len() > 0 {
			head := q.lanes[lane][0]
			if head.Cancelled() {
				heap.Pop(&q.lanes[lane])
				delete(q.pending, head.ID)
				continue
			}
			if head.NotBefore.After(now) {
				if d := head.NotBefore.Sub(now); wait == 0 || d < wait {
					wait = d
				}
				break
			}
			heap.Pop(&q.lanes[lane])
			delete(q.pending, head.ID)
			return head, 0
		}
	}
	return nil, wait
}

func (q *laneQueue) Cancel(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	env, ok := q.pending[id]
	if !ok {
		return false
	}
	env.Cancel()
	if env.index >= 0 {
		heap.Remove(&q.lanes[env.Lane], env.index)
	}
	delete(q.pending, id)
	return true
}

func (q *laneQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
