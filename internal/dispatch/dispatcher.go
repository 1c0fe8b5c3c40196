package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/ahfmawlrl/sns-solution/pkg/logging"
)

// Handler executes one task kind. A nil return is success; an error wrapped
// with Retryable is re-enqueued with backoff; any other error is terminal.
type Handler interface {
	Kind() Kind
	Handle(ctx context.Context, env *TaskEnvelope) error
}

// FatalHook is implemented by handlers that need to record terminal failure
// (marking durable rows failed, emitting error events).
type FatalHook interface {
	OnFatal(ctx context.Context, env *TaskEnvelope, err error)
}

// Config tunes the dispatcher.
type Config struct {
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Observe, when set, is called once per execution with the outcome
	// ("success", "retry", "fatal" or "cancelled"). Used for metrics.
	Observe func(kind Kind, lane Lane, outcome string)
}

// DefaultConfig returns the production settings: 3 attempts, 1s backoff base
// doubling per attempt, saturating at 60s.
func DefaultConfig() Config {
	return Config{
		Workers:     8,
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffCap:  60 * time.Second,
	}
}

// Dispatcher owns the lane queue and the worker pool draining it.
type Dispatcher struct {
	cfg      Config
	queue    PriorityTaskQueue
	handlers map[Kind]Handler
	running  sync.Map // uuid.UUID -> *TaskEnvelope
	clock    clockwork.Clock
	logger   logging.Logger
}

func New(cfg Config, clock clockwork.Clock, logger logging.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultConfig().BackoffCap
	}
	return &Dispatcher{
		cfg:      cfg,
		queue:    NewQueue(clock),
		handlers: make(map[Kind]Handler),
		clock:    clock,
		logger:   logger,
	}
}

// Register installs a handler for its kind.
func (d *Dispatcher) Register(h Handler) {
	d.handlers[h.Kind()] = h
}

// Enqueue queues a task on the kind's fixed lane. The payload is marshalled
// to JSON. Callers never receive execution errors back; failures are handled
// inside the dispatcher.
func (d *Dispatcher) Enqueue(kind Kind, payload interface{}) (uuid.UUID, error) {
	id := uuid.New()
	return id, d.EnqueueWithID(id, kind, payload)
}

// EnqueueWithID queues a task under a caller-chosen id, letting the envelope
// share the identifier of the durable row it drives so both can be cancelled
// with one handle.
func (d *Dispatcher) EnqueueWithID(id uuid.UUID, kind Kind, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}

	now := d.clock.Now()
	env := &TaskEnvelope{
		ID:         id,
		Kind:       kind,
		Lane:       LaneFor(kind),
		Payload:    raw,
		EnqueuedAt: now,
		NotBefore:  now,
	}
	d.queue.Enqueue(env)
	d.logger.WithFields(logging.Fields{
		"task_id": env.ID,
		"kind":    kind,
		"lane":    env.Lane.String(),
	}).Debug("Task enqueued")
	return nil
}

// CancelTask cancels a queued or running task. A pending envelope is removed
// from its lane; a running one is flagged for its handler's next safe point.
func (d *Dispatcher) CancelTask(id uuid.UUID) bool {
	if d.queue.Cancel(id) {
		return true
	}
	if v, ok := d.running.Load(id); ok {
		v.(*TaskEnvelope).Cancel()
		return true
	}
	return false
}

// QueueLen reports how many envelopes are waiting.
func (d *Dispatcher) QueueLen() int {
	return d.queue.Len()
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				env, ok := d.queue.DequeueEligible(ctx)
				if !ok {
					return nil
				}
				d.execute(ctx, env)
			}
		})
	}
	return g.Wait()
}

func (d *Dispatcher) execute(ctx context.Context, env *TaskEnvelope) {
	log := d.logger.WithFields(logging.Fields{
		"task_id": env.ID,
		"kind":    env.Kind,
		"lane":    env.Lane.String(),
		"attempt": env.Attempt,
	})

	if env.Cancelled() {
		log.Info("Task cancelled before execution")
		return
	}

	handler, ok := d.handlers[env.Kind]
	if !ok {
		log.Error("No handler registered for task kind")
		return
	}

	d.running.Store(env.ID, env)
	err := handler.Handle(ctx, env)
	d.running.Delete(env.ID)

	switch {
	case err == nil:
		d.observe(env, "success")
		log.Debug("Task succeeded")

	case env.Cancelled():
		d.observe(env, "cancelled")
		log.Info("Task cancelled during execution")

	case IsRetryable(err) && env.Attempt+1 < d.cfg.MaxAttempts:
		retry := &TaskEnvelope{
			ID:         env.ID,
			Kind:       env.Kind,
			Lane:       env.Lane,
			Payload:    env.Payload,
			EnqueuedAt: env.EnqueuedAt,
			Attempt:    env.Attempt + 1,
			NotBefore:  d.clock.Now().Add(d.backoff(env.Attempt + 1)),
		}
		d.queue.Enqueue(retry)
		d.observe(env, "retry")
		log.WithError(err).WithField("not_before", retry.NotBefore).Warn("Task failed, retrying with backoff")

	default:
		// Exhausted retries convert to terminal failure.
		d.observe(env, "fatal")
		log.WithError(err).Error("Task failed terminally")
		if hook, ok := handler.(FatalHook); ok {
			hook.OnFatal(ctx, env, err)
		}
	}
}

func (d *Dispatcher) observe(env *TaskEnvelope, outcome string) {
	if d.cfg.Observe != nil {
		d.cfg.Observe(env.Kind, env.Lane, outcome)
	}
}

// backoff returns base * 2^attempt, saturating at the configured ceiling.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.BackoffBase << uint(attempt)
	if delay <= 0 || delay > d.cfg.BackoffCap {
		return d.cfg.BackoffCap
	}
	return delay
}
