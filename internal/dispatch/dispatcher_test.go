package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ahfmawlrl/sns-solution/pkg/logging"
)

type recordingHandler struct {
	kind    Kind
	mu      sync.Mutex
	handled int
	fatal   int
	fn      func(attempt int) error
	done    chan struct{}
}

func (h *recordingHandler) Kind() Kind { return h.kind }

func (h *recordingHandler) Handle(_ context.Context, env *TaskEnvelope) error {
	h.mu.Lock()
	h.handled++
	attempt := h.handled
	h.mu.Unlock()
	return h.fn(attempt)
}

func (h *recordingHandler) OnFatal(_ context.Context, _ *TaskEnvelope, _ error) {
	h.mu.Lock()
	h.fatal++
	h.mu.Unlock()
	close(h.done)
}

func (h *recordingHandler) counts() (handled, fatal int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handled, h.fatal
}

func newTestDispatcher() *Dispatcher {
	return New(Config{
		Workers:     2,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	}, clockwork.NewRealClock(), logging.NewLogger())
}

func runDispatcher(t *testing.T, d *Dispatcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()
	return cancel
}

func TestRetryableFailureExhaustsAttempts(t *testing.T) {
	d := newTestDispatcher()
	h := &recordingHandler{
		kind: KindPublishToPlatform,
		fn:   func(int) error { return Retryable(errors.New("remote flaked")) },
		done: make(chan struct{}),
	}
	d.Register(h)
	cancel := runDispatcher(t, d)
	defer cancel()

	if _, err := d.Enqueue(KindPublishToPlatform, map[string]string{}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("fatal hook never fired")
	}

	handled, fatal := h.counts()
	if handled != 3 {
		t.Errorf("handled %d times, want 3", handled)
	}
	if fatal != 1 {
		t.Errorf("fatal fired %d times, want 1", fatal)
	}
}

func TestNonRetryableFailureFailsImmediately(t *testing.T) {
	d := newTestDispatcher()
	h := &recordingHandler{
		kind: KindPublishToPlatform,
		fn:   func(int) error { return errors.New("bad request") },
		done: make(chan struct{}),
	}
	d.Register(h)
	cancel := runDispatcher(t, d)
	defer cancel()

	if _, err := d.Enqueue(KindPublishToPlatform, map[string]string{}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("fatal hook never fired")
	}

	handled, fatal := h.counts()
	if handled != 1 {
		t.Errorf("handled %d times, want 1 (no retries)", handled)
	}
	if fatal != 1 {
		t.Errorf("fatal fired %d times, want 1", fatal)
	}
}

func TestRetrySucceedsBeforeExhaustion(t *testing.T) {
	succeeded := make(chan struct{})
	d := newTestDispatcher()
	h := &recordingHandler{
		kind: KindPublishToPlatform,
		fn: func(attempt int) error {
			if attempt < 2 {
				return Retryable(errors.New("transient"))
			}
			close(succeeded)
			return nil
		},
		done: make(chan struct{}),
	}
	d.Register(h)
	cancel := runDispatcher(t, d)
	defer cancel()

	if _, err := d.Enqueue(KindPublishToPlatform, map[string]string{}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-succeeded:
	case <-time.After(5 * time.Second):
		t.Fatal("retry never succeeded")
	}

	_, fatal := h.counts()
	if fatal != 0 {
		t.Errorf("fatal fired %d times, want 0", fatal)
	}
}

func TestBackoffSaturatesAtCap(t *testing.T) {
	d := New(Config{
		Workers:     1,
		MaxAttempts: 10,
		BackoffBase: time.Second,
		BackoffCap:  60 * time.Second,
	}, clockwork.NewRealClock(), logging.NewLogger())

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second},
		{40, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := d.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestCancelRunningTask(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var env *TaskEnvelope

	d := newTestDispatcher()
	d.Register(&blockingHandler{started: started, release: release, envOut: &env})
	cancel := runDispatcher(t, d)
	defer cancel()

	id, err := d.Enqueue(KindCommentSync, map[string]string{})
	if err != nil {
		t.Fatal(err)
	}

	<-started
	if !d.CancelTask(id) {
		t.Fatal("CancelTask did not find the running task")
	}
	close(release)

	if env == nil || !env.Cancelled() {
		t.Fatal("running envelope was not flagged cancelled")
	}
}

type blockingHandler struct {
	started chan struct{}
	release chan struct{}
	envOut  **TaskEnvelope
}

func (h *blockingHandler) Kind() Kind { return KindCommentSync }

func (h *blockingHandler) Handle(_ context.Context, env *TaskEnvelope) error {
	*h.envOut = env
	close(h.started)
	<-h.release
	return nil
}
