// Package dispatch executes background work on four strict priority lanes
// with retry, backoff and cooperative cancellation.
package dispatch

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind names a task type. The kind→lane mapping is fixed.
type Kind string

const (
	KindPublishToPlatform Kind = "publish_to_platform"
	KindSentimentAnalysis Kind = "sentiment_analysis"
	KindCopyGeneration    Kind = "copy_generation"
	KindReplyDraft        Kind = "reply_draft"
	KindCommentSync       Kind = "comment_sync"
	KindKPICollection     Kind = "kpi_collection"
	KindTokenRefresh      Kind = "token_refresh"
	KindReportGeneration  Kind = "report_generation"
	KindEmbeddingUpdate   Kind = "embedding_update"
)

// Lane is one of four fixed priority levels. Lower value wins.
type Lane int

const (
	LaneCritical Lane = iota
	LaneHigh
	LaneMedium
	LaneLow

	laneCount = 4
)

func (l Lane) String() string {
	switch l {
	case LaneCritical:
		return "critical"
	case LaneHigh:
		return "high"
	case LaneMedium:
		return "medium"
	default:
		return "low"
	}
}

var laneByKind = map[Kind]Lane{
	KindPublishToPlatform: LaneCritical,
	KindSentimentAnalysis: LaneHigh,
	KindCopyGeneration:    LaneHigh,
	KindReplyDraft:        LaneHigh,
	KindCommentSync:       LaneMedium,
	KindKPICollection:     LaneMedium,
	KindTokenRefresh:      LaneMedium,
	KindReportGeneration:  LaneLow,
	KindEmbeddingUpdate:   LaneLow,
}

// LaneFor returns the fixed lane for a task kind. Unknown kinds land on the
// low lane.
func LaneFor(kind Kind) Lane {
	if lane, ok := laneByKind[kind]; ok {
		return lane
	}
	return LaneLow
}

// TaskEnvelope is the in-memory unit of queued work. It exists only in its
// lane; durable task state lives in the store.
type TaskEnvelope struct {
	ID         uuid.UUID
	Kind       Kind
	Lane       Lane
	Payload    json.RawMessage
	EnqueuedAt time.Time
	Attempt    int
	NotBefore  time.Time

	seq       uint64
	index     int
	cancelled atomic.Bool
}

// Cancel flags the envelope. A pending envelope is skipped at dequeue; a
// running one is expected to check Cancelled at its next safe point.
func (e *TaskEnvelope) Cancel() {
	e.cancelled.Store(true)
}

// Cancelled reports whether the envelope was cancelled.
func (e *TaskEnvelope) Cancelled() bool {
	return e.cancelled.Load()
}

// retryableError marks a failure the dispatcher should back off and retry.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return "retryable: " + e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// Retryable wraps an error so the dispatcher re-enqueues instead of
// terminally failing the task.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether the dispatcher should retry this failure.
func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}
