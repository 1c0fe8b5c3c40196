// Package platform wraps third-party social-platform and AI provider APIs.
// Every outbound call runs through the guard; callers classify failures via
// StatusError.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ahfmawlrl/sns-solution/internal/guard"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// PostRef identifies a published post on the remote platform.
type PostRef struct {
	PostID string
	URL    string
}

// Publisher publishes content to one platform family.
type Publisher interface {
	Platform() models.Platform
	Publish(ctx context.Context, account models.PlatformAccount, content models.ContentItem) (PostRef, error)
	RefreshToken(ctx context.Context, account models.PlatformAccount) (string, error)
}

// CommentFetcher pulls recent comments on an account's posts.
type CommentFetcher interface {
	FetchComments(ctx context.Context, account models.PlatformAccount, since time.Time) ([]models.Comment, error)
}

// Insights is one engagement snapshot for an account.
type Insights struct {
	Followers   int64
	Impressions int64
	Engagements int64
}

// InsightsFetcher pulls engagement metrics for an account.
type InsightsFetcher interface {
	FetchInsights(ctx context.Context, account models.PlatformAccount) (Insights, error)
}

// StatusError is a non-2xx response from a remote API.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.Code, e.Body)
}

// IsRetryable reports whether a remote failure is transient: rate limiting
// and server errors are, guard rejections are (the backoff throttles callers
// of a struggling service), other client errors are not.
func IsRetryable(err error) bool {
	if errors.Is(err, guard.ErrBreakerOpen) || errors.Is(err, guard.ErrQuotaExceeded) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	// Network errors and timeouts have no status code; treat as transient.
	var permanent *PermanentError
	return !errors.As(err, &permanent)
}

// PermanentError marks a failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}
