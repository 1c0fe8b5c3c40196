package tasks

import (
	"context"
	"time"

	"github.com/ahfmawlrl/sns-solution/internal/dispatch"
	"github.com/ahfmawlrl/sns-solution/pkg/logging"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// tokenRefreshHorizon is how far ahead the token scan looks. Anything
// expiring within the horizon gets refreshed on the next scan.
const tokenRefreshHorizon = 24 * time.Hour

// PublishPlanner fans a content item out into publish tasks. Satisfied by
// the workflow engine.
type PublishPlanner interface {
	EnqueuePublishTasks(ctx context.Context, content *models.ContentItem) error
}

// Scans holds the periodic trigger functions driven by the cron scheduler.
// Each scan only enqueues work that is still due, so overlapping or missed
// runs are harmless.
type Scans struct {
	deps    Deps
	planner PublishPlanner
}

func NewScans(deps Deps, planner PublishPlanner) *Scans {
	return &Scans{deps: deps, planner: planner}
}

// ScheduledPosts enqueues publish tasks for approved content whose scheduled
// time has arrived.
func (s *Scans) ScheduledPosts(ctx context.Context) {
	due, err := s.deps.Store.ListScheduledApproved(ctx, time.Now().UTC())
	if err != nil {
		s.deps.Logger.WithError(err).Error("Scheduled post scan failed")
		return
	}
	for i := range due {
		if err := s.planner.EnqueuePublishTasks(ctx, &due[i]); err != nil {
			s.deps.Logger.WithError(err).WithField("content_id", due[i].ID).Error("Failed to enqueue scheduled publish")
		}
	}
}

// CommentSync enqueues a comment pull per active account.
func (s *Scans) CommentSync(ctx context.Context) {
	s.perActiveAccount(ctx, dispatch.KindCommentSync, func(account models.PlatformAccount) interface{} {
		return dispatch.CommentSyncPayload{AccountID: account.ID}
	})
}

// KPICollection enqueues a metrics pull per active account.
func (s *Scans) KPICollection(ctx context.Context) {
	s.perActiveAccount(ctx, dispatch.KindKPICollection, func(account models.PlatformAccount) interface{} {
		return dispatch.KPIPayload{AccountID: account.ID}
	})
}

// TokenRefresh enqueues a refresh for accounts whose token expires within
// the horizon.
func (s *Scans) TokenRefresh(ctx context.Context) {
	accounts, err := s.deps.Store.ListExpiringAccounts(ctx, time.Now().Add(tokenRefreshHorizon))
	if err != nil {
		s.deps.Logger.WithError(err).Error("Token refresh scan failed")
		return
	}
	for _, account := range accounts {
		if _, err := s.deps.Enqueuer.Enqueue(dispatch.KindTokenRefresh, dispatch.TokenRefreshPayload{AccountID: account.ID}); err != nil {
			s.deps.Logger.WithError(err).WithField("account_id", account.ID).Error("Failed to enqueue token refresh")
		}
	}
}

// DailyReports enqueues yesterday's report for every client with active
// accounts.
func (s *Scans) DailyReports(ctx context.Context) {
	clients, err := s.deps.Store.ClientIDsWithActiveAccounts(ctx)
	if err != nil {
		s.deps.Logger.WithError(err).Error("Daily report scan failed")
		return
	}
	yesterday := time.Now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
	for _, clientID := range clients {
		if _, err := s.deps.Enqueuer.Enqueue(dispatch.KindReportGeneration, dispatch.ReportPayload{
			ClientID: clientID,
			Date:     yesterday,
		}); err != nil {
			s.deps.Logger.WithError(err).WithField("client_id", clientID).Error("Failed to enqueue daily report")
		}
	}
}

func (s *Scans) perActiveAccount(ctx context.Context, kind dispatch.Kind, payload func(models.PlatformAccount) interface{}) {
	accounts, err := s.deps.Store.ListActiveAccounts(ctx)
	if err != nil {
		s.deps.Logger.WithError(err).WithField("kind", kind).Error("Account scan failed")
		return
	}
	for _, account := range accounts {
		if _, err := s.deps.Enqueuer.Enqueue(kind, payload(account)); err != nil {
			s.deps.Logger.WithError(err).WithFields(logging.Fields{
				"kind":       kind,
				"account_id": account.ID,
			}).Error("Failed to enqueue account task")
		}
	}
}
