// Package handlers exposes the HTTP surface: workflow transitions, publish
// control, notifications and the websocket handshake.
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ahfmawlrl/sns-solution/internal/dispatch"
	"github.com/ahfmawlrl/sns-solution/internal/fanout"
	"github.com/ahfmawlrl/sns-solution/internal/store"
	"github.com/ahfmawlrl/sns-solution/internal/workflow"
	"github.com/ahfmawlrl/sns-solution/pkg/logging"
	"github.com/ahfmawlrl/sns-solution/pkg/middleware"
	"github.com/ahfmawlrl/sns-solution/pkg/monitoring"
)

// TaskCanceller cancels queued or running background tasks.
type TaskCanceller interface {
	Enqueue(kind dispatch.Kind, payload interface{}) (uuid.UUID, error)
	CancelTask(id uuid.UUID) bool
}

// Handlers carries the HTTP layer's collaborators.
type Handlers struct {
	store      *store.Store
	engine     *workflow.Engine
	notifier   *fanout.Notifier
	dispatcher TaskCanceller
	hub        *fanout.Hub
	jwtSecret  []byte
	logger     logging.Logger
}

func New(st *store.Store, engine *workflow.Engine, notifier *fanout.Notifier, dispatcher TaskCanceller, hub *fanout.Hub, jwtSecret []byte, logger logging.Logger) *Handlers {
	return &Handlers{
		store:      st,
		engine:     engine,
		notifier:   notifier,
		dispatcher: dispatcher,
		hub:        hub,
		jwtSecret:  jwtSecret,
		logger:     logger,
	}
}

// RegisterRoutes mounts everything on the router.
func (h *Handlers) RegisterRoutes(router *gin.Engine, health *monitoring.HealthChecker, metrics *monitoring.MetricsCollector) {
	router.GET("/health", health.Handler())
	router.GET("/metrics", metrics.Handler())

	router.GET("/ws", h.hub.ServeWS(h.jwtSecret))

	api := router.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(h.jwtSecret))
	{
		api.POST("/contents/:id/status", h.TransitionContent)
		api.GET("/contents/:id/approvals", h.ListApprovals)
		api.POST("/contents/:id/copy", h.RequestCopy)

		api.GET("/contents/:id/publishing", h.ListPublishTasks)
		api.POST("/publishing/:contentID/retry", h.RetryPublish)
		api.POST("/publishing/tasks/:id/cancel", h.CancelPublishTask)

		api.GET("/notifications", h.ListNotifications)
		api.GET("/notifications/unread-count", h.UnreadCount)
		api.PUT("/notifications/:id/read", h.MarkNotificationRead)
		api.PUT("/notifications/read-all", h.MarkAllRead)
	}
}
