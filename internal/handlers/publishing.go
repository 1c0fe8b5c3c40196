package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ahfmawlrl/sns-solution/internal/store"
	"github.com/ahfmawlrl/sns-solution/pkg/middleware"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// ListPublishTasks returns the publish history for a content item, newest
// first.
func (h *Handlers) ListPublishTasks(c *gin.Context) {
	contentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content id"})
		return
	}

	tasks, err := h.store.PublishTasksForContent(c.Request.Context(), contentID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load publish tasks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load publish tasks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// RetryPublish creates fresh publish tasks for an approved or published
// content item. Accounts with a task already in flight are skipped; failed
// history rows are kept and a new row is created per retried account.
func (h *Handlers) RetryPublish(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	if actor.Role == models.RoleClient {
		c.JSON(http.StatusForbidden, gin.H{"error": "Clients cannot retry publishing"})
		return
	}

	contentID, err := uuid.Parse(c.Param("contentID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content id"})
		return
	}

	content, err := h.store.GetContent(c.Request.Context(), contentID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Content not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to load content for retry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load content"})
		return
	}
	if content.Status != models.ContentApproved && content.Status != models.ContentPublished {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Content is not approved for publishing"})
		return
	}

	if err := h.engine.EnqueuePublishTasks(c.Request.Context(), content); err != nil {
		h.logger.WithError(err).Error("Failed to enqueue publish retry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue publish"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "enqueued"})
}

// CancelPublishTask cancels a pending or running publish task. The durable
// row flips first; the in-memory envelope shares the row's id and is
// cancelled best-effort.
func (h *Handlers) CancelPublishTask(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	if actor.Role == models.RoleClient {
		c.JSON(http.StatusForbidden, gin.H{"error": "Clients cannot cancel publishing"})
		return
	}

	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task id"})
		return
	}

	err = h.store.MarkPublishCancelled(c.Request.Context(), taskID)
	switch {
	case errors.Is(err, store.ErrStatusConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Task already finished"})
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to cancel publish task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel task"})
		return
	}

	h.dispatcher.CancelTask(taskID)
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
