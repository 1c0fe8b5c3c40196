package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ahfmawlrl/sns-solution/internal/store"
	"github.com/ahfmawlrl/sns-solution/pkg/middleware"
)

// ListNotifications returns the caller's notifications, newest first.
func (h *Handlers) ListNotifications(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	events, err := h.store.ListNotifications(c.Request.Context(), actor.UserID, limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load notifications")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": events})
}

// UnreadCount returns the caller's unread counter.
func (h *Handlers) UnreadCount(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	count, err := h.notifier.UnreadCount(c.Request.Context(), actor.UserID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load unread count")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load unread count"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// MarkNotificationRead flips one notification to read.
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification id"})
		return
	}

	err = h.store.MarkNotificationRead(c.Request.Context(), id, actor.UserID, time.Now().UTC())
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to mark notification read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark read"})
		return
	}

	h.notifier.MarkRead(c.Request.Context(), actor.UserID)
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// MarkAllRead flips every unread notification of the caller.
func (h *Handlers) MarkAllRead(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	affected, err := h.store.MarkAllNotificationsRead(c.Request.Context(), actor.UserID, time.Now().UTC())
	if err != nil {
		h.logger.WithError(err).Error("Failed to mark all notifications read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark all read"})
		return
	}

	h.notifier.ClearUnread(c.Request.Context(), actor.UserID)
	c.JSON(http.StatusOK, gin.H{"marked": affected})
}
