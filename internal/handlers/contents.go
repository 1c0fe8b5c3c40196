package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ahfmawlrl/sns-solution/internal/dispatch"
	"github.com/ahfmawlrl/sns-solution/internal/store"
	"github.com/ahfmawlrl/sns-solution/internal/workflow"
	"github.com/ahfmawlrl/sns-solution/pkg/middleware"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

type transitionRequest struct {
	Status   models.ContentStatus `json:"status" binding:"required"`
	Comment  string               `json:"comment"`
	IsUrgent bool                 `json:"is_urgent"`
}

// TransitionContent moves a content item to a new workflow status.
func (h *Handlers) TransitionContent(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	contentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content id"})
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content, err := h.engine.Transition(c.Request.Context(), actor, workflow.TransitionRequest{
		ContentID: contentID,
		To:        req.Status,
		Comment:   req.Comment,
		IsUrgent:  req.IsUrgent,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, content)
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Content not found"})
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrUrgentNotAllowed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Transition not permitted"})
	case errors.Is(err, store.ErrStatusConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Content status changed concurrently"})
	default:
		h.logger.WithError(err).Error("Workflow transition failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply transition"})
	}
}

// ListApprovals returns a content item's audit trail, oldest first.
func (h *Handlers) ListApprovals(c *gin.Context) {
	contentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content id"})
		return
	}

	records, err := h.store.ApprovalsForContent(c.Request.Context(), contentID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load approvals")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load approvals"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"approvals": records})
}

type copyRequest struct {
	Brief string `json:"brief" binding:"required"`
}

// RequestCopy queues AI copy generation for a content item. The result comes
// back as a chat_stream event.
func (h *Handlers) RequestCopy(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	contentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content id"})
		return
	}

	var req copyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taskID, err := h.dispatcher.Enqueue(dispatch.KindCopyGeneration, dispatch.CopyPayload{
		ContentID:   contentID,
		Brief:       req.Brief,
		RequestedBy: actor.UserID,
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to enqueue copy generation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue copy generation"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}
