package handlers

import (
	"net/http"

	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/creatorpulse/creatorpulse-api/internal/services"
	"github.com/gin-gonic/gin"
)

type FeedbackHandler struct {
	feedback *services.FeedbackService
}

func NewFeedbackHandler(feedback *services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

type submitFeedbackRequest struct {
	DraftID   uint   `json:"draft_id"`
	SectionID string `json:"section_id"`
	Type      string `json:"type"`
	Comment   string `json:"comment"`
}

// Submit records one feedback signal on a draft or section.
func (h *FeedbackHandler) Submit(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req submitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	fb := models.Feedback{
		UserID:    userID,
		DraftID:   req.DraftID,
		SectionID: req.SectionID,
		Type:      req.Type,
		Comment:   req.Comment,
	}
	if err := h.feedback.Submit(c.Request.Context(), &fb); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"feedback": fb})
}

// List returns recent feedback, optionally filtered to one draft.
func (h *FeedbackHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if draftID := queryInt(c, "draft_id", 0); draftID > 0 {
		items, err := h.feedback.ListByDraft(c.Request.Context(), userID, uint(draftID))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"feedback": items, "count": len(items)})
		return
	}

	items, err := h.feedback.ListByUser(c.Request.Context(), userID, queryInt(c, "limit", 50))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": items, "count": len(items)})
}

type updateFeedbackRequest struct {
	Type    string `json:"type"`
	Comment string `json:"comment"`
}

// Update changes type or comment on one signal.
func (h *FeedbackHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	feedbackID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	fb, err := h.feedback.Update(c.Request.Context(), userID, feedbackID, req.Type, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": fb})
}

// Delete removes one signal.
func (h *FeedbackHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	feedbackID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.feedback.Delete(c.Request.Context(), userID, feedbackID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Stats returns aggregate feedback counts and the positive rate.
func (h *FeedbackHandler) Stats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	stats, err := h.feedback.Stats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// Insights synthesizes feedback into style guidance. Fewer than five signals
// in the window returns an empty result without a model call.
func (h *FeedbackHandler) Insights(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	insights, err := h.feedback.GenerateInsights(c.Request.Context(), userID, queryInt(c, "days_back", 30))
	if err != nil {
		respondError(c, err)
		return
	}
	if insights == nil {
		c.JSON(http.StatusOK, gin.H{"insights": nil, "message": "Not enough feedback yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": insights})
}
