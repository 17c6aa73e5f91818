package handlers

import (
	"net/http"

	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/creatorpulse/creatorpulse-api/internal/services"
	"github.com/gin-gonic/gin"
)

type DraftHandler struct {
	drafts *services.DraftService
	email  *services.EmailService
}

func NewDraftHandler(drafts *services.DraftService, email *services.EmailService) *DraftHandler {
	return &DraftHandler{drafts: drafts, email: email}
}

type generateRequest struct {
	TopicCount int `json:"topic_count"`
	DaysBack   int `json:"days_back"`
}

// Generate starts a draft generation and returns the placeholder row.
// Generation continues in the background; poll the draft for status.
func (h *DraftHandler) Generate(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req generateRequest
	_ = c.ShouldBindJSON(&req) // empty body means defaults

	draft, err := h.drafts.Generate(c.Request.Context(), userID, services.GenerateOptions{
		TopicCount: req.TopicCount,
		DaysBack:   req.DaysBack,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"draft": draft})
}

// Regenerate re-runs generation over an existing draft row.
func (h *DraftHandler) Regenerate(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	draftID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req generateRequest
	_ = c.ShouldBindJSON(&req)

	draft, err := h.drafts.Regenerate(c.Request.Context(), userID, draftID, services.GenerateOptions{
		TopicCount: req.TopicCount,
		DaysBack:   req.DaysBack,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"draft": draft})
}

// List returns the user's drafts, newest first.
func (h *DraftHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	drafts, err := h.drafts.List(c.Request.Context(), userID, queryInt(c, "limit", 20))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drafts": drafts, "count": len(drafts)})
}

// Get returns one draft.
func (h *DraftHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	draftID, ok := pathID(c, "id")
	if !ok {
		return
	}

	draft, err := h.drafts.Get(c.Request.Context(), userID, draftID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": draft})
}

type updateDraftRequest struct {
	Title    string               `json:"title"`
	Sections models.DraftSections `json:"sections"`
}

// Update saves edited title and sections, moving the draft to editing.
func (h *DraftHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	draftID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	draft, err := h.drafts.UpdateSections(c.Request.Context(), userID, draftID, req.Title, req.Sections)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": draft})
}

type publishRequest struct {
	Subject string `json:"subject"`
}

// Publish sends the draft to the user's recipient list and marks it
// published. Per-recipient outcomes come back in the response.
func (h *DraftHandler) Publish(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	draftID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req publishRequest
	_ = c.ShouldBindJSON(&req)

	outcomes, err := h.email.SendNewsletter(c.Request.Context(), userID, draftID, req.Subject)
	if err != nil {
		respondError(c, err)
		return
	}

	draft, err := h.drafts.MarkPublished(c.Request.Context(), userID, draftID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": draft, "recipients": outcomes})
}

// Delete removes a draft.
func (h *DraftHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	draftID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.drafts.Delete(c.Request.Context(), userID, draftID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Debug reports the generation inputs available to the user: content counts,
// trend counts, and whether generation can proceed.
func (h *DraftHandler) Debug(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	info, err := h.drafts.Debug(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"debug": info})
}
