package handlers

import (
	"net/http"

	"github.com/creatorpulse/creatorpulse-api/internal/crawler"
	"github.com/creatorpulse/creatorpulse-api/internal/services"
	"github.com/gin-gonic/gin"
)

type SourceHandler struct {
	sources      *services.SourceService
	orchestrator *crawler.Orchestrator
}

func NewSourceHandler(sources *services.SourceService, orchestrator *crawler.Orchestrator) *SourceHandler {
	return &SourceHandler{sources: sources, orchestrator: orchestrator}
}

// Create validates a new source against its provider and stores it.
func (h *SourceHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var input services.CreateSourceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if input.Kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind is required"})
		return
	}

	source, err := h.sources.Create(c.Request.Context(), userID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"source": source})
}

// List returns the user's sources.
func (h *SourceHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sources, err := h.sources.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources, "count": len(sources)})
}

// Get returns one source.
func (h *SourceHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sourceID, ok := pathID(c, "id")
	if !ok {
		return
	}

	source, err := h.sources.Get(c.Request.Context(), userID, sourceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": source})
}

// Update changes a source, re-validating when config or credentials moved.
func (h *SourceHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sourceID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var input services.UpdateSourceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	source, err := h.sources.Update(c.Request.Context(), userID, sourceID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": source})
}

// Delete removes a source and its content items.
func (h *SourceHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sourceID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.sources.Delete(c.Request.Context(), userID, sourceID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Kinds enumerates the supported source kinds.
func (h *SourceHandler) Kinds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"kinds": h.sources.Kinds()})
}

// Schema returns the credential and config keys one kind requires.
func (h *SourceHandler) Schema(c *gin.Context) {
	credentials, config, err := h.sources.CredentialSchema(c.Param("kind"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"kind":        c.Param("kind"),
		"credentials": credentials,
		"config":      config,
	})
}

// Sync crawls one source immediately, outside the batch mutex.
func (h *SourceHandler) Sync(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sourceID, ok := pathID(c, "id")
	if !ok {
		return
	}

	fetched, inserted, err := h.orchestrator.SyncSource(c.Request.Context(), userID, sourceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items_fetched": fetched, "items_new": inserted})
}

// Reactivate flips one errored source back to active.
func (h *SourceHandler) Reactivate(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sourceID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.orchestrator.ReactivateSource(c.Request.Context(), userID, sourceID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactivated": true})
}

// ReactivateAll flips every errored source of the user back to active.
func (h *SourceHandler) ReactivateAll(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	count, err := h.orchestrator.ReactivateAllSources(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactivated": count})
}
