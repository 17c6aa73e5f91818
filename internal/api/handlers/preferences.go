package handlers

import (
	"net/http"

	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/creatorpulse/creatorpulse-api/internal/services"
	"github.com/gin-gonic/gin"
)

type PreferencesHandler struct {
	preferences *services.PreferencesService
}

func NewPreferencesHandler(preferences *services.PreferencesService) *PreferencesHandler {
	return &PreferencesHandler{preferences: preferences}
}

// Get returns the resolved preferences document (defaults merged with
// stored overrides).
func (h *PreferencesHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	prefs, err := h.preferences.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

// Patch deep-merges the supplied document into the stored overrides.
func (h *PreferencesHandler) Patch(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var patch models.JSONMap
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	prefs, err := h.preferences.Patch(c.Request.Context(), userID, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

// Reset discards stored overrides and returns the defaults.
func (h *PreferencesHandler) Reset(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	prefs, err := h.preferences.Reset(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}
