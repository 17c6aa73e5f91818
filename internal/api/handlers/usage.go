package handlers

import (
	"net/http"

	"github.com/creatorpulse/creatorpulse-api/internal/services"
	"github.com/gin-gonic/gin"
)

type UsageHandler struct {
	gateway *services.GatewayService
}

func NewUsageHandler(gateway *services.GatewayService) *UsageHandler {
	return &UsageHandler{gateway: gateway}
}

// Summary returns today's and this month's model usage with cost estimates.
func (h *UsageHandler) Summary(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	summary, err := h.gateway.GetUsageSummary(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// Stats returns per-day and per-service usage over a trailing window.
func (h *UsageHandler) Stats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	stats, err := h.gateway.GetUsageStats(c.Request.Context(), userID, queryInt(c, "days", 30))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// Logs returns recent model-call log rows.
func (h *UsageHandler) Logs(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	logs, err := h.gateway.GetUsageLogs(c.Request.Context(), userID, queryInt(c, "limit", 50))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// RateLimits returns the user's current model-call limit windows.
func (h *UsageHandler) RateLimits(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	status, err := h.gateway.GetRateLimitStatus(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rate_limits": status})
}
