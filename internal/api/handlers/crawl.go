package handlers

import (
	"net/http"

	"github.com/creatorpulse/creatorpulse-api/internal/crawler"
	"github.com/gin-gonic/gin"
)

type CrawlHandler struct {
	orchestrator *crawler.Orchestrator
}

func NewCrawlHandler(orchestrator *crawler.Orchestrator) *CrawlHandler {
	return &CrawlHandler{orchestrator: orchestrator}
}

// Trigger starts a batch crawl of every active source the user has. A batch
// already in flight returns 409.
func (h *CrawlHandler) Trigger(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	result, err := h.orchestrator.CrawlUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// Status returns the schedule row and recent crawl logs.
func (h *CrawlHandler) Status(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", 20)
	schedule, logs, err := h.orchestrator.BatchStatus(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": schedule, "logs": logs})
}
