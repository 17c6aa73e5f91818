package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/creatorpulse/creatorpulse-api/internal/api/middleware"
	"github.com/creatorpulse/creatorpulse-api/internal/connectors"
	"github.com/creatorpulse/creatorpulse-api/internal/crawler"
	"github.com/creatorpulse/creatorpulse-api/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// requireUserID pulls the authenticated user from the context, writing the
// 401 itself on failure.
func requireUserID(c *gin.Context) (uint, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	return userID, true
}

// pathID parses a numeric path parameter, writing the 400 itself on failure.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	value := c.Query(name)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var validationErr *connectors.ValidationError
	var rateLimitErr *services.RateLimitExceededError

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &rateLimitErr):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       rateLimitErr.Error(),
			"limit_type":  rateLimitErr.LimitType,
			"limit_value": rateLimitErr.LimitValue,
			"reset_at":    rateLimitErr.ResetAt,
		})
	case errors.Is(err, crawler.ErrBatchInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrDraftBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
