package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// NoAuth is the AUTH_MODE=none middleware for self-hosted and local
// development. Requests act as user 1 unless an X-User-ID header picks
// another user.
func NoAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := uint(1)
		if header := c.GetHeader("X-User-ID"); header != "" {
			if id, err := strconv.ParseUint(header, 10, 64); err == nil {
				userID = uint(id)
			}
		}
		c.Set("user_id", userID)
		c.Next()
	}
}
