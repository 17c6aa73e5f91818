package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GatewayAuth trusts user identity from gateway headers (X-User-ID,
// X-User-Email). Used when the API runs behind the hosted session gateway,
// which owns JWT validation and billing.
//
// When AUTH_MODE=gateway the headers are trusted unconditionally, so this
// mode requires network isolation between gateway and API.
func GatewayAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDStr := c.GetHeader("X-User-ID")
		if userIDStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Authentication required",
				"message": "Missing X-User-ID header from gateway",
			})
			c.Abort()
			return
		}

		id, err := strconv.ParseUint(userIDStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Authentication required",
				"message": "Malformed X-User-ID header",
			})
			c.Abort()
			return
		}

		c.Set("user_id", uint(id))
		c.Set("user_email", c.GetHeader("X-User-Email"))
		c.Next()
	}
}

// CurrentUserID returns the authenticated user's ID from the request context.
func CurrentUserID(c *gin.Context) (uint, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok
}
