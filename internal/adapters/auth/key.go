package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const PublishKeyHeader = "X-Relay-Key"

// PublishKey guards the producer-facing endpoints with a shared key.
// An empty key disables them.
func PublishKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "publishing disabled"})
			return
		}
		got := c.GetHeader(PublishKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid publish key"})
			return
		}
		c.Next()
	}
}
