package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ClientIDKey is the gin context key carrying the resolved client id.
const ClientIDKey = "client_id"

// APIKeyAuth validates the X-API-Key header against the configured client key
// map and stores the resolved client id on the request context. An empty map
// disables authentication, which is the intended mode for local development.
func APIKeyAuth(clientKeys map[string]string, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(clientKeys) == 0 {
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" {
			log.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("auth failed: missing X-API-Key header")
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authentication required",
				"code":    "MISSING_API_KEY",
			})
			c.Abort()
			return
		}

		clientID, ok := clientKeys[key]
		if !ok {
			log.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("auth failed: unknown API key")
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid API key",
				"code":    "INVALID_API_KEY",
			})
			c.Abort()
			return
		}

		c.Set(ClientIDKey, clientID)
		c.Next()
	}
}
