package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxWebhookBodyBytes = 1 << 20

// GatewayContext tags the request with the gateway path parameter so request
// logs can be filtered per provider, and caps the callback body size.
func GatewayContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if gateway := strings.ToLower(strings.TrimSpace(c.Param("gateway"))); gateway != "" {
			c.Set("gateway", gateway)
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
		c.Next()
	}
}
