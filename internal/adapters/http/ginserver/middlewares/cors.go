package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AllowAll permits any origin. The surface is read-only telemetry served
// to local dashboards, so a permissive policy is intentional.
func AllowAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "*")
		c.Header("Access-Control-Allow-Headers", "*")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
