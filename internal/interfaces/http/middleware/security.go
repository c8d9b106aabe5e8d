// internal/interfaces/http/middleware/security.go
package middleware

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeaders adds security headers to responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent clickjacking
		c.Header("X-Frame-Options", "DENY")

		// Prevent MIME type sniffing
		c.Header("X-Content-Type-Options", "nosniff")

		// Referrer Policy
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// JSON API, nothing to load or embed
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Cart responses are per user
		c.Header("Cache-Control", "no-store")

		c.Next()
	}
}
