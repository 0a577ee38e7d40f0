package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ZJUSCT/slotgarage/internal/auth"
	"github.com/ZJUSCT/slotgarage/internal/config"
	"github.com/ZJUSCT/slotgarage/internal/metrics"
	"github.com/ZJUSCT/slotgarage/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// CORSMiddleware provides a configurable CORS middleware.
func CORSMiddleware(cfg config.CORS) gin.HandlerFunc {
	return func(c *gin.Context) {
		// If no origins are configured, do nothing.
		if len(cfg.AllowedOrigins) == 0 {
			c.Next()
			return
		}

		allowOrigin := allowedOrigin(cfg.AllowedOrigins, c.Request.Header.Get("Origin"))

		// Only set headers if the origin is allowed.
		if allowOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

			if c.Request.Method == "OPTIONS" {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
		}
		c.Next()
	}
}

// allowedOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not allowed.
func allowedOrigin(allowed []string, origin string) string {
	if lo.Contains(allowed, "*") {
		return "*"
	}
	if origin != "" && lo.Contains(allowed, origin) {
		return origin
	}
	return ""
}

const (
	userIDKey   = "userID"
	usernameKey = "username"
)

// AuthMiddleware requires a valid bearer token and stores its subject and
// username on the context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			util.Error(c, http.StatusUnauthorized, "Authorization header is required")
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			util.Error(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
			c.Abort()
			return
		}

		claims, err := auth.ValidateJWT(parts[1], secret)
		if err != nil {
			util.Error(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Set(usernameKey, claims.Username)
		c.Next()
	}
}

// MetricsMiddleware records request counts and latency per route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// UserID returns the authenticated user set by AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// Username returns the account name carried by the token.
func Username(c *gin.Context) string {
	return c.GetString(usernameKey)
}
