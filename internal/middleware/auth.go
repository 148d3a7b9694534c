// Package middleware provides Gin HTTP middleware for authentication, request
// correlation, metrics, rate limiting, and security headers.
//
// Middleware ordering is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → Security → RateLimit → Auth → Handler
//
// Auth places the actor on the request context so that every repository
// write made while serving the request is attributed by the audit recorder.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lgu-records/issuance-registry/internal/audit"
	"github.com/lgu-records/issuance-registry/internal/auth"
)

const (
	// ActorIDKey is the gin.Context key holding the authenticated actor id
	ActorIDKey = "actor_id"
	// ActorEmailKey is the gin.Context key holding the authenticated actor email
	ActorEmailKey = "actor_email"
)

// AuthMiddleware requires a valid bearer JWT. The token subject and the client
// IP become the audit actor for the rest of the request.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(ActorIDKey, claims.ActorID())
		c.Set(ActorEmailKey, claims.Email)
		ctx := audit.WithActor(c.Request.Context(), audit.Actor{ID: claims.ActorID(), IP: c.ClientIP()})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
