package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driveshare/driveshare/internal/identity"
)

const (
	ctxAccountID = "account_id"
	ctxRole      = "role"
)

func (g *Gateway) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()

		g.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("correlation_id", correlationID))
	}
}

func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		claims, err := g.tokens.Verify(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxAccountID, claims.AccountID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

func (g *Gateway) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.MustGet(ctxRole).(identity.Role)
		if role != identity.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func (g *Gateway) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var allowed bool
		err := g.breakers.Execute("ratelimit", func() error {
			var lerr error
			allowed, lerr = g.limiter.Allow(c.Request.Context(), c.ClientIP())
			return lerr
		})
		if err != nil {
			// Limiter backend down or breaker tripped; let traffic
			// through rather than refusing everything.
			g.logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func accountID(c *gin.Context) string {
	id, _ := c.MustGet(ctxAccountID).(string)
	return id
}
