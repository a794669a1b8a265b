package service

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

type AuthService struct {
	logger     *zap.Logger
	cronSecret string
	totpSecret string
}

func NewAuthService(logger *zap.Logger, cronSecret, totpSecret string) *AuthService {
	return &AuthService{
		logger:     logger,
		cronSecret: cronSecret,
		totpSecret: totpSecret,
	}
}

// CronMiddleware guards the cron trigger with a shared bearer secret. GET
// requests pass through: they carry no side effects.
func (a *AuthService) CronMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		if a.cronSecret == "" {
			a.logger.Warn("Cron secret not configured, rejecting trigger")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "cron secret not configured"})
			c.Abort()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(a.cronSecret)) != 1 {
			a.logger.Warn("Cron trigger rejected", zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid cron credential"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ValidateToken checks a TOTP code against the configured admin secret.
func (a *AuthService) ValidateToken(token string) bool {
	valid := totp.Validate(token, a.totpSecret)
	if !valid {
		a.logger.Warn("TOTP token validation failed")
	}
	return valid
}

// AdminMiddleware guards admin routes with a per-request TOTP code. When no
// TOTP secret is configured the routes are open (local deployments).
func (a *AuthService) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.totpSecret == "" {
			c.Next()
			return
		}

		code := c.GetHeader("X-Auth-Code")
		if code == "" || !a.ValidateToken(code) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		c.Next()
	}
}
