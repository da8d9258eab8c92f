package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"device-ingest/internal/services"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"
)

const (
	authContextKey = "auth_context"
	adminClaimsKey = "admin_claims"
)

// DeviceAuthMiddleware admits a request only when the bearer token names a
// valid device and the device is within its rate limit.
func DeviceAuthMiddleware(auth *services.AuthService, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, err := auth.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			if e, ok := services.AsError(err); ok && e.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))
			}
			RespondError(c, err, log)
			c.Abort()
			return
		}

		c.Set(authContextKey, ac)
		c.Next()
	}
}

// GetAuthContext returns the device context set by DeviceAuthMiddleware.
func GetAuthContext(c *gin.Context) (*services.AuthContext, bool) {
	v, ok := c.Get(authContextKey)
	if !ok {
		return nil, false
	}
	ac, ok := v.(*services.AuthContext)
	return ac, ok
}

// AdminAuthMiddleware requires a JWT issued by AdminService.
func AdminAuthMiddleware(admin *services.AdminService, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			RespondError(c, services.ErrUnauthorized, log)
			c.Abort()
			return
		}

		claims, err := admin.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			log.Debug("admin token rejected", "error", err)
			RespondError(c, services.ErrUnauthorized, log)
			c.Abort()
			return
		}

		c.Set(adminClaimsKey, claims)
		c.Next()
	}
}

// ValidationMiddleware rejects POST and PUT bodies that are neither JSON nor
// multipart form data.
func ValidationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
			if c.Request.ContentLength == 0 {
				c.Next()
				return
			}
			contentType := c.GetHeader("Content-Type")
			if !strings.Contains(contentType, "application/json") &&
				!strings.HasPrefix(contentType, "multipart/form-data") {
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"error":   "Content-Type must be application/json or multipart/form-data",
					"code":    services.KindInvalidRecord,
				})
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

// RespondError writes the standard error body for err. Unexpected errors are
// logged and replaced with an opaque message.
func RespondError(c *gin.Context, err error, log *slog.Logger) {
	e, ok := services.AsError(err)
	if !ok {
		log.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString(requestIDKey),
			"error", err,
		)
	}
	c.JSON(services.HTTPStatus(e.Kind), gin.H{
		"success": false,
		"error":   e.Message,
		"code":    e.Kind,
	})
}
