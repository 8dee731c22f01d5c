package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/config"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/ratelimit"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/service"
	"github.com/rijughosh01/developer-social-platform-sub000/pkg/logger"
)

const (
	ctxUserID    = "userID"
	ctxPlan      = "plan"
	ctxRequestID = "requestID"
)

// Claims is the token issued by the platform's auth service. The subject is
// the user id.
type Claims struct {
	Plan string `json:"plan"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies an HS256 bearer token and stores user id and plan
// on the context.
func AuthMiddleware(auth config.AuthConfig) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(auth.Issuer))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(auth.JWTSecret), nil
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			ErrorResponse(
				c, http.StatusUnauthorized, models.NewErrorResponse("UNAUTHENTICATED", "Missing bearer token", nil),
			)
			c.Abort()
			return
		}

		claims := &Claims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
			logger.Debug("Rejected token", "error", err)
			ErrorResponse(
				c, http.StatusUnauthorized, models.NewErrorResponse("UNAUTHENTICATED", "Invalid token", nil),
			)
			c.Abort()
			return
		}
		if claims.Subject == "" {
			ErrorResponse(
				c, http.StatusUnauthorized, models.NewErrorResponse("UNAUTHENTICATED", "Token has no subject", nil),
			)
			c.Abort()
			return
		}

		plan := claims.Plan
		if plan == "" {
			plan = auth.DefaultPlan
		}
		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxPlan, models.ParsePlan(plan))
		c.Next()
	}
}

// AdminMiddleware allows only the configured admin users through.
func AdminMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.IsAdmin(c.GetString(ctxUserID)) {
			ErrorResponse(c, http.StatusForbidden, models.NewErrorResponse("FORBIDDEN", "Admin access required", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimitMiddleware consumes one admission slot for the route's usage
// context before the handler runs.
func RateLimitMiddleware(svc *service.AIService, uc models.UsageContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !admit(c, svc, uc) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// admit runs the admission check and writes the rejection when it fails.
func admit(c *gin.Context, svc *service.AIService, uc models.UsageContext) bool {
	decision, err := svc.CheckRateLimit(c.Request.Context(), c.GetString(ctxUserID), uc)
	if err != nil {
		var limited *ratelimit.RateLimitError
		if errors.As(err, &limited) || errors.Is(err, ratelimit.ErrUnauthenticated) {
			respondError(c, err)
			return false
		}
		// A counter store outage must not take AI features down.
		logger.Error("Rate limit check failed", "user", c.GetString(ctxUserID), "context", uc, "error", err)
		return true
	}

	setRateLimitHeaders(c, decision)
	return true
}

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ctxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		logger.Info(
			"Incoming request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(ctxRequestID),
		)

		c.Next()

		logger.Info(
			"Request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"request_id", c.GetString(ctxRequestID),
		)
	}
}

// Error handling middleware
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, c.Errors.Last().Err)
		}
	}
}

// CORS middleware
func CORSMiddleware(cors config.CORSConfig) gin.HandlerFunc {
	methods := "GET, POST, DELETE, OPTIONS"
	if len(cors.AllowedMethods) > 0 {
		methods = strings.Join(cors.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := "*"
		if len(cors.AllowedOrigins) > 0 {
			origin = ""
			requested := c.GetHeader("Origin")
			for _, o := range cors.AllowedOrigins {
				if o == "*" {
					origin = "*"
					break
				}
				if requested != "" && o == requested {
					origin = requested
					break
				}
			}
		}
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", methods)
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Writer.Header().Set(
			"Access-Control-Expose-Headers",
			"X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, X-DailyLimit-Limit, X-DailyLimit-Remaining, Retry-After",
		)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func userOf(c *gin.Context) (string, models.Plan) {
	plan, _ := c.Get(ctxPlan)
	p, _ := plan.(models.Plan)
	return c.GetString(ctxUserID), p
}
