package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/ratelimit"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/service"
	"github.com/rijughosh01/developer-social-platform-sub000/pkg/logger"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

func SuccessResponse(c *gin.Context, status int, data interface{}) {
	c.JSON(
		status, Response{
			Success: true,
			Data:    data,
		},
	)
}

func ErrorResponse(c *gin.Context, status int, err interface{}) {
	c.JSON(
		status, Response{
			Success: false,
			Error:   err,
		},
	)
}

// respondError maps service and limiter errors to status codes. Provider
// bodies are never echoed to the caller.
func respondError(c *gin.Context, err error) {
	var (
		validation *service.ValidationError
		quota      *service.QuotaExceededError
		limited    *ratelimit.RateLimitError
		exhausted  *service.UpstreamExhaustedError
	)

	switch {
	case errors.As(err, &validation):
		ErrorResponse(
			c, http.StatusBadRequest, models.NewErrorResponse(
				"INVALID_REQUEST", validation.Error(), gin.H{"field": validation.Field},
			),
		)
	case errors.As(err, &quota):
		ErrorResponse(
			c, http.StatusForbidden, models.NewErrorResponse(
				"QUOTA_EXCEEDED", quota.Error(), gin.H{
					"models":    quota.Models,
					"plan":      quota.Plan,
					"resetTime": quota.ResetTime,
				},
			),
		)
	case errors.As(err, &limited):
		setRateLimitHeaders(c, limited.Decision)
		c.Header("Retry-After", strconv.Itoa(limited.Decision.RetryAfterSeconds))
		ErrorResponse(
			c, http.StatusTooManyRequests, models.NewErrorResponse(
				"RATE_LIMITED", limited.Error(), limited.Decision,
			),
		)
	case errors.As(err, &exhausted):
		logger.Error("All AI models failed", "attempted", exhausted.Attempted, "error", exhausted.Err)
		ErrorResponse(
			c, http.StatusBadGateway, models.NewErrorResponse(
				"AI_UNAVAILABLE", "All AI models are currently unavailable, please try again later",
				gin.H{"attempted": exhausted.Attempted},
			),
		)
	case errors.Is(err, ratelimit.ErrUnauthenticated):
		ErrorResponse(c, http.StatusUnauthorized, models.NewErrorResponse("UNAUTHENTICATED", err.Error(), nil))
	default:
		logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		ErrorResponse(
			c, http.StatusInternalServerError, models.NewErrorResponse("INTERNAL_ERROR", "Internal server error", nil),
		)
	}
}

func setRateLimitHeaders(c *gin.Context, d ratelimit.Decision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetTime.IsZero() {
		c.Header("X-RateLimit-Reset", d.ResetTime.UTC().Format(time.RFC3339))
	}
	c.Header("X-DailyLimit-Limit", strconv.Itoa(d.DailyLimit))
	c.Header("X-DailyLimit-Remaining", strconv.Itoa(d.DailyRemaining))
}
