package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/service"
)

type Handler struct {
	ai *service.AIService
}

func NewHandler(ai *service.AIService) *Handler {
	return &Handler{
		ai: ai,
	}
}

func badRequest(c *gin.Context, err error) {
	ErrorResponse(
		c, http.StatusBadRequest, models.NewErrorResponse(
			"INVALID_REQUEST",
			"Invalid request body",
			err.Error(),
		),
	)
}

func (h *Handler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.UserID, req.Plan = userOf(c)
	// Chat is limited by the context named in the body.
	if !admit(c, h.ai, models.ParseUsageContext(string(req.Context))) {
		return
	}

	resp, err := h.ai.Chat(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, resp)
}

// StreamChat answers over server-sent events: "message" events carry
// content, a single "usage" event closes the stream.
func (h *Handler) StreamChat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.UserID, req.Plan = userOf(c)
	if !admit(c, h.ai, models.ParseUsageContext(string(req.Context))) {
		return
	}

	streamChan, err := h.ai.ChatStream(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	// The producer only finishes once the final chunk is taken.
	defer func() {
		for range streamChan {
		}
	}()

	// Set headers for SSE
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(
		func(w io.Writer) bool {
			msg, ok := <-streamChan
			if !ok {
				return false
			}
			if !msg.Done {
				c.SSEvent("message", msg)
				return true
			}
			if msg.Error != nil {
				c.SSEvent("error", gin.H{"message": "The AI response was interrupted"})
			}
			c.SSEvent("usage", msg)
			return false
		},
	)
}

func (h *Handler) CodeReview(c *gin.Context) {
	var req models.CodeReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	userID, plan := userOf(c)

	resp, err := h.ai.CodeReview(c.Request.Context(), userID, plan, req)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, resp)
}

func (h *Handler) Debug(c *gin.Context) {
	var req models.DebugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	userID, plan := userOf(c)

	resp, err := h.ai.DebugCode(c.Request.Context(), userID, plan, req)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, resp)
}

func (h *Handler) Learning(c *gin.Context) {
	var req models.LearningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	userID, plan := userOf(c)

	resp, err := h.ai.LearningHelp(c.Request.Context(), userID, plan, req)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, resp)
}

func (h *Handler) ProjectAdvice(c *gin.Context) {
	var req models.ProjectAdviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	userID, plan := userOf(c)

	resp, err := h.ai.ProjectAdvice(c.Request.Context(), userID, plan, req)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, resp)
}

func (h *Handler) GetModels(c *gin.Context) {
	_, plan := userOf(c)
	SuccessResponse(c, http.StatusOK, h.ai.GetAvailableModels(plan))
}

// GetRecommendations ranks models for ?context=, optionally shaped by
// ?level= and a comma separated ?skills= list.
func (h *Handler) GetRecommendations(c *gin.Context) {
	userID, plan := userOf(c)
	profile := models.UserProfile{Level: c.Query("level")}
	if skills := c.Query("skills"); skills != "" {
		for _, s := range strings.Split(skills, ",") {
			if s = strings.TrimSpace(s); s != "" {
				profile.Skills = append(profile.Skills, s)
			}
		}
	}

	uc := models.ParseUsageContext(c.Query("context"))
	SuccessResponse(
		c, http.StatusOK, h.ai.GetModelRecommendations(c.Request.Context(), userID, plan, uc, profile),
	)
}

func (h *Handler) GetUsage(c *gin.Context) {
	userID, plan := userOf(c)
	report, err := h.ai.GetUsage(c.Request.Context(), userID, plan)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, report)
}

func (h *Handler) GetRateLimit(c *gin.Context) {
	userID, _ := userOf(c)
	uc := models.ParseUsageContext(c.Query("context"))
	decision, err := h.ai.RateLimitStatus(c.Request.Context(), userID, uc)
	if err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"context": uc, "status": decision})
}

func (h *Handler) ClearCache(c *gin.Context) {
	if err := h.ai.ClearCache(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"cleared": true})
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.ai.GetHealth())
}
