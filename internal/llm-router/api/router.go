package api

import (
	"github.com/gin-gonic/gin"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/config"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/service"
)

func NewRouter(cfg *config.Config, ai *service.AIService) *gin.Engine {
	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware())
	router.Use(ErrorMiddleware())
	if cfg.Server.CORS.Enabled {
		router.Use(CORSMiddleware(cfg.Server.CORS))
	}

	handler := NewHandler(ai)

	// API routes
	api := router.Group("/api/v1")
	{
		// Public endpoints
		api.GET("/health", handler.GetHealth)

		// Protected endpoints
		protected := api.Group("/ai")
		protected.Use(AuthMiddleware(cfg.Auth))
		{
			protected.POST("/chat", handler.Chat)
			protected.POST("/chat/stream", handler.StreamChat)
			protected.POST(
				"/code-review", RateLimitMiddleware(ai, models.ContextCodeReview), handler.CodeReview,
			)
			protected.POST("/debug", RateLimitMiddleware(ai, models.ContextDebugging), handler.Debug)
			protected.POST("/learning", RateLimitMiddleware(ai, models.ContextLearning), handler.Learning)
			protected.POST(
				"/project-advice", RateLimitMiddleware(ai, models.ContextProjectHelp), handler.ProjectAdvice,
			)

			protected.GET("/models", handler.GetModels)
			protected.GET("/recommendations", handler.GetRecommendations)
			protected.GET("/usage", handler.GetUsage)
			protected.GET("/rate-limit", handler.GetRateLimit)

			protected.DELETE("/cache", AdminMiddleware(cfg), handler.ClearCache)
		}
	}

	return router
}
