package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/api"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/cache"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/config"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/ledger"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/ratelimit"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/registry"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/service"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/service/llm"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/store"
	"github.com/rijughosh01/developer-social-platform-sub000/pkg/logger"
)

const redisPrefix = "devconnect:ai:"

func main() {
	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.NewLogger(
		logger.Options{
			File:   cfg.Logging.File,
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(
			&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
		)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to redis at %s: %v", cfg.Redis.Addr, err)
		}
		defer rdb.Close()
	}

	usage, err := newLedger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize usage ledger: %v", err)
	}

	var purgers []cache.Purger

	var counters store.CounterStore
	if cfg.RateLimit.Store == "redis" {
		counters = store.NewRedisStore(rdb, redisPrefix)
	} else {
		memory := store.NewMemoryStore()
		purgers = append(purgers, memory)
		counters = memory
	}

	var responses cache.Cache
	if cfg.Cache.Backend == "redis" {
		responses = cache.NewRedisCache(rdb, redisPrefix+"cache:", cfg.Cache.TTL)
	} else {
		memory := cache.NewMemoryCache(cfg.Cache.TTL)
		purgers = append(purgers, memory)
		responses = memory
	}

	if len(purgers) > 0 {
		janitor, err := cache.StartJanitor(cfg.Cache.CleanupSchedule, purgers...)
		if err != nil {
			log.Fatalf("Failed to start cache janitor: %v", err)
		}
		defer janitor.Stop()
	}

	gateway, enabled := newGateway(cfg)
	reg := registry.New(enabled...)
	limiter := ratelimit.New(counters, usage, rateLimitConfig(cfg.RateLimit))
	ai := service.NewAIService(reg, gateway, usage, responses, limiter)

	// Initialize router
	router := api.NewRouter(cfg, ai)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
	}
	go func() {
		logger.Info("Starting server", "address", addr, "providers", enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
}

func newLedger(cfg *config.Config) (ledger.Ledger, error) {
	if cfg.Storage.Ledger != "sqlite" {
		return ledger.NewMemoryLedger(), nil
	}
	db, err := ledger.OpenSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	return ledger.NewGormLedger(db)
}

func newGateway(cfg *config.Config) (*llm.Gateway, []string) {
	gateway := llm.NewGateway()

	openAI := cfg.Providers.OpenAI
	if openAI.Enabled {
		gateway.Register(
			llm.NewOpenAIProvider(openAI.APIKey, openAI.BaseURL, openAI.Timeout),
			openAI.RequestsPerSecond, openAI.Burst,
		)
	}

	openRouter := cfg.Providers.OpenRouter
	if openRouter.Enabled {
		gateway.Register(
			llm.NewOpenRouterProvider(openRouter.APIKey, openRouter.BaseURL, openRouter.Timeout, openRouter.HTTPHeaders),
			openRouter.RequestsPerSecond, openRouter.Burst,
		)
	}

	return gateway, gateway.Providers()
}

func rateLimitConfig(rl config.RateLimitConfig) ratelimit.Config {
	out := ratelimit.DefaultConfig()
	if rl.Window > 0 {
		out.Window = rl.Window
	}
	if rl.BlockDuration > 0 {
		out.BlockDuration = rl.BlockDuration
	}
	for _, uc := range models.UsageContexts {
		lim := out.Limits[uc]
		if points, ok := rl.PointsFor(string(uc)); ok {
			lim.Points = points
		}
		if daily, ok := rl.DailyFor(string(uc)); ok {
			lim.Daily = daily
		}
		out.Limits[uc] = lim
	}
	return out
}
