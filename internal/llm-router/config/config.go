package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port        int           `mapstructure:"port"`
	Host        string        `mapstructure:"host"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CORS        CORSConfig    `mapstructure:"cors"`
	Environment string        `mapstructure:"environment"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

type AuthConfig struct {
	JWTSecret   string   `mapstructure:"jwt_secret"`
	Issuer      string   `mapstructure:"issuer"`
	DefaultPlan string   `mapstructure:"default_plan"`
	AdminUsers  []string `mapstructure:"admin_users"`
}

type ProvidersConfig struct {
	OpenAI     ProviderConfig `mapstructure:"openai"`
	OpenRouter ProviderConfig `mapstructure:"openrouter"`
}

type ProviderConfig struct {
	Enabled           bool              `mapstructure:"enabled"`
	APIKey            string            `mapstructure:"api_key"`
	BaseURL           string            `mapstructure:"base_url"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second"`
	Burst             int               `mapstructure:"burst"`
	HTTPHeaders       map[string]string `mapstructure:"http_headers"`
}

type StorageConfig struct {
	// Ledger is "memory" or "sqlite".
	Ledger string `mapstructure:"ledger"`
	Path   string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend         string        `mapstructure:"backend"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
}

type RateLimitConfig struct {
	// Store is "memory" or "redis".
	Store         string         `mapstructure:"store"`
	Window        time.Duration  `mapstructure:"window"`
	BlockDuration time.Duration  `mapstructure:"block_duration"`
	Points        map[string]int `mapstructure:"points"`
	Daily         map[string]int `mapstructure:"daily"`
}

type LoggingConfig struct {
	File   string `mapstructure:"file"`
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.timeout", "60s")
	v.SetDefault("auth.default_plan", "free")
	v.SetDefault("providers.openai.timeout", "60s")
	v.SetDefault("providers.openai.requests_per_second", 10)
	v.SetDefault("providers.openai.burst", 20)
	v.SetDefault("providers.openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("providers.openrouter.timeout", "90s")
	v.SetDefault("providers.openrouter.requests_per_second", 10)
	v.SetDefault("providers.openrouter.burst", 20)
	v.SetDefault("storage.ledger", "memory")
	v.SetDefault("storage.path", ".")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.cleanup_schedule", "@every 5m")
	v.SetDefault("ratelimit.store", "memory")
	v.SetDefault("ratelimit.window", "1h")
	v.SetDefault("ratelimit.block_duration", "30m")
	v.SetDefault("logging.file", "router.log")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// validateConfig performs validation on the configuration
func validateConfig(config *Config) error {
	// Validate server config
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	// Validate providers
	if !config.Providers.OpenAI.Enabled && !config.Providers.OpenRouter.Enabled {
		return fmt.Errorf("at least one provider must be enabled")
	}
	if config.Providers.OpenAI.Enabled && config.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required when OpenAI is enabled")
	}
	if config.Providers.OpenRouter.Enabled && config.Providers.OpenRouter.APIKey == "" {
		return fmt.Errorf("OpenRouter API key is required when OpenRouter is enabled")
	}

	switch config.Storage.Ledger {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("unknown ledger driver: %s", config.Storage.Ledger)
	}

	if !config.Redis.Enabled {
		if config.Cache.Backend == "redis" {
			return fmt.Errorf("cache backend redis requires redis to be enabled")
		}
		if config.RateLimit.Store == "redis" {
			return fmt.Errorf("rate limit store redis requires redis to be enabled")
		}
	}

	return validateRateLimits(&config.RateLimit)
}

// validateRateLimits rejects daily ceilings the window limiter could never
// reach: the daily cap must fit into the refills possible in 24h.
func validateRateLimits(rl *RateLimitConfig) error {
	if rl.Window <= 0 {
		return nil
	}
	refills := int((24 * time.Hour) / rl.Window)
	if refills < 1 {
		refills = 1
	}
	for ctx, daily := range rl.Daily {
		points, ok := rl.PointsFor(ctx)
		if !ok {
			continue
		}
		if daily > points*refills {
			return fmt.Errorf("daily limit %d for %s exceeds %d window refills of %d points", daily, ctx, refills, points)
		}
	}
	return nil
}

// PointsFor looks up a per-context override. Viper lowercases map keys, so
// the match is case-insensitive.
func (rl *RateLimitConfig) PointsFor(usageContext string) (int, bool) {
	return lookupFold(rl.Points, usageContext)
}

func (rl *RateLimitConfig) DailyFor(usageContext string) (int, bool) {
	return lookupFold(rl.Daily, usageContext)
}

func lookupFold(m map[string]int, key string) (int, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return 0, false
}

func (c *Config) IsProviderEnabled(provider string) bool {
	switch provider {
	case "openai":
		return c.Providers.OpenAI.Enabled
	case "openrouter":
		return c.Providers.OpenRouter.Enabled
	default:
		return false
	}
}

func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.Auth.AdminUsers {
		if id == userID {
			return true
		}
	}
	return false
}
