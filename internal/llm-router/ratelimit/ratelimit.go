// Package ratelimit is admission control for AI requests. Each (user,
// usage context) pair passes two independent gates: a windowed point budget
// that blocks for a fixed duration once exhausted, and a hard daily request
// ceiling that resets at local midnight.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/ledger"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/store"
	"github.com/rijughosh01/developer-social-platform-sub000/pkg/logger"
)

const (
	DefaultWindow        = time.Hour
	DefaultBlockDuration = 30 * time.Minute
)

type Limits struct {
	Points int
	Daily  int
}

var DefaultLimits = map[models.UsageContext]Limits{
	models.ContextGeneral:     {Points: 50, Daily: 200},
	models.ContextCodeReview:  {Points: 20, Daily: 50},
	models.ContextDebugging:   {Points: 30, Daily: 100},
	models.ContextLearning:    {Points: 40, Daily: 150},
	models.ContextProjectHelp: {Points: 25, Daily: 75},
}

type Config struct {
	Window        time.Duration
	BlockDuration time.Duration
	Limits        map[models.UsageContext]Limits
}

func DefaultConfig() Config {
	limits := make(map[models.UsageContext]Limits, len(DefaultLimits))
	for k, v := range DefaultLimits {
		limits[k] = v
	}
	return Config{
		Window:        DefaultWindow,
		BlockDuration: DefaultBlockDuration,
		Limits:        limits,
	}
}

type Kind string

const (
	KindNone            Kind = ""
	KindWindow          Kind = "window"
	KindDaily           Kind = "daily"
	KindUnauthenticated Kind = "unauthenticated"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed           bool      `json:"allowed"`
	Kind              Kind      `json:"limitKind,omitempty"`
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	ResetTime         time.Time `json:"resetTime"`
	RetryAfterSeconds int       `json:"retryAfterSeconds,omitempty"`
	DailyLimit        int       `json:"dailyLimit"`
	DailyRemaining    int       `json:"dailyRemaining"`
	DailyResetTime    time.Time `json:"dailyResetTime"`
}

var ErrUnauthenticated = errors.New("authentication required for AI features")

type RateLimitError struct {
	Context  models.UsageContext
	Decision Decision
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf(
		"%s rate limit exceeded for %s, retry after %ds", e.Decision.Kind, e.Context, e.Decision.RetryAfterSeconds,
	)
}

type Limiter struct {
	store  store.CounterStore
	ledger ledger.Ledger
	cfg    Config
	now    func() time.Time
}

func New(counters store.CounterStore, usage ledger.Ledger, cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = DefaultBlockDuration
	}
	if cfg.Limits == nil {
		cfg.Limits = DefaultConfig().Limits
	}
	return &Limiter{
		store:  counters,
		ledger: usage,
		cfg:    cfg,
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) LimitsFor(uc models.UsageContext) Limits {
	if lim, ok := l.cfg.Limits[uc]; ok {
		return lim
	}
	return l.cfg.Limits[models.ContextGeneral]
}

func windowKey(userID string, uc models.UsageContext) string {
	return "rl:window:" + userID + ":" + string(uc)
}

func blockKey(userID string, uc models.UsageContext) string {
	return "rl:block:" + userID + ":" + string(uc)
}

func dailyKey(userID string, uc models.UsageContext, day string) string {
	return "rl:daily:" + userID + ":" + string(uc) + ":" + day
}

func retryAfter(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Check consumes one point from both gates. A rejection is returned as a
// *RateLimitError together with the decision and counted in the ledger.
// A request already over the daily ceiling is turned away before it can
// drain the window.
func (l *Limiter) Check(ctx context.Context, userID string, uc models.UsageContext) (Decision, error) {
	if userID == "" {
		return Decision{Kind: KindUnauthenticated}, ErrUnauthenticated
	}

	now := l.now()
	lim := l.LimitsFor(uc)
	midnight := ledger.NextMidnight(now)
	day := ledger.Day(now)
	decision := Decision{
		Limit:          lim.Points,
		DailyLimit:     lim.Daily,
		DailyResetTime: midnight,
	}

	blocked, blockTTL, err := l.store.Get(ctx, blockKey(userID, uc))
	if err != nil {
		return decision, fmt.Errorf("failed to read rate limit block: %w", err)
	}
	if blocked > 0 {
		return l.reject(ctx, userID, uc, decision, KindWindow, blockTTL, now)
	}

	admitted, _, err := l.store.Get(ctx, dailyKey(userID, uc, day))
	if err != nil {
		return decision, fmt.Errorf("failed to read daily count: %w", err)
	}
	if l.dailyUsed(ctx, userID, uc, day, int(admitted))+1 > lim.Daily {
		return l.reject(ctx, userID, uc, decision, KindDaily, midnight.Sub(now), now)
	}

	// window gate
	used, windowTTL, err := l.store.Incr(ctx, windowKey(userID, uc), l.cfg.Window)
	if err != nil {
		return decision, fmt.Errorf("failed to consume rate limit point: %w", err)
	}
	if int(used) > lim.Points {
		if err := l.store.Set(ctx, blockKey(userID, uc), 1, l.cfg.BlockDuration); err != nil {
			logger.Warn("Failed to set rate limit block", "user", userID, "context", uc, "error", err)
		}
		// The block replaces the window: once it lapses the user starts fresh.
		if err := l.store.Delete(ctx, windowKey(userID, uc)); err != nil {
			logger.Warn("Failed to reset rate limit window", "user", userID, "context", uc, "error", err)
		}
		return l.reject(ctx, userID, uc, decision, KindWindow, l.cfg.BlockDuration, now)
	}
	decision.Remaining = lim.Points - int(used)
	decision.ResetTime = now.Add(windowTTL)

	// daily gate, counted after the window admitted the request
	admitted, _, err = l.store.Incr(ctx, dailyKey(userID, uc, day), midnight.Sub(now))
	if err != nil {
		return decision, fmt.Errorf("failed to count daily request: %w", err)
	}
	dailyUsed := l.dailyUsed(ctx, userID, uc, day, int(admitted)-1) + 1
	if dailyUsed > lim.Daily {
		return l.reject(ctx, userID, uc, decision, KindDaily, midnight.Sub(now), now)
	}
	decision.DailyRemaining = lim.Daily - dailyUsed
	decision.Allowed = true
	return decision, nil
}

// dailyUsed is the number of requests already admitted today. The ledger
// survives restarts of an in-process counter store, so the larger count wins.
func (l *Limiter) dailyUsed(ctx context.Context, userID string, uc models.UsageContext, day string, admitted int) int {
	usage, err := l.ledger.GetContextUsage(ctx, userID, string(uc), day)
	if err != nil {
		logger.Warn("Failed to read context usage", "user", userID, "context", uc, "error", err)
		return admitted
	}
	return max(admitted, usage.RequestsCount)
}

func (l *Limiter) reject(
	ctx context.Context, userID string, uc models.UsageContext, d Decision, kind Kind, wait time.Duration,
	now time.Time,
) (Decision, error) {
	d.Allowed = false
	d.Kind = kind
	d.RetryAfterSeconds = retryAfter(wait)
	if kind == KindWindow {
		d.Remaining = 0
		d.ResetTime = now.Add(wait)
	} else {
		d.DailyRemaining = 0
		d.ResetTime = d.DailyResetTime
	}

	if err := l.ledger.RecordRateLimitHit(ctx, userID, string(uc), ledger.Day(now)); err != nil {
		logger.Warn("Failed to record rate limit hit", "user", userID, "context", uc, "error", err)
	}
	logger.Info("Rate limit exceeded", "user", userID, "context", uc, "kind", kind, "retry_after", d.RetryAfterSeconds)
	return d, &RateLimitError{Context: uc, Decision: d}
}

// Peek reports the current state of both gates without consuming anything.
func (l *Limiter) Peek(ctx context.Context, userID string, uc models.UsageContext) (Decision, error) {
	if userID == "" {
		return Decision{Kind: KindUnauthenticated}, ErrUnauthenticated
	}

	now := l.now()
	lim := l.LimitsFor(uc)
	midnight := ledger.NextMidnight(now)
	d := Decision{
		Allowed:        true,
		Limit:          lim.Points,
		Remaining:      lim.Points,
		ResetTime:      now.Add(l.cfg.Window),
		DailyLimit:     lim.Daily,
		DailyRemaining: lim.Daily,
		DailyResetTime: midnight,
	}

	blocked, blockTTL, err := l.store.Get(ctx, blockKey(userID, uc))
	if err != nil {
		return d, fmt.Errorf("failed to read rate limit block: %w", err)
	}
	used, windowTTL, err := l.store.Get(ctx, windowKey(userID, uc))
	if err != nil {
		return d, fmt.Errorf("failed to read rate limit window: %w", err)
	}
	if used > 0 {
		d.ResetTime = now.Add(windowTTL)
	}
	d.Remaining = max(0, lim.Points-int(used))
	if blocked > 0 {
		d.Allowed = false
		d.Kind = KindWindow
		d.Remaining = 0
		d.ResetTime = now.Add(blockTTL)
		d.RetryAfterSeconds = retryAfter(blockTTL)
	}

	day := ledger.Day(now)
	admitted, _, err := l.store.Get(ctx, dailyKey(userID, uc, day))
	if err != nil {
		return d, fmt.Errorf("failed to read daily count: %w", err)
	}
	d.DailyRemaining = max(0, lim.Daily-l.dailyUsed(ctx, userID, uc, day, int(admitted)))
	if d.Allowed && d.DailyRemaining == 0 {
		d.Allowed = false
		d.Kind = KindDaily
		d.ResetTime = midnight
		d.RetryAfterSeconds = retryAfter(midnight.Sub(now))
	}
	return d, nil
}
