// Package ledger records per-user daily AI usage: tokens, requests and cost
// per model, and request/error/rate-limit counters per usage context.
// Records are created lazily and only ever incremented.
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// Day returns the ledger key for t; days roll over at local midnight.
func Day(t time.Time) string {
	return t.Local().Format(dayLayout)
}

// NextMidnight returns the local midnight following t.
func NextMidnight(t time.Time) time.Time {
	t = t.Local()
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.Local)
}

type ModelUsage struct {
	UserID        string  `json:"userId"`
	ModelID       string  `json:"modelId"`
	Day           string  `json:"day"`
	TokensUsed    int     `json:"tokensUsed"`
	RequestsCount int     `json:"requestsCount"`
	TotalCost     float64 `json:"totalCost"`
}

type ContextUsage struct {
	UserID        string  `json:"userId"`
	Context       string  `json:"context"`
	Day           string  `json:"day"`
	TokensUsed    int     `json:"tokensUsed"`
	RequestsCount int     `json:"requestsCount"`
	TotalCost     float64 `json:"totalCost"`
	Errors        int     `json:"errors"`
	RateLimitHits int     `json:"rateLimitHits"`
	// AverageResponseTime is in milliseconds.
	AverageResponseTime float64 `json:"averageResponseTime"`
}

// ContextSample is one completed request for the per-context counters.
type ContextSample struct {
	Tokens       int
	Cost         float64
	ResponseTime time.Duration
	Failed       bool
}

// Ledger getters return zero records for missing keys, never an error for
// absence. Increments create the record when needed and must not lose
// concurrent updates.
type Ledger interface {
	GetModelUsage(ctx context.Context, userID, modelID, day string) (ModelUsage, error)
	ModelUsageForDay(ctx context.Context, userID, day string) ([]ModelUsage, error)
	AddModelUsage(ctx context.Context, userID, modelID, day string, tokens int, cost float64) error

	GetContextUsage(ctx context.Context, userID, usageContext, day string) (ContextUsage, error)
	ContextUsageForDay(ctx context.Context, userID, day string) ([]ContextUsage, error)
	RecordContextRequest(ctx context.Context, userID, usageContext, day string, sample ContextSample) error
	RecordRateLimitHit(ctx context.Context, userID, usageContext, day string) error
}

func runningAverage(oldAvg float64, n int, sample float64) float64 {
	if n <= 1 {
		return sample
	}
	return (oldAvg*float64(n-1) + sample) / float64(n)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type modelKey struct{ user, model, day string }
type contextKey struct{ user, context, day string }

// MemoryLedger keeps the ledger in process memory. It is lost on restart.
type MemoryLedger struct {
	mu       sync.Mutex
	models   map[modelKey]*ModelUsage
	contexts map[contextKey]*ContextUsage
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		models:   make(map[modelKey]*ModelUsage),
		contexts: make(map[contextKey]*ContextUsage),
	}
}

func (l *MemoryLedger) GetModelUsage(_ context.Context, userID, modelID, day string) (ModelUsage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if u, ok := l.models[modelKey{userID, modelID, day}]; ok {
		return *u, nil
	}
	return ModelUsage{UserID: userID, ModelID: modelID, Day: day}, nil
}

func (l *MemoryLedger) ModelUsageForDay(_ context.Context, userID, day string) ([]ModelUsage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ModelUsage
	for k, u := range l.models {
		if k.user == userID && k.day == day {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out, nil
}

func (l *MemoryLedger) AddModelUsage(_ context.Context, userID, modelID, day string, tokens int, cost float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := modelKey{userID, modelID, day}
	u, ok := l.models[k]
	if !ok {
		u = &ModelUsage{UserID: userID, ModelID: modelID, Day: day}
		l.models[k] = u
	}
	u.TokensUsed += tokens
	u.RequestsCount++
	u.TotalCost += cost
	return nil
}

func (l *MemoryLedger) contextRecord(userID, usageContext, day string) *ContextUsage {
	k := contextKey{userID, usageContext, day}
	u, ok := l.contexts[k]
	if !ok {
		u = &ContextUsage{UserID: userID, Context: usageContext, Day: day}
		l.contexts[k] = u
	}
	return u
}

func (l *MemoryLedger) GetContextUsage(_ context.Context, userID, usageContext, day string) (ContextUsage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if u, ok := l.contexts[contextKey{userID, usageContext, day}]; ok {
		return *u, nil
	}
	return ContextUsage{UserID: userID, Context: usageContext, Day: day}, nil
}

func (l *MemoryLedger) ContextUsageForDay(_ context.Context, userID, day string) ([]ContextUsage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ContextUsage
	for k, u := range l.contexts {
		if k.user == userID && k.day == day {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Context < out[j].Context })
	return out, nil
}

func (l *MemoryLedger) RecordContextRequest(_ context.Context, userID, usageContext, day string, sample ContextSample) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.contextRecord(userID, usageContext, day)
	u.RequestsCount++
	u.TokensUsed += sample.Tokens
	u.TotalCost += sample.Cost
	if sample.Failed {
		u.Errors++
	}
	u.AverageResponseTime = runningAverage(u.AverageResponseTime, u.RequestsCount, millis(sample.ResponseTime))
	return nil
}

func (l *MemoryLedger) RecordRateLimitHit(_ context.Context, userID, usageContext, day string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.contextRecord(userID, usageContext, day).RateLimitHits++
	return nil
}
