// Package cache stores complete chat response envelopes for exact repeats of
// (user, message, context, model).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jinzhu/copier"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
)

const DefaultTTL = time.Hour

type Key struct {
	UserID  string
	Message string
	Context models.UsageContext
	Model   string
}

// String hashes the message so keys stay short.
func (k Key) String() string {
	sum := sha256.Sum256([]byte(k.Message))
	return k.UserID + ":" + string(k.Context) + ":" + k.Model + ":" + hex.EncodeToString(sum[:])
}

type Cache interface {
	Get(ctx context.Context, key Key) (*models.ChatResponse, bool, error)
	Set(ctx context.Context, key Key, resp *models.ChatResponse) error
	Clear(ctx context.Context) error
}

// Entry is the stored form of a response.
type Entry struct {
	ID            string              `json:"id"`
	Content       string              `json:"content"`
	Tokens        int                 `json:"tokens"`
	Usage         models.Usage        `json:"usage"`
	Cost          float64             `json:"cost"`
	Model         string              `json:"model"`
	ModelName     string              `json:"modelName"`
	Timestamp     time.Time           `json:"timestamp"`
	Context       models.UsageContext `json:"context"`
	UsedFallback  bool                `json:"usedFallback"`
	OriginalModel string              `json:"originalModel,omitempty"`
	RoutingInfo   models.RoutingInfo  `json:"routingInfo"`
	StoredAt      time.Time           `json:"storedAt"`
}

func toEntry(resp *models.ChatResponse, now time.Time) (*Entry, error) {
	var e Entry
	if err := copier.Copy(&e, resp); err != nil {
		return nil, err
	}
	e.RoutingInfo = cloneRouting(resp.RoutingInfo)
	e.StoredAt = now
	return &e, nil
}

// fromEntry returns a fresh envelope marked as cached.
func fromEntry(e *Entry) (*models.ChatResponse, error) {
	var resp models.ChatResponse
	if err := copier.Copy(&resp, e); err != nil {
		return nil, err
	}
	resp.RoutingInfo = cloneRouting(e.RoutingInfo)
	resp.Cached = true
	return &resp, nil
}

func cloneRouting(r models.RoutingInfo) models.RoutingInfo {
	return models.RoutingInfo{
		Candidates: append([]string(nil), r.Candidates...),
		Attempted:  append([]string(nil), r.Attempted...),
		Requested:  r.Requested,
	}
}

type item struct {
	entry     *Entry
	expiresAt time.Time
}

type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]item
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		items: make(map[string]item),
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(_ context.Context, key Key) (*models.ChatResponse, bool, error) {
	c.mu.RLock()
	it, ok := c.items[key.String()]
	c.mu.RUnlock()

	if !ok || !c.now().Before(it.expiresAt) {
		return nil, false, nil
	}
	resp, err := fromEntry(it.entry)
	if err != nil {
		return nil, false, err
	}
	return resp, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key Key, resp *models.ChatResponse) error {
	now := c.now()
	e, err := toEntry(resp, now)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key.String()] = item{entry: e, expiresAt: now.Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]item)
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Purge drops expired entries and reports how many were removed.
func (c *MemoryCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, it := range c.items {
		if !now.Before(it.expiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}
