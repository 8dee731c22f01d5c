package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/limits"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/registry"
)

func fullRegistry() *registry.Registry {
	return registry.New(registry.ProviderOpenAI, registry.ProviderOpenRouter)
}

func TestHealthStateMachine(t *testing.T) {
	r := NewModelRouter(fullRegistry())

	for i := 0; i < 10; i++ {
		r.RecordSuccess("a", time.Second)
	}
	assert.Equal(t, 1.0, r.Health("a"))

	for i := 0; i < 5; i++ {
		r.RecordFailure("b")
	}
	assert.InDelta(t, 0.75, r.Health("b"), 1e-9)

	for i := 0; i < 100; i++ {
		r.RecordFailure("c")
	}
	assert.InDelta(t, healthMin, r.Health("c"), 1e-9)

	r.RecordSuccess("c", time.Second)
	assert.InDelta(t, 0.11, r.Health("c"), 1e-9)

	// slow responses lose more than a success gains
	r.RecordFailure("d")
	r.RecordSuccess("d", 3*latencyBaseline)
	assert.InDelta(t, 0.94, r.Health("d"), 1e-9)

	assert.Equal(t, healthMax, r.Health("untouched"))
}

func TestCostScore(t *testing.T) {
	free := models.ModelDescriptor{ID: limits.DeepSeekChat}
	for _, budget := range []int{0, 1, 500, limits.Unlimited} {
		for _, plan := range []models.Plan{models.PlanFree, models.PlanPremium, models.PlanPro} {
			assert.Equal(t, 1.0, costScore(free, plan, budget), "budget %d plan %s", budget, plan)
		}
	}

	paid := models.ModelDescriptor{
		ID:              limits.GPT4oMini,
		CostPer1KInput:  0.00015,
		CostPer1KOutput: 0.0006,
		Performance:     models.PerformanceMetrics{CostEfficiency: 0.8},
	}
	assert.Equal(t, 0.0, costScore(paid, models.PlanFree, 0))
	assert.InDelta(t, 0.9, costScore(paid, models.PlanFree, 5000), 1e-9)
	assert.InDelta(t, 0.65, costScore(paid, models.PlanFree, 2500), 1e-9)
	assert.InDelta(t, 0.9, costScore(paid, models.PlanPro, limits.Unlimited), 1e-9)
	assert.InDelta(t, 0.9, costScore(paid, models.PlanPro, 123), 1e-9, "unlimited plans never divide")

	// zero ceiling never reaches the ratio
	premiumOnly := models.ModelDescriptor{ID: limits.GPT4o, CostPer1KInput: 0.0025, CostPer1KOutput: 0.01}
	assert.Equal(t, 0.0, costScore(premiumOnly, models.PlanFree, 100))
}

func TestSpecialtyScore(t *testing.T) {
	d := models.ModelDescriptor{
		Capabilities:       []string{"general"},
		ContextSpecialties: []models.UsageContext{models.ContextCodeReview},
	}
	assert.Equal(t, 1.0, specialtyScore(d, models.ContextCodeReview))
	assert.Equal(t, 0.7, specialtyScore(d, models.ContextDebugging))
	assert.Equal(t, 0.3, specialtyScore(models.ModelDescriptor{Capabilities: []string{"coding"}}, models.ContextLearning))
}

func TestCapabilityScoreIsCapped(t *testing.T) {
	d := models.ModelDescriptor{
		Capabilities:    []string{"debugging", "coding", "reasoning"},
		CodeSpecialties: []string{"go", "python", "rust"},
	}
	profile := models.UserProfile{Skills: []string{"Go", "Python", "Rust"}, Level: "advanced"}
	assert.Equal(t, 1.0, capabilityScore(d, models.ContextDebugging, profile))
	assert.InDelta(t, 0.0, capabilityScore(d, models.ContextLearning, models.UserProfile{}), 1e-9)
}

func TestPerformancePreferences(t *testing.T) {
	fast := models.ModelDescriptor{Performance: models.PerformanceMetrics{Speed: 1, Accuracy: 0, Reliability: 0}}
	speedy := models.UserProfile{Preferences: map[string]bool{"speed": true}}
	careful := models.UserProfile{Preferences: map[string]bool{"accuracy": true}}
	assert.Greater(t, performanceScore(fast, speedy), performanceScore(fast, careful))
}

func TestPreferenceAndLoad(t *testing.T) {
	r := NewModelRouter(fullRegistry())
	assert.Equal(t, 0.5, r.preferenceScore("u1", limits.GPT4oMini))

	r.RecordRequest("u1", limits.GPT4oMini)
	r.RecordRequest("u1", limits.GPT4oMini)
	r.RecordRequest("u1", limits.DeepSeekChat)
	r.RecordRequest("", limits.DeepSeekChat)
	assert.InDelta(t, 2.0/3.0, r.preferenceScore("u1", limits.GPT4oMini), 1e-9)
	assert.Equal(t, 0.0, r.preferenceScore("u1", limits.Llama33))

	d := models.ModelDescriptor{ID: "m", MaxConcurrentRequests: 10}
	var ends []func()
	for i := 0; i < 5; i++ {
		ends = append(ends, r.Begin("m"))
	}
	assert.Equal(t, 5, r.Load("m"))
	assert.InDelta(t, 0.5, r.availabilityScore(d, models.PlanFree), 1e-9)

	ends[0]()
	ends[0]()
	assert.Equal(t, 4, r.Load("m"), "ending twice is a no-op")

	premium := models.ModelDescriptor{ID: "p", RequiresPremium: true, MaxConcurrentRequests: 10}
	assert.Equal(t, 0.0, r.availabilityScore(premium, models.PlanFree))
	assert.Equal(t, 1.0, r.availabilityScore(premium, models.PlanPremium))
}

func TestSelectCandidates(t *testing.T) {
	r := NewModelRouter(fullRegistry())

	for _, uc := range models.UsageContexts {
		got := r.SelectCandidates(RouteRequest{UserID: "u", Plan: models.PlanFree, Context: uc})
		require.Len(t, got, maxCandidates)
		for _, id := range got {
			assert.True(t, limits.CanAccess(id, models.PlanFree), "%s offered to free plan", id)
		}
	}

	got := r.SelectCandidates(
		RouteRequest{UserID: "u", Plan: models.PlanPro, Context: models.ContextCodeReview, RequestedModel: limits.Mistral7B},
	)
	require.Len(t, got, maxCandidates)
	assert.Equal(t, limits.Mistral7B, got[0])
	assert.NotContains(t, got[1:], limits.Mistral7B)
}

func TestOrderTiesPrefersFallbacks(t *testing.T) {
	ranked := []models.ScoreBreakdown{
		{ModelID: "a", Score: 0.9},
		{ModelID: "b", Score: 0.7},
		{ModelID: "c", Score: 0.7},
		{ModelID: "d", Score: 0.7},
		{ModelID: "e", Score: 0.5},
	}

	orderTies(ranked, []string{"e", "d", "c"})

	var got []string
	for _, s := range ranked {
		got = append(got, s.ModelID)
	}
	// a fallback never jumps a higher score
	assert.Equal(t, []string{"a", "d", "c", "b", "e"}, got)

	orderTies(ranked, nil)
	assert.Equal(t, "d", ranked[1].ModelID)
}

func TestSelectCandidatesBreaksTiesWithFallbacks(t *testing.T) {
	r := NewModelRouter(fullRegistry())
	req := RouteRequest{UserID: "u", Plan: models.PlanPro, Context: models.ContextGeneral, RequestedModel: limits.GPT4o}

	var rest []models.ScoreBreakdown
	for _, s := range r.Rank(req) {
		if s.ModelID != limits.GPT4o {
			rest = append(rest, s)
		}
	}
	primary, ok := fullRegistry().Get(limits.GPT4o)
	require.True(t, ok)
	orderTies(rest, primary.Fallbacks)

	got := r.SelectCandidates(req)
	require.Len(t, got, maxCandidates)
	assert.Equal(t, []string{limits.GPT4o, rest[0].ModelID, rest[1].ModelID}, got)
}

func TestRankOrderIsDescending(t *testing.T) {
	r := NewModelRouter(fullRegistry())
	ranked := r.Rank(RouteRequest{UserID: "u", Plan: models.PlanPremium, Context: models.ContextDebugging})
	require.NotEmpty(t, ranked)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}
	for _, s := range ranked {
		assert.GreaterOrEqual(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, 1.0)
	}
}

func TestRankOnlyConfiguredProviders(t *testing.T) {
	r := NewModelRouter(registry.New(registry.ProviderOpenRouter))
	for _, s := range r.Rank(RouteRequest{Plan: models.PlanPro, Context: models.ContextGeneral}) {
		d, ok := registry.New().Get(s.ModelID)
		require.True(t, ok)
		assert.Equal(t, registry.ProviderOpenRouter, d.Provider)
	}
}
