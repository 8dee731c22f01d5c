package service

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/limits"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/registry"
)

const (
	weightCapability   = 0.25
	weightPerformance  = 0.20
	weightCost         = 0.15
	weightAvailability = 0.15
	weightPreference   = 0.10
	weightSpecialty    = 0.10
	weightHealth       = 0.05

	maxCandidates = 3
	// scores closer than this are a tie
	scoreTolerance = 1e-9

	healthMax         = 1.0
	healthMin         = 0.1
	healthSuccessStep = 0.01
	healthFailureStep = 0.05
	slowPenalty       = 0.02
	latencyBaseline   = 5 * time.Second
)

// contextCapabilities are the capability tags that suit each usage context.
var contextCapabilities = map[models.UsageContext][]string{
	models.ContextGeneral:     {"general", "explanation"},
	models.ContextCodeReview:  {"coding", "reasoning"},
	models.ContextDebugging:   {"debugging", "coding", "reasoning"},
	models.ContextLearning:    {"explanation", "general"},
	models.ContextProjectHelp: {"architecture", "reasoning", "coding"},
}

// RouteRequest is everything the router needs to rank models for one call.
type RouteRequest struct {
	UserID  string
	Plan    models.Plan
	Context models.UsageContext
	Profile models.UserProfile
	// Budgets holds today's remaining tokens per model; limits.Unlimited
	// means no ceiling.
	Budgets        map[string]int
	RequestedModel string
}

// ModelRouter owns the process-wide routing state: per-model health and
// in-flight load, and per-user request histograms. It starts empty on every
// restart.
type ModelRouter struct {
	registry *registry.Registry

	mu       sync.Mutex
	health   map[string]float64
	load     map[string]int
	requests map[string]map[string]int
}

func NewModelRouter(reg *registry.Registry) *ModelRouter {
	return &ModelRouter{
		registry: reg,
		health:   make(map[string]float64),
		load:     make(map[string]int),
		requests: make(map[string]map[string]int),
	}
}

// Rank scores every model the plan can access, best first.
func (r *ModelRouter) Rank(req RouteRequest) []models.ScoreBreakdown {
	r.mu.Lock()
	defer r.mu.Unlock()

	var scored []models.ScoreBreakdown
	for _, d := range r.registry.Available() {
		if !limits.CanAccess(d.ID, req.Plan) {
			continue
		}
		scored = append(scored, r.score(d, req))
	}

	sort.SliceStable(
		scored, func(i, j int) bool {
			return scored[i].Score > scored[j].Score
		},
	)
	return scored
}

// SelectCandidates returns the ordered shortlist: the requested model first
// when there is one, then the best ranked others, at most three in total.
// Among equally scored models the primary's declared fallbacks go first.
func (r *ModelRouter) SelectCandidates(req RouteRequest) []string {
	ranked := r.Rank(req)
	primary := req.RequestedModel
	if primary == "" {
		if len(ranked) == 0 {
			return nil
		}
		primary = ranked[0].ModelID
	}

	rest := make([]models.ScoreBreakdown, 0, len(ranked))
	for _, s := range ranked {
		if s.ModelID != primary {
			rest = append(rest, s)
		}
	}
	if d, ok := r.registry.Get(primary); ok {
		orderTies(rest, d.Fallbacks)
	}

	candidates := make([]string, 0, maxCandidates)
	candidates = append(candidates, primary)
	for _, s := range rest {
		if len(candidates) == maxCandidates {
			break
		}
		candidates = append(candidates, s.ModelID)
	}
	return candidates
}

// orderTies reorders runs of equal scores in an already ranked slice so that
// listed fallbacks come first, in their listed order.
func orderTies(ranked []models.ScoreBreakdown, fallbacks []string) {
	if len(fallbacks) == 0 {
		return
	}
	pos := make(map[string]int, len(fallbacks))
	for i, id := range fallbacks {
		pos[id] = i
	}
	rank := func(id string) int {
		if p, ok := pos[id]; ok {
			return p
		}
		return len(fallbacks)
	}

	for start := 0; start < len(ranked); {
		end := start + 1
		for end < len(ranked) && ranked[start].Score-ranked[end].Score < scoreTolerance {
			end++
		}
		run := ranked[start:end]
		sort.SliceStable(
			run, func(i, j int) bool {
				return rank(run[i].ModelID) < rank(run[j].ModelID)
			},
		)
		start = end
	}
}

func (r *ModelRouter) score(d models.ModelDescriptor, req RouteRequest) models.ScoreBreakdown {
	b := models.ScoreBreakdown{
		ModelID:      d.ID,
		ModelName:    d.Name,
		Capability:   capabilityScore(d, req.Context, req.Profile),
		Performance:  performanceScore(d, req.Profile),
		Cost:         costScore(d, req.Plan, budgetFor(req.Budgets, d.ID)),
		Availability: r.availabilityScore(d, req.Plan),
		Preference:   r.preferenceScore(req.UserID, d.ID),
		Specialty:    specialtyScore(d, req.Context),
		Health:       r.healthLocked(d.ID),
	}
	b.Score = weightCapability*b.Capability +
		weightPerformance*b.Performance +
		weightCost*b.Cost +
		weightAvailability*b.Availability +
		weightPreference*b.Preference +
		weightSpecialty*b.Specialty +
		weightHealth*b.Health
	return b
}

func budgetFor(budgets map[string]int, model string) int {
	if budgets == nil {
		return limits.Unlimited
	}
	if b, ok := budgets[model]; ok {
		return b
	}
	return limits.Unlimited
}

func capabilityScore(d models.ModelDescriptor, uc models.UsageContext, profile models.UserProfile) float64 {
	score := 0.0
	for _, tag := range contextCapabilities[uc] {
		if d.HasCapability(tag) {
			score += 0.3
		}
	}

	for _, skill := range profile.Skills {
		for _, spec := range d.CodeSpecialties {
			if strings.EqualFold(skill, spec) {
				score += 0.1
				break
			}
		}
	}

	switch profile.Level {
	case "beginner":
		if d.HasCapability("explanation") {
			score += 0.2
		}
	case "advanced":
		if d.HasCapability("reasoning") {
			score += 0.2
		}
	}
	return math.Min(1.0, score)
}

func performanceScore(d models.ModelDescriptor, profile models.UserProfile) float64 {
	p := d.Performance
	speed, accuracy, reliability := 0.3, 0.4, 0.3
	switch {
	case profile.Prefers("speed"):
		speed, accuracy, reliability = 0.5, 0.25, 0.25
	case profile.Prefers("accuracy"):
		speed, accuracy, reliability = 0.15, 0.6, 0.25
	}
	return speed*p.Speed + accuracy*p.Accuracy + reliability*p.Reliability
}

// costScore is 1 for free models. Paid models blend static cost efficiency
// with the share of today's ceiling still available.
func costScore(d models.ModelDescriptor, plan models.Plan, available int) float64 {
	if d.IsFree() {
		return 1.0
	}

	limit := limits.GetTokenLimit(d.ID, plan)
	var ratio float64
	switch {
	case limit == limits.Unlimited || available == limits.Unlimited:
		ratio = 1.0
	case limit <= 0 || available <= 0:
		return 0
	default:
		ratio = math.Min(1.0, float64(available)/float64(limit))
	}
	return 0.5*d.Performance.CostEfficiency + 0.5*ratio
}

func (r *ModelRouter) availabilityScore(d models.ModelDescriptor, plan models.Plan) float64 {
	if d.RequiresPremium && plan == models.PlanFree {
		return 0
	}
	if d.MaxConcurrentRequests <= 0 {
		return 1.0
	}
	score := 1 - float64(r.load[d.ID])/float64(d.MaxConcurrentRequests)
	return math.Max(0, score)
}

func (r *ModelRouter) preferenceScore(userID, model string) float64 {
	history := r.requests[userID]
	total := 0
	for _, n := range history {
		total += n
	}
	if total == 0 {
		return 0.5
	}
	return float64(history[model]) / float64(total)
}

func specialtyScore(d models.ModelDescriptor, uc models.UsageContext) float64 {
	switch {
	case d.HasContextSpecialty(uc):
		return 1.0
	case d.HasCapability("general"):
		return 0.7
	default:
		return 0.3
	}
}

func (r *ModelRouter) healthLocked(model string) float64 {
	if h, ok := r.health[model]; ok {
		return h
	}
	return healthMax
}

func (r *ModelRouter) Health(model string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.healthLocked(model)
}

// RecordSuccess nudges health up, then applies the slow-response penalty.
func (r *ModelRouter) RecordSuccess(model string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := math.Min(healthMax, r.healthLocked(model)+healthSuccessStep)
	if latency > 2*latencyBaseline {
		h = math.Max(healthMin, h-slowPenalty)
	}
	r.health[model] = h
}

func (r *ModelRouter) RecordFailure(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health[model] = math.Max(healthMin, r.healthLocked(model)-healthFailureStep)
}

// RecordRequest adds one request to the user's preference histogram.
func (r *ModelRouter) RecordRequest(userID, model string) {
	if userID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	history, ok := r.requests[userID]
	if !ok {
		history = make(map[string]int)
		r.requests[userID] = history
	}
	history[model]++
}

// Begin marks one in-flight call; the returned func ends it.
func (r *ModelRouter) Begin(model string) func() {
	r.mu.Lock()
	r.load[model]++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(
			func() {
				r.mu.Lock()
				defer r.mu.Unlock()
				if r.load[model] > 0 {
					r.load[model]--
				}
			},
		)
	}
}

func (r *ModelRouter) Load(model string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load[model]
}
