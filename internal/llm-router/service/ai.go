package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/cache"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/ledger"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/limits"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/ratelimit"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/registry"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/service/llm"
	"github.com/rijughosh01/developer-social-platform-sub000/pkg/logger"
)

const (
	MaxMessageLength = 4000
	// promptOverhead approximates system prompt and framing tokens, in
	// characters, for the pre-dispatch quota estimate.
	promptOverhead = 500
)

// Gateway is the provider side of the orchestrator; *llm.Gateway implements it.
type Gateway interface {
	ChatCompletion(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error)
	ChatCompletionStream(ctx context.Context, req llm.CompletionRequest) (<-chan models.StreamChunk, error)
}

// AIService is the single entry point for AI requests. It validates input,
// resolves budgets, ranks candidates, tries them in order and accounts for
// whatever succeeded.
type AIService struct {
	registry *registry.Registry
	router   *ModelRouter
	gateway  Gateway
	ledger   ledger.Ledger
	cache    cache.Cache
	limiter  *ratelimit.Limiter
	now      func() time.Time
}

func NewAIService(
	reg *registry.Registry, gateway Gateway, usage ledger.Ledger, responses cache.Cache, limiter *ratelimit.Limiter,
) *AIService {
	return &AIService{
		registry: reg,
		router:   NewModelRouter(reg),
		gateway:  gateway,
		ledger:   usage,
		cache:    responses,
		limiter:  limiter,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *AIService) WithClock(now func() time.Time) *AIService {
	s.now = now
	return s
}

func (s *AIService) Router() *ModelRouter {
	return s.router
}

// EstimateTokens is the pre-dispatch token estimate for a message.
func EstimateTokens(message string) int {
	return (utf8.RuneCountInString(message) + promptOverhead) / 4
}

func (s *AIService) validate(req *models.ChatRequest) error {
	if req.UserID == "" {
		return &ValidationError{Field: "user", Message: "authentication required"}
	}
	if strings.TrimSpace(req.Message) == "" {
		return &ValidationError{Field: "message", Message: "must not be empty"}
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageLength {
		return &ValidationError{Field: "message", Message: fmt.Sprintf("must be at most %d characters", MaxMessageLength)}
	}
	if req.Context == "" {
		req.Context = models.ContextGeneral
	}
	if !req.Context.Valid() {
		return &ValidationError{Field: "context", Message: fmt.Sprintf("unknown usage context %q", req.Context)}
	}
	if req.RequestedModel != "" && !s.registry.IsKnownModel(req.RequestedModel) {
		return &ValidationError{Field: "model", Message: fmt.Sprintf("unknown model %q", req.RequestedModel)}
	}
	req.Plan = models.ParsePlan(string(req.Plan))
	return nil
}

// budgets returns today's remaining tokens per model for the plan.
func (s *AIService) budgets(ctx context.Context, userID string, userPlan models.Plan, day string) map[string]int {
	out := make(map[string]int)
	for _, d := range s.registry.All() {
		limit := limits.GetTokenLimit(d.ID, userPlan)
		if limit == limits.Unlimited || limit == limits.Unavailable {
			out[d.ID] = limit
			continue
		}
		usage, err := s.ledger.GetModelUsage(ctx, userID, d.ID, day)
		if err != nil {
			logger.Warn("Failed to read model usage", "user", userID, "model", d.ID, "error", err)
		}
		out[d.ID] = limits.GetRemainingTokens(usage.TokensUsed, d.ID, userPlan)
	}
	return out
}

// routePlan is the resolved routing input for one request.
type routePlan struct {
	day        string
	budgets    map[string]int
	candidates []string
	estimate   int
}

func (s *AIService) prepare(ctx context.Context, req *models.ChatRequest) (*routePlan, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	now := s.now()
	if req.RequestedModel != "" && !limits.CanAccess(req.RequestedModel, req.Plan) {
		return nil, &QuotaExceededError{
			Models:    []string{req.RequestedModel},
			Plan:      string(req.Plan),
			ResetTime: ledger.NextMidnight(now),
		}
	}

	day := ledger.Day(now)
	budgets := s.budgets(ctx, req.UserID, req.Plan, day)
	candidates := s.router.SelectCandidates(
		RouteRequest{
			UserID:         req.UserID,
			Plan:           req.Plan,
			Context:        req.Context,
			Profile:        req.Profile,
			Budgets:        budgets,
			RequestedModel: req.RequestedModel,
		},
	)
	if len(candidates) == 0 {
		return nil, &UpstreamExhaustedError{Err: errors.New("no AI models available for this plan")}
	}

	return &routePlan{
		day:        day,
		budgets:    budgets,
		candidates: candidates,
		estimate:   EstimateTokens(req.Message),
	}, nil
}

// admit applies the access and estimated-token gates to one candidate.
func (p *routePlan) admit(model string, userPlan models.Plan) bool {
	if !limits.CanAccess(model, userPlan) {
		return false
	}
	remaining := p.budgets[model]
	return remaining == limits.Unlimited || remaining >= p.estimate
}

func (s *AIService) completionRequest(req *models.ChatRequest, d models.ModelDescriptor) llm.CompletionRequest {
	return llm.CompletionRequest{
		Model:     d,
		Messages:  buildMessages(systemPrompt(req.Context, d, req.Profile), req.History, req.Message),
		MaxTokens: maxTokensFor(req.Context, d),
	}
}

func (s *AIService) quotaError(req *models.ChatRequest, skipped []string) error {
	return &QuotaExceededError{
		Models:    skipped,
		Plan:      string(req.Plan),
		ResetTime: ledger.NextMidnight(s.now()),
	}
}

// Chat answers one message, falling back across the candidate list.
func (s *AIService) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	p, err := s.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		attempted     []string
		skipped       []string
		lastErr       error
		deadProviders = make(map[string]bool)
	)
	for _, id := range p.candidates {
		d, ok := s.registry.Get(id)
		if !ok {
			continue
		}
		if !p.admit(id, req.Plan) {
			skipped = append(skipped, id)
			continue
		}
		if deadProviders[d.Provider] {
			continue
		}

		key := cache.Key{UserID: req.UserID, Message: req.Message, Context: req.Context, Model: id}
		if cached, ok, err := s.cache.Get(ctx, key); err != nil {
			logger.Warn("Failed to read response cache", "model", id, "error", err)
		} else if ok {
			logger.Debug("Serving cached response", "user", req.UserID, "model", id)
			return cached, nil
		}

		attempted = append(attempted, id)
		callStart := time.Now()
		done := s.router.Begin(id)
		comp, err := s.gateway.ChatCompletion(ctx, s.completionRequest(&req, d))
		done()
		latency := time.Since(callStart)

		if err != nil {
			s.router.RecordFailure(id)
			lastErr = err
			var pe *llm.ProviderError
			if errors.As(err, &pe) && pe.Kind == llm.KindAuthInvalid {
				deadProviders[d.Provider] = true
			}
			logger.Warn("AI model call failed", "user", req.UserID, "model", id, "error", err)
			continue
		}

		s.router.RecordSuccess(id, latency)
		s.router.RecordRequest(req.UserID, id)

		resp := &models.ChatResponse{
			ID:        comp.ID,
			Content:   comp.Content,
			Tokens:    comp.Usage.TotalTokens,
			Usage:     comp.Usage,
			Cost:      d.Cost(comp.Usage.PromptTokens, comp.Usage.CompletionTokens),
			Model:     id,
			ModelName: d.Name,
			Timestamp: s.now(),
			Context:   req.Context,
			RoutingInfo: models.RoutingInfo{
				Candidates: p.candidates,
				Attempted:  attempted,
				Requested:  req.RequestedModel,
			},
		}
		if id != p.candidates[0] {
			resp.UsedFallback = true
			resp.OriginalModel = p.candidates[0]
		}

		s.record(ctx, req.UserID, id, req.Context, p.day, resp.Tokens, resp.Cost, time.Since(start), false)
		if err := s.cache.Set(ctx, key, resp); err != nil {
			logger.Warn("Failed to cache response", "model", id, "error", err)
		}

		logger.Info(
			"AI request completed",
			"user", req.UserID,
			"context", req.Context,
			"model", id,
			"tokens", resp.Tokens,
			"cost", resp.Cost,
			"fallback", resp.UsedFallback,
		)
		return resp, nil
	}

	if len(attempted) == 0 && len(skipped) > 0 {
		return nil, s.quotaError(&req, skipped)
	}
	if lastErr == nil {
		lastErr = errors.New("no candidate could be tried")
	}
	s.record(ctx, req.UserID, "", req.Context, p.day, 0, 0, time.Since(start), true)
	return nil, &UpstreamExhaustedError{Attempted: attempted, Err: lastErr}
}

// ChatStream is Chat with incremental delivery. Only opening the stream falls
// back across candidates; a failure mid-stream ends it with a partial final
// chunk. Streams bypass the response cache. The returned channel ends with
// one Done chunk carrying usage and cost and must be drained until closed.
func (s *AIService) ChatStream(ctx context.Context, req models.ChatRequest) (<-chan models.StreamChunk, error) {
	p, err := s.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}

	var (
		attempted []string
		skipped   []string
		lastErr   error
	)
	for _, id := range p.candidates {
		d, ok := s.registry.Get(id)
		if !ok {
			continue
		}
		if !p.admit(id, req.Plan) {
			skipped = append(skipped, id)
			continue
		}

		attempted = append(attempted, id)
		start := time.Now()
		done := s.router.Begin(id)
		upstream, err := s.gateway.ChatCompletionStream(ctx, s.completionRequest(&req, d))
		if err != nil {
			done()
			s.router.RecordFailure(id)
			lastErr = err
			logger.Warn("AI model stream failed to open", "user", req.UserID, "model", id, "error", err)
			continue
		}

		out := make(chan models.StreamChunk)
		go s.forward(ctx, req, d, p.day, start, done, upstream, out)
		return out, nil
	}

	if len(attempted) == 0 && len(skipped) > 0 {
		return nil, s.quotaError(&req, skipped)
	}
	if lastErr == nil {
		lastErr = errors.New("no candidate could be tried")
	}
	s.record(ctx, req.UserID, "", req.Context, p.day, 0, 0, 0, true)
	return nil, &UpstreamExhaustedError{Attempted: attempted, Err: lastErr}
}

func (s *AIService) forward(
	ctx context.Context, req models.ChatRequest, d models.ModelDescriptor, day string, start time.Time,
	done func(), upstream <-chan models.StreamChunk, out chan<- models.StreamChunk,
) {
	defer close(out)

	var final models.StreamChunk
	cancelled := false
	for chunk := range upstream {
		if chunk.Done {
			final = chunk
			continue
		}
		if cancelled {
			continue
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			cancelled = true
		}
	}
	done()

	var usage models.Usage
	if final.Usage != nil {
		usage = *final.Usage
	}
	final.Done = true
	final.Model = d.ID
	final.Usage = &usage
	final.Cost = d.Cost(usage.PromptTokens, usage.CompletionTokens)
	final.Partial = final.Partial || cancelled

	// A caller hanging up says nothing about the model's health.
	switch {
	case final.Error != nil:
		s.router.RecordFailure(d.ID)
	case ctx.Err() != nil:
		s.router.RecordRequest(req.UserID, d.ID)
	default:
		s.router.RecordSuccess(d.ID, time.Since(start))
		s.router.RecordRequest(req.UserID, d.ID)
	}
	// Partial streams are charged for what was delivered.
	s.record(ctx, req.UserID, d.ID, req.Context, day, usage.TotalTokens, final.Cost, time.Since(start), final.Error != nil)

	logger.Info(
		"AI stream completed",
		"user", req.UserID,
		"model", d.ID,
		"tokens", usage.TotalTokens,
		"partial", final.Partial,
	)
	out <- final
}

// record writes ledger counters. Failures are logged and never surface.
func (s *AIService) record(
	ctx context.Context, userID, model string, uc models.UsageContext, day string, tokens int, cost float64,
	elapsed time.Duration, failed bool,
) {
	// Accounting must outlive a cancelled request.
	ctx = context.WithoutCancel(ctx)
	if model != "" && tokens > 0 {
		if err := s.ledger.AddModelUsage(ctx, userID, model, day, tokens, cost); err != nil {
			logger.Error("Failed to record model usage", "user", userID, "model", model, "error", err)
		}
	}
	sample := ledger.ContextSample{Tokens: tokens, Cost: cost, ResponseTime: elapsed, Failed: failed}
	if err := s.ledger.RecordContextRequest(ctx, userID, string(uc), day, sample); err != nil {
		logger.Error("Failed to record context usage", "user", userID, "context", uc, "error", err)
	}
}

func (s *AIService) CodeReview(
	ctx context.Context, userID string, userPlan models.Plan, req models.CodeReviewRequest,
) (*models.ChatResponse, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, &ValidationError{Field: "code", Message: "must not be empty"}
	}
	return s.Chat(
		ctx, models.ChatRequest{
			UserID:         userID,
			Plan:           userPlan,
			Message:        codeReviewMessage(req),
			Context:        models.ContextCodeReview,
			Profile:        req.Profile,
			RequestedModel: req.Model,
		},
	)
}

func (s *AIService) DebugCode(
	ctx context.Context, userID string, userPlan models.Plan, req models.DebugRequest,
) (*models.ChatResponse, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, &ValidationError{Field: "code", Message: "must not be empty"}
	}
	if strings.TrimSpace(req.ErrorMessage) == "" {
		return nil, &ValidationError{Field: "error", Message: "must not be empty"}
	}
	return s.Chat(
		ctx, models.ChatRequest{
			UserID:         userID,
			Plan:           userPlan,
			Message:        debugMessage(req),
			Context:        models.ContextDebugging,
			Profile:        req.Profile,
			RequestedModel: req.Model,
		},
	)
}

func (s *AIService) LearningHelp(
	ctx context.Context, userID string, userPlan models.Plan, req models.LearningRequest,
) (*models.ChatResponse, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, &ValidationError{Field: "topic", Message: "must not be empty"}
	}
	profile := req.Profile
	if profile.Level == "" {
		profile.Level = req.Level
	}
	return s.Chat(
		ctx, models.ChatRequest{
			UserID:         userID,
			Plan:           userPlan,
			Message:        learningMessage(req),
			Context:        models.ContextLearning,
			Profile:        profile,
			RequestedModel: req.Model,
		},
	)
}

func (s *AIService) ProjectAdvice(
	ctx context.Context, userID string, userPlan models.Plan, req models.ProjectAdviceRequest,
) (*models.ChatResponse, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, &ValidationError{Field: "description", Message: "must not be empty"}
	}
	return s.Chat(
		ctx, models.ChatRequest{
			UserID:         userID,
			Plan:           userPlan,
			Message:        projectAdviceMessage(req),
			Context:        models.ContextProjectHelp,
			Profile:        req.Profile,
			RequestedModel: req.Model,
		},
	)
}

// GetAvailableModels lists, in limit table order, the models the plan can
// use and whose provider is configured.
func (s *AIService) GetAvailableModels(userPlan models.Plan) []models.ModelDescriptor {
	out := make([]models.ModelDescriptor, 0)
	for _, id := range limits.GetAvailableModels(models.ParsePlan(string(userPlan))) {
		d, ok := s.registry.Get(id)
		if !ok || !s.registry.HasProvider(d.Provider) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// GetModelRecommendations ranks models for the user without side effects.
func (s *AIService) GetModelRecommendations(
	ctx context.Context, userID string, userPlan models.Plan, uc models.UsageContext, profile models.UserProfile,
) []models.ScoreBreakdown {
	userPlan = models.ParsePlan(string(userPlan))
	budgets := s.budgets(ctx, userID, userPlan, ledger.Day(s.now()))
	ranked := s.router.Rank(
		RouteRequest{
			UserID:  userID,
			Plan:    userPlan,
			Context: models.ParseUsageContext(string(uc)),
			Profile: profile,
			Budgets: budgets,
		},
	)
	if len(ranked) > maxCandidates {
		ranked = ranked[:maxCandidates]
	}
	return ranked
}

// GetUsage reports today's ledger for the user.
func (s *AIService) GetUsage(ctx context.Context, userID string, userPlan models.Plan) (*models.UsageReport, error) {
	userPlan = models.ParsePlan(string(userPlan))
	day := ledger.Day(s.now())

	modelUsage, err := s.ledger.ModelUsageForDay(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load model usage: %w", err)
	}
	contextUsage, err := s.ledger.ContextUsageForDay(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load context usage: %w", err)
	}

	used := make(map[string]ledger.ModelUsage, len(modelUsage))
	for _, u := range modelUsage {
		used[u.ModelID] = u
	}

	report := &models.UsageReport{
		UserID:   userID,
		Plan:     userPlan,
		Day:      day,
		Models:   make([]models.ModelUsageReport, 0),
		Contexts: make([]models.ContextUsageReport, 0, len(contextUsage)),
	}
	for _, d := range s.registry.All() {
		u, ok := used[d.ID]
		limit := limits.GetTokenLimit(d.ID, userPlan)
		if !ok && limit == limits.Unavailable {
			continue
		}
		report.Models = append(
			report.Models, models.ModelUsageReport{
				ModelID:   d.ID,
				Tokens:    u.TokensUsed,
				Requests:  u.RequestsCount,
				Cost:      u.TotalCost,
				Limit:     limit,
				Remaining: limits.GetRemainingTokens(u.TokensUsed, d.ID, userPlan),
			},
		)
	}
	for _, u := range contextUsage {
		report.Contexts = append(
			report.Contexts, models.ContextUsageReport{
				Context:             models.UsageContext(u.Context),
				Requests:            u.RequestsCount,
				Tokens:              u.TokensUsed,
				Cost:                u.TotalCost,
				Errors:              u.Errors,
				RateLimitHits:       u.RateLimitHits,
				AverageResponseTime: u.AverageResponseTime,
			},
		)
	}
	return report, nil
}

// GetHealth summarises router health for every configured model.
func (s *AIService) GetHealth() models.HealthStatus {
	status := models.HealthStatus{
		Timestamp: s.now().Format(time.RFC3339),
		Models:    make(map[string]models.ModelStatus),
	}

	available := s.registry.Available()
	allHealthy := len(available) > 0
	for _, d := range available {
		health := s.router.Health(d.ID)
		state := "available"
		if health < 0.5 {
			state = "degraded"
			allHealthy = false
		}
		status.Models[d.ID] = models.ModelStatus{
			Status: state,
			Health: health,
			Load:   s.router.Load(d.ID),
		}
	}

	status.Status = map[bool]string{true: "healthy", false: "degraded"}[allHealthy]
	return status
}

// ClearCache flushes cached responses only.
func (s *AIService) ClearCache(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear response cache: %w", err)
	}
	logger.Info("Response cache cleared")
	return nil
}

// CheckRateLimit consumes one admission slot for the user and context.
func (s *AIService) CheckRateLimit(
	ctx context.Context, userID string, uc models.UsageContext,
) (ratelimit.Decision, error) {
	return s.limiter.Check(ctx, userID, models.ParseUsageContext(string(uc)))
}

// RateLimitStatus reports both gates without consuming anything.
func (s *AIService) RateLimitStatus(
	ctx context.Context, userID string, uc models.UsageContext,
) (ratelimit.Decision, error) {
	return s.limiter.Peek(ctx, userID, models.ParseUsageContext(string(uc)))
}
