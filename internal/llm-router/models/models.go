package models

import "time"

// UsageContext is the request category that drives prompt selection,
// specialty scoring and per-context rate limits.
type UsageContext string

const (
	ContextGeneral     UsageContext = "general"
	ContextCodeReview  UsageContext = "codeReview"
	ContextDebugging   UsageContext = "debugging"
	ContextLearning    UsageContext = "learning"
	ContextProjectHelp UsageContext = "projectHelp"
)

var UsageContexts = []UsageContext{
	ContextGeneral,
	ContextCodeReview,
	ContextDebugging,
	ContextLearning,
	ContextProjectHelp,
}

func (c UsageContext) Valid() bool {
	for _, known := range UsageContexts {
		if c == known {
			return true
		}
	}
	return false
}

// ParseUsageContext returns ContextGeneral for an empty or unknown value.
func ParseUsageContext(s string) UsageContext {
	c := UsageContext(s)
	if c.Valid() {
		return c
	}
	return ContextGeneral
}

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
	PlanPro     Plan = "pro"
)

// ParsePlan returns PlanFree for anything it does not recognise.
func ParsePlan(s string) Plan {
	switch Plan(s) {
	case PlanPremium:
		return PlanPremium
	case PlanPro:
		return PlanPro
	default:
		return PlanFree
	}
}

// PerformanceMetrics are static quality figures, each in [0,1].
type PerformanceMetrics struct {
	Accuracy       float64 `json:"accuracy"`
	Speed          float64 `json:"speed"`
	CostEfficiency float64 `json:"costEfficiency"`
	Reliability    float64 `json:"reliability"`
}

// ModelDescriptor is an immutable registry entry.
type ModelDescriptor struct {
	ID                    string             `json:"id"`
	Provider              string             `json:"provider"`
	Name                  string             `json:"name"`
	CostPer1KInput        float64            `json:"costPer1kInput"`
	CostPer1KOutput       float64            `json:"costPer1kOutput"`
	MaxTokens             int                `json:"maxTokens"`
	ContextWindow         int                `json:"contextWindow"`
	RequiresPremium       bool               `json:"requiresPremium"`
	Capabilities          []string           `json:"capabilities"`
	Fallbacks             []string           `json:"fallbacks,omitempty"`
	Performance           PerformanceMetrics `json:"performance"`
	ContextSpecialties    []UsageContext     `json:"contextSpecialties,omitempty"`
	CodeSpecialties       []string           `json:"codeSpecialties,omitempty"`
	MaxConcurrentRequests int                `json:"maxConcurrentRequests"`
}

func (d ModelDescriptor) IsFree() bool {
	return d.CostPer1KInput == 0 && d.CostPer1KOutput == 0
}

func (d ModelDescriptor) HasCapability(tag string) bool {
	for _, c := range d.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

func (d ModelDescriptor) HasContextSpecialty(ctx UsageContext) bool {
	for _, c := range d.ContextSpecialties {
		if c == ctx {
			return true
		}
	}
	return false
}

// Cost returns the dollar cost of a call given actual token counts.
func (d ModelDescriptor) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*d.CostPer1KInput + float64(outputTokens)/1000*d.CostPer1KOutput
}

// UserProfile is supplied by the caller; preferences are free-form flags
// such as "speed", "accuracy" or "cost".
type UserProfile struct {
	Skills      []string        `json:"skills,omitempty"`
	Level       string          `json:"level,omitempty"`
	Preferences map[string]bool `json:"preferences,omitempty"`
}

func (p UserProfile) Prefers(key string) bool {
	return p.Preferences != nil && p.Preferences[key]
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the public input of the orchestrator.
type ChatRequest struct {
	UserID         string       `json:"-"`
	Plan           Plan         `json:"-"`
	Message        string       `json:"message"`
	Context        UsageContext `json:"context,omitempty"`
	Profile        UserProfile  `json:"profile,omitempty"`
	RequestedModel string       `json:"model,omitempty"`
	History        []Message    `json:"history,omitempty"`
}

// CodeReviewRequest and the three types below are the inputs of the
// prompt-template operations.
type CodeReviewRequest struct {
	Code     string      `json:"code" binding:"required"`
	Language string      `json:"language"`
	Focus    []string    `json:"focus,omitempty"`
	Profile  UserProfile `json:"profile,omitempty"`
	Model    string      `json:"model,omitempty"`
}

type DebugRequest struct {
	Code         string      `json:"code" binding:"required"`
	ErrorMessage string      `json:"error" binding:"required"`
	Language     string      `json:"language"`
	Profile      UserProfile `json:"profile,omitempty"`
	Model        string      `json:"model,omitempty"`
}

type LearningRequest struct {
	Topic    string      `json:"topic" binding:"required"`
	Level    string      `json:"level"`
	Question string      `json:"question,omitempty"`
	Profile  UserProfile `json:"profile,omitempty"`
	Model    string      `json:"model,omitempty"`
}

type ProjectAdviceRequest struct {
	Description string      `json:"description" binding:"required"`
	TechStack   []string    `json:"techStack,omitempty"`
	Question    string      `json:"question"`
	Profile     UserProfile `json:"profile,omitempty"`
	Model       string      `json:"model,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// RoutingInfo exposes the candidate list used for one attempt.
type RoutingInfo struct {
	Candidates []string `json:"candidates"`
	Attempted  []string `json:"attempted"`
	Requested  string   `json:"requested,omitempty"`
}

// ChatResponse is the normalized response envelope.
type ChatResponse struct {
	ID            string       `json:"id"`
	Content       string       `json:"content"`
	Tokens        int          `json:"tokens"`
	Usage         Usage        `json:"usage"`
	Cost          float64      `json:"cost"`
	Model         string       `json:"model"`
	ModelName     string       `json:"modelName"`
	Timestamp     time.Time    `json:"timestamp"`
	Context       UsageContext `json:"context"`
	UsedFallback  bool         `json:"usedFallback"`
	OriginalModel string       `json:"originalModel,omitempty"`
	Cached        bool         `json:"cached"`
	RoutingInfo   RoutingInfo  `json:"routingInfo"`
}

// StreamChunk is one server-sent event of a streamed chat. The last chunk
// has Done set and carries the usage accounting.
type StreamChunk struct {
	ID      string  `json:"id,omitempty"`
	Content string  `json:"content,omitempty"`
	Done    bool    `json:"done"`
	Model   string  `json:"model,omitempty"`
	Usage   *Usage  `json:"usage,omitempty"`
	Cost    float64 `json:"cost,omitempty"`
	Partial bool    `json:"partial,omitempty"`
	Error   error   `json:"-"`
}

// ScoreBreakdown is one ranked candidate with its per-factor scores.
type ScoreBreakdown struct {
	ModelID      string  `json:"modelId"`
	ModelName    string  `json:"modelName"`
	Score        float64 `json:"score"`
	Capability   float64 `json:"capability"`
	Performance  float64 `json:"performance"`
	Cost         float64 `json:"cost"`
	Availability float64 `json:"availability"`
	Preference   float64 `json:"preference"`
	Specialty    float64 `json:"specialty"`
	Health       float64 `json:"health"`
}

type ModelUsageReport struct {
	ModelID   string  `json:"modelId"`
	Tokens    int     `json:"tokensUsed"`
	Requests  int     `json:"requests"`
	Cost      float64 `json:"cost"`
	Limit     int     `json:"limit"`
	Remaining int     `json:"remaining"`
}

type ContextUsageReport struct {
	Context             UsageContext `json:"context"`
	Requests            int          `json:"requests"`
	Tokens              int          `json:"tokensUsed"`
	Cost                float64      `json:"cost"`
	Errors              int          `json:"errors"`
	RateLimitHits       int          `json:"rateLimitHits"`
	AverageResponseTime float64      `json:"averageResponseTime"`
}

type UsageReport struct {
	UserID   string               `json:"userId"`
	Plan     Plan                 `json:"plan"`
	Day      string               `json:"day"`
	Models   []ModelUsageReport   `json:"models"`
	Contexts []ContextUsageReport `json:"contexts"`
}

type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Models    map[string]ModelStatus `json:"models"`
}

type ModelStatus struct {
	Status string  `json:"status"`
	Health float64 `json:"health"`
	Load   int     `json:"load"`
}

type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func NewErrorResponse(code string, message string, details interface{}) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}
