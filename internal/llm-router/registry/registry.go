// Package registry is the static catalog of AI models the router can use.
package registry

import (
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/limits"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
)

var catalog = []models.ModelDescriptor{
	{
		ID:                    limits.GPT35Turbo,
		Provider:              ProviderOpenAI,
		Name:                  "GPT-3.5 Turbo",
		CostPer1KInput:        0.0005,
		CostPer1KOutput:       0.0015,
		MaxTokens:             4096,
		ContextWindow:         16385,
		Capabilities:          []string{"general", "coding", "explanation"},
		Fallbacks:             []string{limits.GPT4oMini, limits.DeepSeekChat},
		Performance:           models.PerformanceMetrics{Accuracy: 0.75, Speed: 0.9, CostEfficiency: 0.9, Reliability: 0.9},
		ContextSpecialties:    []models.UsageContext{models.ContextGeneral, models.ContextLearning},
		CodeSpecialties:       []string{"javascript", "python"},
		MaxConcurrentRequests: 50,
	},
	{
		ID:                    limits.GPT4oMini,
		Provider:              ProviderOpenAI,
		Name:                  "GPT-4o Mini",
		CostPer1KInput:        0.00015,
		CostPer1KOutput:       0.0006,
		MaxTokens:             16384,
		ContextWindow:         128000,
		Capabilities:          []string{"general", "coding", "debugging", "explanation"},
		Fallbacks:             []string{limits.GPT35Turbo, limits.DeepSeekChat},
		Performance:           models.PerformanceMetrics{Accuracy: 0.82, Speed: 0.9, CostEfficiency: 0.95, Reliability: 0.92},
		ContextSpecialties:    []models.UsageContext{models.ContextGeneral, models.ContextDebugging},
		CodeSpecialties:       []string{"javascript", "typescript", "python", "go"},
		MaxConcurrentRequests: 50,
	},
	{
		ID:                    limits.GPT4o,
		Provider:              ProviderOpenAI,
		Name:                  "GPT-4o",
		CostPer1KInput:        0.0025,
		CostPer1KOutput:       0.01,
		MaxTokens:             16384,
		ContextWindow:         128000,
		RequiresPremium:       true,
		Capabilities:          []string{"general", "coding", "debugging", "reasoning", "architecture", "explanation"},
		Fallbacks:             []string{limits.GPT4oMini, limits.Claude35Sonnet},
		Performance:           models.PerformanceMetrics{Accuracy: 0.93, Speed: 0.75, CostEfficiency: 0.6, Reliability: 0.95},
		ContextSpecialties:    []models.UsageContext{models.ContextCodeReview, models.ContextProjectHelp, models.ContextDebugging},
		CodeSpecialties:       []string{"javascript", "typescript", "python", "go", "java", "rust", "c++"},
		MaxConcurrentRequests: 30,
	},
	{
		ID:                    limits.DeepSeekR1,
		Provider:              ProviderOpenRouter,
		Name:                  "DeepSeek R1",
		MaxTokens:             8192,
		ContextWindow:         64000,
		Capabilities:          []string{"reasoning", "coding", "debugging"},
		Fallbacks:             []string{limits.DeepSeekChat, limits.QwenCoder},
		Performance:           models.PerformanceMetrics{Accuracy: 0.88, Speed: 0.5, CostEfficiency: 1.0, Reliability: 0.75},
		ContextSpecialties:    []models.UsageContext{models.ContextDebugging, models.ContextCodeReview},
		CodeSpecialties:       []string{"python", "c++", "algorithms", "javascript"},
		MaxConcurrentRequests: 10,
	},
	{
		ID:                    limits.DeepSeekChat,
		Provider:              ProviderOpenRouter,
		Name:                  "DeepSeek V3",
		MaxTokens:             8192,
		ContextWindow:         64000,
		Capabilities:          []string{"general", "coding", "explanation"},
		Fallbacks:             []string{limits.Llama33, limits.Mistral7B},
		Performance:           models.PerformanceMetrics{Accuracy: 0.85, Speed: 0.7, CostEfficiency: 1.0, Reliability: 0.8},
		ContextSpecialties:    []models.UsageContext{models.ContextGeneral, models.ContextProjectHelp},
		CodeSpecialties:       []string{"javascript", "typescript", "python", "go"},
		MaxConcurrentRequests: 10,
	},
	{
		ID:                    limits.QwenCoder,
		Provider:              ProviderOpenRouter,
		Name:                  "Qwen 2.5 Coder 32B",
		MaxTokens:             8192,
		ContextWindow:         32768,
		Capabilities:          []string{"coding", "debugging"},
		Fallbacks:             []string{limits.DeepSeekChat, limits.DeepSeekR1},
		Performance:           models.PerformanceMetrics{Accuracy: 0.84, Speed: 0.75, CostEfficiency: 1.0, Reliability: 0.8},
		ContextSpecialties:    []models.UsageContext{models.ContextCodeReview, models.ContextDebugging},
		CodeSpecialties:       []string{"python", "javascript", "typescript", "java", "go", "rust", "c++"},
		MaxConcurrentRequests: 10,
	},
	{
		ID:                    limits.Llama33,
		Provider:              ProviderOpenRouter,
		Name:                  "Llama 3.3 70B",
		MaxTokens:             4096,
		ContextWindow:         131072,
		Capabilities:          []string{"general", "explanation"},
		Fallbacks:             []string{limits.Mistral7B, limits.DeepSeekChat},
		Performance:           models.PerformanceMetrics{Accuracy: 0.8, Speed: 0.7, CostEfficiency: 1.0, Reliability: 0.8},
		ContextSpecialties:    []models.UsageContext{models.ContextLearning, models.ContextGeneral},
		MaxConcurrentRequests: 10,
	},
	{
		ID:                    limits.Mistral7B,
		Provider:              ProviderOpenRouter,
		Name:                  "Mistral 7B Instruct",
		MaxTokens:             4096,
		ContextWindow:         32768,
		Capabilities:          []string{"general"},
		Fallbacks:             []string{limits.Llama33},
		Performance:           models.PerformanceMetrics{Accuracy: 0.65, Speed: 0.9, CostEfficiency: 1.0, Reliability: 0.8},
		ContextSpecialties:    []models.UsageContext{models.ContextGeneral},
		MaxConcurrentRequests: 10,
	},
	{
		ID:                    limits.Claude35Sonnet,
		Provider:              ProviderOpenRouter,
		Name:                  "Claude 3.5 Sonnet",
		CostPer1KInput:        0.003,
		CostPer1KOutput:       0.015,
		MaxTokens:             8192,
		ContextWindow:         200000,
		RequiresPremium:       true,
		Capabilities:          []string{"general", "coding", "reasoning", "architecture", "explanation"},
		Fallbacks:             []string{limits.GPT4o, limits.DeepSeekChat},
		Performance:           models.PerformanceMetrics{Accuracy: 0.94, Speed: 0.7, CostEfficiency: 0.55, Reliability: 0.93},
		ContextSpecialties:    []models.UsageContext{models.ContextCodeReview, models.ContextProjectHelp, models.ContextLearning},
		CodeSpecialties:       []string{"javascript", "typescript", "python", "go", "rust", "java"},
		MaxConcurrentRequests: 20,
	},
}

// Registry is read-only after construction.
type Registry struct {
	models    []models.ModelDescriptor
	byID      map[string]int
	providers map[string]bool
}

// New builds a registry over the built-in catalog; only models whose
// provider is listed are reported as available.
func New(providers ...string) *Registry {
	return NewWithCatalog(catalog, providers...)
}

func NewWithCatalog(descriptors []models.ModelDescriptor, providers ...string) *Registry {
	r := &Registry{
		models:    make([]models.ModelDescriptor, len(descriptors)),
		byID:      make(map[string]int, len(descriptors)),
		providers: make(map[string]bool, len(providers)),
	}
	copy(r.models, descriptors)
	for i, d := range r.models {
		r.byID[d.ID] = i
	}
	for _, p := range providers {
		r.providers[p] = true
	}
	return r
}

func (r *Registry) Get(id string) (models.ModelDescriptor, bool) {
	i, ok := r.byID[id]
	if !ok {
		return models.ModelDescriptor{}, false
	}
	return r.models[i], true
}

func (r *Registry) IsKnownModel(id string) bool {
	_, ok := r.byID[id]
	return ok
}

func (r *Registry) HasProvider(provider string) bool {
	return r.providers[provider]
}

// All returns every descriptor in catalog order.
func (r *Registry) All() []models.ModelDescriptor {
	out := make([]models.ModelDescriptor, len(r.models))
	copy(out, r.models)
	return out
}

// Available returns descriptors whose provider has a configured client.
func (r *Registry) Available() []models.ModelDescriptor {
	out := make([]models.ModelDescriptor, 0, len(r.models))
	for _, d := range r.models {
		if r.providers[d.Provider] {
			out = append(out, d)
		}
	}
	return out
}
