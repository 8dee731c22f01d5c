package llm

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/time/rate"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
)

type pacedProvider struct {
	Provider
	limiter *rate.Limiter
}

// Gateway dispatches completion requests to the provider owning the model,
// pacing outgoing calls per provider.
type Gateway struct {
	providers map[string]pacedProvider
}

func NewGateway() *Gateway {
	return &Gateway{providers: make(map[string]pacedProvider)}
}

// Register adds a provider. A non-positive rps disables pacing.
func (g *Gateway) Register(p Provider, rps float64, burst int) {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	g.providers[p.Name()] = pacedProvider{Provider: p, limiter: rate.NewLimiter(limit, burst)}
}

// Providers lists registered provider names, sorted.
func (g *Gateway) Providers() []string {
	names := make([]string, 0, len(g.providers))
	for name := range g.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Gateway) provider(ctx context.Context, req CompletionRequest) (pacedProvider, error) {
	p, ok := g.providers[req.Model.Provider]
	if !ok {
		return pacedProvider{}, &ProviderError{
			Kind:     KindUnavailable,
			Provider: req.Model.Provider,
			Model:    req.Model.ID,
			Err:      fmt.Errorf("no client configured for provider %q", req.Model.Provider),
		}
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return pacedProvider{}, classifyTransport(p.Name(), req.Model.ID, err)
	}
	return p, nil
}

func (g *Gateway) ChatCompletion(ctx context.Context, req CompletionRequest) (*Completion, error) {
	p, err := g.provider(ctx, req)
	if err != nil {
		return nil, err
	}
	req.MaxTokens = req.maxTokens()
	return p.ChatCompletion(ctx, req)
}

func (g *Gateway) ChatCompletionStream(ctx context.Context, req CompletionRequest) (<-chan models.StreamChunk, error) {
	p, err := g.provider(ctx, req)
	if err != nil {
		return nil, err
	}
	req.MaxTokens = req.maxTokens()
	return p.ChatCompletionStream(ctx, req)
}
