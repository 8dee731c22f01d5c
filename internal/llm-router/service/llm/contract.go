package llm

import (
	"context"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
)

// Sampling parameters are the same for every provider so that routing
// decisions compare like with like.
const (
	Temperature      = float32(0.7)
	PresencePenalty  = float32(0)
	FrequencyPenalty = float32(0)
	DefaultMaxTokens = 1000
)

const partialPrefix = "[Partial response: the model returned only its reasoning]\n\n"

type CompletionRequest struct {
	Model     models.ModelDescriptor
	Messages  []models.Message
	MaxTokens int
}

// maxTokens never exceeds the descriptor's ceiling.
func (r CompletionRequest) maxTokens() int {
	n := r.MaxTokens
	if n <= 0 {
		n = DefaultMaxTokens
	}
	if r.Model.MaxTokens > 0 && n > r.Model.MaxTokens {
		n = r.Model.MaxTokens
	}
	return n
}

type Completion struct {
	ID      string
	Content string
	Model   string
	Usage   models.Usage
	// Partial is set when Content is a labeled reasoning fallback.
	Partial bool
}

// Provider is one upstream API family. Every error returned is a
// *ProviderError. Stream channels end with exactly one Done chunk carrying
// usage, also after cancellation; consumers must drain them until closed.
type Provider interface {
	Name() string
	ChatCompletion(ctx context.Context, req CompletionRequest) (*Completion, error)
	ChatCompletionStream(ctx context.Context, req CompletionRequest) (<-chan models.StreamChunk, error)
}
