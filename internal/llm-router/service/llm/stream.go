package llm

import (
	"context"
	"strings"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
)

// EstimateTokens is the rough four-characters-per-token rule used wherever a
// provider did not report usage.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

func estimateUsage(messages []models.Message, completion string) models.Usage {
	prompt := 0
	for _, m := range messages {
		prompt += EstimateTokens(m.Content)
	}
	out := EstimateTokens(completion)
	return models.Usage{PromptTokens: prompt, CompletionTokens: out, TotalTokens: prompt + out}
}

// streamState accumulates what one stream has delivered so far.
type streamState struct {
	id       string
	model    string
	messages []models.Message
	content  strings.Builder
	usage    *models.Usage
}

func newStreamState(model string, messages []models.Message) *streamState {
	return &streamState{model: model, messages: messages}
}

// forward delivers a content chunk unless the caller went away.
func (s *streamState) forward(ctx context.Context, out chan<- models.StreamChunk, content string) bool {
	if content == "" {
		return ctx.Err() == nil
	}
	s.content.WriteString(content)
	select {
	case out <- models.StreamChunk{ID: s.id, Content: content, Model: s.model}:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish emits the closing usage event. It blocks until read so that
// accounting survives cancellation. A read error caused by the caller going
// away is not a provider failure and is dropped.
func (s *streamState) finish(ctx context.Context, out chan<- models.StreamChunk, err error) {
	cancelled := ctx.Err() != nil
	if cancelled {
		err = nil
	}
	usage := estimateUsage(s.messages, s.content.String())
	if s.usage != nil && s.usage.TotalTokens > 0 {
		usage = *s.usage
	}
	out <- models.StreamChunk{
		ID:      s.id,
		Done:    true,
		Model:   s.model,
		Usage:   &usage,
		Partial: err != nil || cancelled,
		Error:   err,
	}
}
