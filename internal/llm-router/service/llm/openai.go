package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/registry"
)

type OpenAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(apiKey, baseURL string, timeout time.Duration) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
	}
}

func (p *OpenAIProvider) Name() string {
	return registry.ProviderOpenAI
}

func (p *OpenAIProvider) request(req CompletionRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	r := openai.ChatCompletionRequest{
		Model:            req.Model.ID,
		Messages:         messages,
		MaxTokens:        req.maxTokens(),
		Temperature:      Temperature,
		PresencePenalty:  PresencePenalty,
		FrequencyPenalty: FrequencyPenalty,
		Stream:           stream,
	}
	if stream {
		r.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return r
}

func (p *OpenAIProvider) classify(model string, err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return newStatusError(p.Name(), model, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return newStatusError(p.Name(), model, reqErr.HTTPStatusCode, err)
	}
	return classifyTransport(p.Name(), model, err)
}

func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req CompletionRequest) (*Completion, error) {
	model := req.Model.ID
	resp, err := p.client.CreateChatCompletion(ctx, p.request(req, false))
	if err != nil {
		return nil, p.classify(model, err)
	}

	if len(resp.Choices) == 0 {
		return nil, malformed(p.Name(), model, "no completion choices returned")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return nil, malformed(p.Name(), model, "empty content (finish reason %q)", resp.Choices[0].FinishReason)
	}
	if resp.Usage.TotalTokens == 0 {
		return nil, malformed(p.Name(), model, "missing usage")
	}

	id := resp.ID
	if id == "" {
		id = uuid.New().String()
	}
	return &Completion{
		ID:      id,
		Content: content,
		Model:   model,
		Usage: models.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (p *OpenAIProvider) ChatCompletionStream(
	ctx context.Context, req CompletionRequest,
) (<-chan models.StreamChunk, error) {
	model := req.Model.ID
	stream, err := p.client.CreateChatCompletionStream(ctx, p.request(req, true))
	if err != nil {
		return nil, p.classify(model, err)
	}

	out := make(chan models.StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		st := newStreamState(model, req.Messages)
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				st.finish(ctx, out, nil)
				return
			}
			if err != nil {
				st.finish(ctx, out, p.classify(model, err))
				return
			}

			if st.id == "" {
				st.id = resp.ID
			}
			if resp.Usage != nil {
				st.usage = &models.Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				}
			}
			if len(resp.Choices) > 0 && !st.forward(ctx, out, resp.Choices[0].Delta.Content) {
				st.finish(ctx, out, nil)
				return
			}
		}
	}()

	return out, nil
}
