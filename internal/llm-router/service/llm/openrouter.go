package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/registry"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenRouterProvider talks to the aggregator over plain HTTP and SSE.
type OpenRouterProvider struct {
	apiKey      string
	baseURL     string
	client      *http.Client
	httpHeaders map[string]string
}

type openRouterRequest struct {
	Model            string              `json:"model"`
	Messages         []openRouterMessage `json:"messages"`
	MaxTokens        int                 `json:"max_tokens,omitempty"`
	Temperature      float32             `json:"temperature"`
	PresencePenalty  float32             `json:"presence_penalty"`
	FrequencyPenalty float32             `json:"frequency_penalty"`
	Stream           bool                `json:"stream,omitempty"`
	Usage            *usageOption        `json:"usage,omitempty"`
}

type usageOption struct {
	Include bool `json:"include"`
}

type openRouterMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

type openRouterResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []openRouterChoice `json:"choices"`
	Usage   *openRouterUsage   `json:"usage"`
	Error   *openRouterError   `json:"error"`
}

type openRouterChoice struct {
	Message      *openRouterMessage `json:"message"`
	Delta        *openRouterMessage `json:"delta"`
	FinishReason string             `json:"finish_reason"`
}

type openRouterUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openRouterError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewOpenRouterProvider(apiKey, baseURL string, timeout time.Duration, httpHeaders map[string]string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenRouterProvider{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		httpHeaders: httpHeaders,
	}
}

func (p *OpenRouterProvider) Name() string {
	return registry.ProviderOpenRouter
}

func (p *OpenRouterProvider) post(ctx context.Context, req CompletionRequest, stream bool) (*http.Response, error) {
	model := req.Model.ID
	body := openRouterRequest{
		Model:            model,
		Messages:         make([]openRouterMessage, 0, len(req.Messages)),
		MaxTokens:        req.maxTokens(),
		Temperature:      Temperature,
		PresencePenalty:  PresencePenalty,
		FrequencyPenalty: FrequencyPenalty,
		Stream:           stream,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openRouterMessage{Role: m.Role, Content: m.Content})
	}
	if stream {
		body.Usage = &usageOption{Include: true}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Kind: KindBadRequest, Provider: p.Name(), Model: model, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, &ProviderError{Kind: KindBadRequest, Provider: p.Name(), Model: model, Err: err}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range p.httpHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(p.Name(), model, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newStatusError(p.Name(), model, resp.StatusCode, fmt.Errorf("%s", upstreamMessage(data)))
	}
	return resp, nil
}

// upstreamMessage extracts the error message without echoing whole bodies.
func upstreamMessage(data []byte) string {
	var parsed openRouterResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = "empty error body"
	}
	return msg
}

func (p *OpenRouterProvider) ChatCompletion(ctx context.Context, req CompletionRequest) (*Completion, error) {
	model := req.Model.ID
	resp, err := p.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed openRouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, classifyTransport(p.Name(), model, fmt.Errorf("failed to decode response: %w", err))
	}

	// Errors can also arrive with a 200 status.
	if parsed.Error != nil {
		return nil, newStatusError(p.Name(), model, parsed.Error.Code, fmt.Errorf("%s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil {
		return nil, malformed(p.Name(), model, "no completion choices returned")
	}
	if parsed.Usage == nil {
		return nil, malformed(p.Name(), model, "missing usage")
	}

	msg := parsed.Choices[0].Message
	content, partial := msg.Content, false
	if strings.TrimSpace(content) == "" {
		if strings.TrimSpace(msg.Reasoning) == "" {
			return nil, malformed(p.Name(), model, "empty content (finish reason %q)", parsed.Choices[0].FinishReason)
		}
		content, partial = partialPrefix+msg.Reasoning, true
	}

	id := parsed.ID
	if id == "" {
		id = uuid.New().String()
	}
	return &Completion{
		ID:      id,
		Content: content,
		Model:   model,
		Usage: models.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
		Partial: partial,
	}, nil
}

func (p *OpenRouterProvider) ChatCompletionStream(
	ctx context.Context, req CompletionRequest,
) (<-chan models.StreamChunk, error) {
	model := req.Model.ID
	resp, err := p.post(ctx, req, true)
	if err != nil {
		return nil, err
	}

	out := make(chan models.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		st := newStreamState(model, req.Messages)
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					st.finish(ctx, out, nil)
				} else {
					st.finish(ctx, out, classifyTransport(p.Name(), model, fmt.Errorf("stream read error: %w", err)))
				}
				return
			}

			line = bytes.TrimSpace(line)
			// Keep-alive comments start with ':' and are skipped with blank lines.
			if !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}

			data := bytes.TrimPrefix(line, []byte("data: "))
			if bytes.Equal(data, []byte("[DONE]")) {
				st.finish(ctx, out, nil)
				return
			}

			var chunk openRouterResponse
			if err := json.Unmarshal(data, &chunk); err != nil {
				st.finish(ctx, out, malformed(p.Name(), model, "stream chunk: %v", err))
				return
			}
			if chunk.Error != nil {
				st.finish(ctx, out, newStatusError(p.Name(), model, chunk.Error.Code, fmt.Errorf("%s", chunk.Error.Message)))
				return
			}

			if st.id == "" {
				st.id = chunk.ID
			}
			if chunk.Usage != nil {
				st.usage = &models.Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
				if !st.forward(ctx, out, chunk.Choices[0].Delta.Content) {
					st.finish(ctx, out, nil)
					return
				}
			}
		}
	}()

	return out, nil
}
