package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/registry"
)

func openAIDescriptor() models.ModelDescriptor {
	return models.ModelDescriptor{ID: "gpt-4o-mini", Provider: registry.ProviderOpenAI, MaxTokens: 100}
}

func userMessages(content string) []models.Message {
	return []models.Message{
		{Role: models.RoleSystem, Content: "You are helpful."},
		{Role: models.RoleUser, Content: content},
	}
}

func writeSSE(w http.ResponseWriter, payloads ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, p := range payloads {
		fmt.Fprintf(w, "data: %s\n\n", p)
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func collect(t *testing.T, ch <-chan models.StreamChunk) (string, []models.StreamChunk) {
	t.Helper()
	var content string
	var chunks []models.StreamChunk
	for c := range ch {
		content += c.Content
		chunks = append(chunks, c)
	}
	require.NotEmpty(t, chunks)
	return content, chunks
}

func TestOpenAIChatCompletion(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{
					"id": "chatcmpl-1",
					"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello!"}, "finish_reason": "stop"}],
					"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
				}`)
			},
		),
	)
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL+"/v1", 5*time.Second)
	resp, err := p.ChatCompletion(
		context.Background(), CompletionRequest{Model: openAIDescriptor(), Messages: userMessages("hi"), MaxTokens: 500},
	)
	require.NoError(t, err)

	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "Hello!", resp.Content)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, models.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, resp.Usage)
	assert.False(t, resp.Partial)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 100, got["max_tokens"], "clamped to descriptor ceiling")
	assert.InDelta(t, 0.7, got["temperature"], 0.001)
	assert.Len(t, got["messages"], 2)
}

func TestOpenAIErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      ErrorKind
		retryable bool
	}{
		{"server error", 500, `{"error":{"message":"boom","type":"server_error"}}`, KindUnavailable, true},
		{"rate limited", 429, `{"error":{"message":"slow down","type":"rate_limit"}}`, KindRateLimited, true},
		{"bad key", 401, `{"error":{"message":"invalid key","type":"auth"}}`, KindAuthInvalid, false},
		{"bad request", 400, `{"error":{"message":"bad","type":"invalid_request_error"}}`, KindBadRequest, false},
		{"unparseable body", 503, `upstream down`, KindUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				srv := httptest.NewServer(
					http.HandlerFunc(
						func(w http.ResponseWriter, r *http.Request) {
							w.Header().Set("Content-Type", "application/json")
							w.WriteHeader(tt.status)
							fmt.Fprint(w, tt.body)
						},
					),
				)
				defer srv.Close()

				p := NewOpenAIProvider("k", srv.URL+"/v1", 5*time.Second)
				_, err := p.ChatCompletion(
					context.Background(), CompletionRequest{Model: openAIDescriptor(), Messages: userMessages("hi")},
				)
				var pe *ProviderError
				require.True(t, errors.As(err, &pe), "got %v", err)
				assert.Equal(t, tt.kind, pe.Kind)
				assert.Equal(t, tt.status, pe.StatusCode)
				assert.Equal(t, tt.retryable, pe.Retryable())
				assert.Equal(t, registry.ProviderOpenAI, pe.Provider)
			},
		)
	}
}

func TestOpenAIRejectsEmptyResponses(t *testing.T) {
	bodies := map[string]string{
		"no choices": `{"id":"x","choices":[],"usage":{"total_tokens":3}}`,
		"no content": `{"id":"x","choices":[{"message":{"role":"assistant","content":""}}],"usage":{"total_tokens":3}}`,
		"no usage":   `{"id":"x","choices":[{"message":{"role":"assistant","content":"hi"}}]}`,
	}
	for name, body := range bodies {
		t.Run(
			name, func(t *testing.T) {
				srv := httptest.NewServer(
					http.HandlerFunc(
						func(w http.ResponseWriter, r *http.Request) {
							w.Header().Set("Content-Type", "application/json")
							fmt.Fprint(w, body)
						},
					),
				)
				defer srv.Close()

				p := NewOpenAIProvider("k", srv.URL+"/v1", 5*time.Second)
				_, err := p.ChatCompletion(
					context.Background(), CompletionRequest{Model: openAIDescriptor(), Messages: userMessages("hi")},
				)
				var pe *ProviderError
				require.True(t, errors.As(err, &pe))
				assert.Equal(t, KindUnknown, pe.Kind)
			},
		)
	}
}

func TestOpenAINetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewOpenAIProvider("k", url+"/v1", time.Second)
	_, err := p.ChatCompletion(context.Background(), CompletionRequest{Model: openAIDescriptor(), Messages: userMessages("hi")})
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindNetwork, pe.Kind)
	assert.True(t, pe.Retryable())
}

func TestOpenAIStream(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				writeSSE(
					w,
					`{"id":"s1","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
					`{"id":"s1","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
					`{"id":"s1","choices":[],"usage":{"prompt_tokens":9,"completion_tokens":2,"total_tokens":11}}`,
					`[DONE]`,
				)
			},
		),
	)
	defer srv.Close()

	p := NewOpenAIProvider("k", srv.URL+"/v1", 5*time.Second)
	ch, err := p.ChatCompletionStream(
		context.Background(), CompletionRequest{Model: openAIDescriptor(), Messages: userMessages("hi")},
	)
	require.NoError(t, err)

	content, chunks := collect(t, ch)
	assert.Equal(t, "Hello", content)
	assert.Equal(t, true, got["stream"])

	final := chunks[len(chunks)-1]
	assert.True(t, final.Done)
	assert.False(t, final.Partial)
	assert.NoError(t, final.Error)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 11, final.Usage.TotalTokens)
	for _, c := range chunks[:len(chunks)-1] {
		assert.False(t, c.Done)
	}
}

func TestOpenAIStreamCancelled(t *testing.T) {
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				writeSSE(w, `{"id":"s2","choices":[{"index":0,"delta":{"content":"partial answer"}}]}`)
				<-r.Context().Done()
			},
		),
	)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewOpenAIProvider("k", srv.URL+"/v1", 5*time.Second)
	ch, err := p.ChatCompletionStream(ctx, CompletionRequest{Model: openAIDescriptor(), Messages: userMessages("hello")})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "partial answer", first.Content)
	cancel()

	var final models.StreamChunk
	for c := range ch {
		final = c
	}
	assert.True(t, final.Done)
	assert.True(t, final.Partial)
	assert.NoError(t, final.Error, "a caller cancelling is not a provider failure")
	require.NotNil(t, final.Usage)
	assert.Equal(t, EstimateTokens("partial answer"), final.Usage.CompletionTokens)
	assert.Greater(t, final.Usage.TotalTokens, 0)
}

func TestOpenAIProviderLive(t *testing.T) {
	// Skip if no API key is provided
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	p := NewOpenAIProvider(apiKey, "", 30*time.Second)
	desc := openAIDescriptor()
	resp, err := p.ChatCompletion(context.Background(), CompletionRequest{Model: desc, Messages: userMessages("Say hello")})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Content)
	assert.Greater(t, resp.Usage.TotalTokens, 0)
}
