package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
)

type recordingProvider struct {
	name string
	last CompletionRequest
}

func (p *recordingProvider) Name() string { return p.name }

func (p *recordingProvider) ChatCompletion(_ context.Context, req CompletionRequest) (*Completion, error) {
	p.last = req
	return &Completion{ID: "1", Content: "ok", Model: req.Model.ID, Usage: models.Usage{TotalTokens: 1}}, nil
}

func (p *recordingProvider) ChatCompletionStream(
	ctx context.Context, req CompletionRequest,
) (<-chan models.StreamChunk, error) {
	p.last = req
	out := make(chan models.StreamChunk, 2)
	st := newStreamState(req.Model.ID, req.Messages)
	st.forward(ctx, out, "ok")
	st.finish(ctx, out, nil)
	close(out)
	return out, nil
}

func TestGatewayDispatch(t *testing.T) {
	g := NewGateway()
	openai := &recordingProvider{name: "openai"}
	router := &recordingProvider{name: "openrouter"}
	g.Register(openai, 0, 0)
	g.Register(router, 10, 2)
	assert.Equal(t, []string{"openai", "openrouter"}, g.Providers())

	desc := models.ModelDescriptor{ID: "m1", Provider: "openrouter", MaxTokens: 2000}
	resp, err := g.ChatCompletion(context.Background(), CompletionRequest{Model: desc, MaxTokens: 12000})
	require.NoError(t, err)
	assert.Equal(t, "m1", resp.Model)
	assert.Equal(t, 2000, router.last.MaxTokens)
	assert.Empty(t, openai.last.Model.ID)

	ch, err := g.ChatCompletionStream(context.Background(), CompletionRequest{Model: desc})
	require.NoError(t, err)
	var final models.StreamChunk
	for c := range ch {
		final = c
	}
	assert.True(t, final.Done)
	assert.Equal(t, DefaultMaxTokens, router.last.MaxTokens)
}

func TestGatewayUnknownProvider(t *testing.T) {
	g := NewGateway()
	_, err := g.ChatCompletion(
		context.Background(), CompletionRequest{Model: models.ModelDescriptor{ID: "x", Provider: "nope"}},
	)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindUnavailable, pe.Kind)
	assert.True(t, pe.Retryable())
}

func TestGatewayCancelledWhilePacing(t *testing.T) {
	g := NewGateway()
	g.Register(&recordingProvider{name: "openai"}, 0.001, 1)
	desc := models.ModelDescriptor{ID: "m", Provider: "openai"}

	_, err := g.ChatCompletion(context.Background(), CompletionRequest{Model: desc})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.ChatCompletion(ctx, CompletionRequest{Model: desc})
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindNetwork, pe.Kind)
}

func TestKindForStatus(t *testing.T) {
	tests := map[int]ErrorKind{
		429: KindRateLimited,
		401: KindAuthInvalid,
		403: KindAuthInvalid,
		400: KindBadRequest,
		404: KindBadRequest,
		408: KindNetwork,
		500: KindUnavailable,
		503: KindUnavailable,
		0:   KindUnknown,
	}
	for status, kind := range tests {
		assert.Equal(t, kind, kindForStatus(status), "status %d", status)
	}
}

func TestClassifyTransport(t *testing.T) {
	assert.Equal(t, KindNetwork, classifyTransport("p", "m", context.DeadlineExceeded).Kind)
	assert.Equal(t, KindNetwork, classifyTransport("p", "m", &net.OpError{Op: "dial", Err: errors.New("refused")}).Kind)
	assert.Equal(t, KindNetwork, classifyTransport("p", "m", fmt.Errorf("read: %w", io.ErrUnexpectedEOF)).Kind)
	assert.Equal(t, KindUnknown, classifyTransport("p", "m", errors.New("odd")).Kind)

	inner := &ProviderError{Kind: KindRateLimited, Provider: "p", Model: "m", Err: errors.New("slow")}
	assert.Same(t, inner, classifyTransport("p", "m", fmt.Errorf("wrapped: %w", inner)))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}
