package api

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/cache"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/config"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/ledger"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/limits"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/ratelimit"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/registry"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/service"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/service/llm"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/store"
)

const testSecret = "test-secret"

type stubGateway struct {
	fail bool

	mu   sync.Mutex
	last string
}

func (g *stubGateway) lastMessage() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func (g *stubGateway) ChatCompletion(_ context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	g.mu.Lock()
	g.last = req.Messages[len(req.Messages)-1].Content
	g.mu.Unlock()
	if g.fail {
		return nil, &llm.ProviderError{
			Kind: llm.KindUnavailable, StatusCode: 503, Provider: req.Model.Provider, Model: req.Model.ID,
			Err: errors.New("secret upstream body"),
		}
	}
	return &llm.Completion{
		ID:      "cmpl-1",
		Content: "use a mutex",
		Model:   req.Model.ID,
		Usage:   models.Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30},
	}, nil
}

func (g *stubGateway) ChatCompletionStream(
	_ context.Context, req llm.CompletionRequest,
) (<-chan models.StreamChunk, error) {
	out := make(chan models.StreamChunk, 3)
	out <- models.StreamChunk{ID: "s-1", Content: "hello "}
	out <- models.StreamChunk{ID: "s-1", Content: "world"}
	out <- models.StreamChunk{ID: "s-1", Done: true, Usage: &models.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}}
	close(out)
	return out, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Environment: "test"},
		Auth: config.AuthConfig{
			JWTSecret:   testSecret,
			DefaultPlan: "free",
			AdminUsers:  []string{"admin-1"},
		},
	}
}

func newTestRouter(t *testing.T, gw service.Gateway) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	usage := ledger.NewMemoryLedger()
	rl := ratelimit.DefaultConfig()
	rl.Limits[models.ContextCodeReview] = ratelimit.Limits{Points: 2, Daily: 10}
	limiter := ratelimit.New(store.NewMemoryStore(), usage, rl)
	reg := registry.New(registry.ProviderOpenAI, registry.ProviderOpenRouter)
	ai := service.NewAIService(reg, gw, usage, cache.NewMemoryCache(time.Hour), limiter)
	return NewRouter(testConfig(), ai)
}

func token(t *testing.T, subject, plan string) string {
	t.Helper()
	claims := Claims{
		Plan: plan,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, router http.Handler, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool                 `json:"success"`
	Data    json.RawMessage      `json:"data"`
	Error   models.ErrorResponse `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHealthIsPublic(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})
	w := do(t, router, http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var status models.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAuthentication(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})

	w := do(t, router, http.MethodGet, "/api/v1/ai/models", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged, err := jwt.NewWithClaims(
		jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}},
	).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	w = do(t, router, http.MethodGet, "/api/v1/ai/models", forged, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	unsigned, err := jwt.NewWithClaims(
		jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}},
	).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	w = do(t, router, http.MethodGet, "/api/v1/ai/models", unsigned, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/ai/models", token(t, "", "pro"), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetModelsFollowsPlan(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})

	var free, pro []models.ModelDescriptor
	env := decode(t, do(t, router, http.MethodGet, "/api/v1/ai/models", token(t, "u1", ""), ""))
	require.NoError(t, json.Unmarshal(env.Data, &free))
	env = decode(t, do(t, router, http.MethodGet, "/api/v1/ai/models", token(t, "u1", "pro"), ""))
	require.NoError(t, json.Unmarshal(env.Data, &pro))

	assert.Len(t, pro, len(limits.KnownModels()))
	assert.Less(t, len(free), len(pro))
	for _, d := range free {
		assert.NotEqual(t, limits.GPT4o, d.ID)
	}
}

func TestChat(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})
	w := do(t, router, http.MethodPost, "/api/v1/ai/chat", token(t, "u1", "free"), `{"message":"how do I avoid races?"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decode(t, w)
	assert.True(t, env.Success)
	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "use a mutex", resp.Content)
	assert.Equal(t, 30, resp.Tokens)
	assert.Equal(t, models.ContextGeneral, resp.Context)

	assert.Equal(t, "50", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "49", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "200", w.Header().Get("X-DailyLimit-Limit"))
	assert.Equal(t, "199", w.Header().Get("X-DailyLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestChatErrors(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})

	w := do(t, router, http.MethodPost, "/api/v1/ai/chat", token(t, "u1", "free"), `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decode(t, w).Error.Code)

	w = do(t, router, http.MethodPost, "/api/v1/ai/chat", token(t, "u1", "free"), `{"message":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(
		t, router, http.MethodPost, "/api/v1/ai/chat", token(t, "u1", "free"),
		`{"message":"hi","model":"`+limits.GPT4o+`"}`,
	)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "QUOTA_EXCEEDED", decode(t, w).Error.Code)
}

func TestUpstreamFailureHidesProviderBody(t *testing.T) {
	router := newTestRouter(t, &stubGateway{fail: true})
	w := do(t, router, http.MethodPost, "/api/v1/ai/chat", token(t, "u1", "free"), `{"message":"hello"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "AI_UNAVAILABLE", decode(t, w).Error.Code)
	assert.NotContains(t, w.Body.String(), "secret upstream body")
}

func TestCodeReviewRateLimit(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})
	bearer := token(t, "u1", "premium")
	body := `{"code":"x := 1","language":"go"}`

	for i := 0; i < 2; i++ {
		w := do(t, router, http.MethodPost, "/api/v1/ai/code-review", bearer, body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := do(t, router, http.MethodPost, "/api/v1/ai/code-review", bearer, body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1800", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decode(t, w).Error.Code)

	// other contexts are independent
	w = do(t, router, http.MethodPost, "/api/v1/ai/debug", bearer, `{"code":"x","error":"boom"}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/v1/ai/rate-limit?context=codeReview", bearer, "")
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Context models.UsageContext `json:"context"`
		Status  ratelimit.Decision  `json:"status"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &status))
	assert.Equal(t, models.ContextCodeReview, status.Context)
	assert.False(t, status.Status.Allowed)
}

func TestTemplateRoutesBindBodies(t *testing.T) {
	gw := &stubGateway{}
	router := newTestRouter(t, gw)
	bearer := token(t, "u1", "free")

	w := do(t, router, http.MethodPost, "/api/v1/ai/learning", bearer, `{"level":"beginner"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/ai/learning", bearer, `{"topic":"channels","level":"beginner"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.Equal(t, models.ContextLearning, resp.Context)

	w = do(
		t, router, http.MethodPost, "/api/v1/ai/learning", bearer,
		`{"topic":"channels","question":"Should I close a channel from the receiver?"}`,
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, gw.lastMessage(), "Should I close a channel from the receiver?")

	w = do(
		t, router, http.MethodPost, "/api/v1/ai/project-advice", bearer,
		`{"description":"a chat app","techStack":["go","redis"]}`,
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestUsageAndRecommendations(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})
	bearer := token(t, "u1", "free")

	w := do(t, router, http.MethodPost, "/api/v1/ai/chat", bearer, `{"message":"hello","model":"`+limits.GPT35Turbo+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/ai/usage", bearer, "")
	require.Equal(t, http.StatusOK, w.Code)
	var report models.UsageReport
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &report))
	assert.Equal(t, "u1", report.UserID)
	require.Len(t, report.Contexts, 1)
	assert.Equal(t, 1, report.Contexts[0].Requests)

	w = do(t, router, http.MethodGet, "/api/v1/ai/recommendations?context=debugging&skills=go,%20rust", bearer, "")
	require.Equal(t, http.StatusOK, w.Code)
	var recs []models.ScoreBreakdown
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &recs))
	assert.Len(t, recs, 3)
}

func TestClearCacheRequiresAdmin(t *testing.T) {
	router := newTestRouter(t, &stubGateway{})

	w := do(t, router, http.MethodDelete, "/api/v1/ai/cache", token(t, "u1", "pro"), "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, router, http.MethodDelete, "/api/v1/ai/cache", token(t, "admin-1", "pro"), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStreamChat(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, &stubGateway{}))
	defer srv.Close()

	req, err := http.NewRequest(
		http.MethodPost, srv.URL+"/api/v1/ai/chat/stream", strings.NewReader(`{"message":"stream it"}`),
	)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, "u1", "free"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var events []string
	var last string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event:"); ok {
			events = append(events, name)
		}
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			last = data
		}
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"message", "message", "usage"}, events)

	var final models.StreamChunk
	require.NoError(t, json.Unmarshal([]byte(last), &final))
	assert.True(t, final.Done)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 7, final.Usage.TotalTokens)
	assert.NotEmpty(t, final.Model)
}
