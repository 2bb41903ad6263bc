package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/YosriMlik/llm-wrapper/internal/config"
	"github.com/YosriMlik/llm-wrapper/internal/models"
	"github.com/YosriMlik/llm-wrapper/internal/openrouter"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type fakeCompleter struct {
	completion *models.Completion
	stream     string
	err        error

	calls    int
	model    string
	messages []models.ChatMessage
}

func (f *fakeCompleter) Complete(_ context.Context, model string, messages []models.ChatMessage) (*models.Completion, error) {
	f.calls++
	f.model, f.messages = model, messages
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

func (f *fakeCompleter) Stream(_ context.Context, model string, messages []models.ChatMessage) (io.ReadCloser, error) {
	f.calls++
	f.model, f.messages = model, messages
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.stream)), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Mode = gin.TestMode
	cfg.Server.StaticDir = filepath.Join(t.TempDir(), "missing")
	cfg.OpenRouter.APIKey = "sk-or-test"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()
	s, err := New(cfg, zap.NewNop(), opts...)
	require.NoError(t, err)
	return s
}

func do(s *Server, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func completionOf(content, model string) *models.Completion {
	raw := `{"id":"gen-1","model":"` + model + `","choices":[{"index":0,"message":{"role":"assistant","content":"` + content + `"},"finish_reason":"stop"}],"provider":"Chutes"}`
	c := &models.Completion{Raw: json.RawMessage(raw)}
	_ = json.Unmarshal(c.Raw, &c.Response)
	return c
}

func TestAPIStatus(t *testing.T) {
	s := newTestServer(t, testConfig(t), WithCompleter(&fakeCompleter{}), WithVersion("2.3.4"))

	w := do(s, http.MethodGet, "/api/", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Chatbot API is running", resp.Message)
	assert.Equal(t, "2.3.4", resp.Version)
	_, err := time.Parse(time.RFC3339Nano, resp.Timestamp)
	assert.NoError(t, err)
}

func TestListModels(t *testing.T) {
	s := newTestServer(t, testConfig(t), WithCompleter(&fakeCompleter{}))

	for _, path := range []string{"/api/models", "/api/ai-models"} {
		w := do(s, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, w.Code, path)

		var resp models.ModelsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, config.DefaultModel, resp.Default)
		require.Len(t, resp.Models, len(config.DefaultFreeModels))
		assert.Equal(t, "google/gemma-3n-e2b-it", resp.Models[1].Name)
	}
}

func TestChat_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"invalid json", `{"message":`},
		{"no content", `{"model":"x"}`},
		{"empty messages", `{"messages":[]}`},
		{"bad role", `{"messages":[{"role":"tool","content":"hi"}]}`},
		{"missing role", `{"messages":[{"content":"hi"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeCompleter{}
			s := newTestServer(t, testConfig(t), WithCompleter(fake))

			w := do(s, http.MethodPost, "/api/chat", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, gjson.Get(w.Body.String(), "error").String())
			assert.Equal(t, 0, fake.calls)
		})
	}
}

func TestChat_Normalized(t *testing.T) {
	fake := &fakeCompleter{completion: completionOf("Hi there", "")}
	s := newTestServer(t, testConfig(t), WithCompleter(fake))

	w := do(s, http.MethodPost, "/api/chat", `{"message":"Hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.JSONEq(t, `{"response":"Hi there","model":"`+config.DefaultModel+`"}`, w.Body.String())
	assert.Equal(t, config.DefaultModel, fake.model)
	assert.Equal(t, []models.ChatMessage{{Role: models.RoleUser, Content: "Hello"}}, fake.messages)
}

func TestChat_MessagesTakePrecedence(t *testing.T) {
	fake := &fakeCompleter{completion: completionOf("ok", "google/gemma-3n-e2b-it:free")}
	s := newTestServer(t, testConfig(t), WithCompleter(fake))

	w := do(s, http.MethodPost, "/api/chat", `{
		"message": "ignored",
		"model": "google/gemma-3n-e2b-it:free",
		"messages": [{"role":"system","content":"Be brief"},{"role":"user","content":"Hi"}]
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "google/gemma-3n-e2b-it:free", fake.model)
	require.Len(t, fake.messages, 2)
	assert.Equal(t, models.RoleSystem, fake.messages[0].Role)
	assert.Equal(t, "google/gemma-3n-e2b-it:free", gjson.Get(w.Body.String(), "model").String())
}

func TestChatCompletions_Verbatim(t *testing.T) {
	completion := completionOf("hello", "m")
	fake := &fakeCompleter{completion: completion}
	s := newTestServer(t, testConfig(t), WithCompleter(fake))

	w := do(s, http.MethodPost, "/api/chat/completions", `{"messages":[{"role":"user","content":"Hi"}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, string(completion.Raw), w.Body.String())
	assert.Equal(t, "Chutes", gjson.Get(w.Body.String(), "provider").String())
}

func TestChat_UpstreamError(t *testing.T) {
	fake := &fakeCompleter{err: &openrouter.UpstreamError{StatusCode: 429, Body: "rate limited"}}
	s := newTestServer(t, testConfig(t), WithCompleter(fake))

	w := do(s, http.MethodPost, "/api/chat", `{"message":"Hello"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"OpenRouter API error: 429 rate limited"}`, w.Body.String())
}

func TestChat_NoChoices(t *testing.T) {
	fake := &fakeCompleter{err: &openrouter.UpstreamError{StatusCode: 200, Err: openrouter.ErrNoChoices}}
	s := newTestServer(t, testConfig(t), WithCompleter(fake))

	w := do(s, http.MethodPost, "/api/chat/completions", `{"message":"Hello"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "no response from AI model", gjson.Get(w.Body.String(), "error").String())
}

func TestChat_MissingAPIKey(t *testing.T) {
	var calls int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer upstream.Close()

	cfg := testConfig(t)
	cfg.OpenRouter.APIKey = ""
	cfg.OpenRouter.BaseURL = upstream.URL
	s := newTestServer(t, cfg)

	for _, body := range []string{`{"message":"Hello"}`, `{"message":"Hello","stream":true}`} {
		w := do(s, http.MethodPost, "/api/chat", body)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"OpenRouter API key not configured"}`, w.Body.String())
	}
	assert.Equal(t, 0, calls)
}

func TestChat_Stream(t *testing.T) {
	fake := &fakeCompleter{stream: ": OPENROUTER PROCESSING\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\n\n" +
		"data: {broken\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"B\"}}]}\n\n" +
		"data: [DONE]\n\n"}
	s := newTestServer(t, testConfig(t), WithCompleter(fake))

	w := do(s, http.MethodPost, "/api/chat", `{"message":"Hello","stream":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", w.Header().Get("Connection"))
	assert.Equal(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"A\"}}]}\n\n"+
			"data: {\"choices\":[{\"delta\":{\"content\":\"B\"}}]}\n\n"+
			"data: [DONE]\n\n",
		w.Body.String())
}

func TestChat_StreamUpstreamRejects(t *testing.T) {
	fake := &fakeCompleter{err: &openrouter.UpstreamError{StatusCode: 401, Body: "No auth credentials found"}}
	s := newTestServer(t, testConfig(t), WithCompleter(fake))

	w := do(s, http.MethodPost, "/api/chat/completions", `{"message":"Hello","stream":true}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "OpenRouter API error: 401 No auth credentials found", gjson.Get(w.Body.String(), "error").String())
}

func TestChat_StreamThroughOpenRouter(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-or-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.True(t, gjson.GetBytes(body, "stream").Bool())

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, part := range []string{"data: {\"choices\":[{\"delta\":{\"con", "tent\":\"Hi\"}}]}\n\n", "data: [DONE]\n\n"} {
			_, _ = io.WriteString(w, part)
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	cfg := testConfig(t)
	cfg.OpenRouter.BaseURL = upstream.URL
	s := newTestServer(t, cfg)

	w := do(s, http.MethodPost, "/api/chat", `{"message":"Hello","stream":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n", w.Body.String())
}

func TestChat_StrictModel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Models.Strict = true
	fake := &fakeCompleter{completion: completionOf("ok", "")}
	s := newTestServer(t, cfg, WithCompleter(fake))

	w := do(s, http.MethodPost, "/api/chat", `{"message":"Hello","model":"openai/gpt-4o"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, fake.calls)

	w = do(s, http.MethodPost, "/api/chat", `{"message":"Hello","model":"google/gemma-3n-e2b-it:free"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChat_UnknownModelForwardedWhenNotStrict(t *testing.T) {
	fake := &fakeCompleter{completion: completionOf("ok", "")}
	s := newTestServer(t, testConfig(t), WithCompleter(fake))

	w := do(s, http.MethodPost, "/api/chat", `{"message":"Hello","model":"openai/gpt-4o"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "openai/gpt-4o", fake.model)
}

func TestAuthorizer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.APIKey = "secret"
	fake := &fakeCompleter{completion: completionOf("ok", "")}
	s := newTestServer(t, cfg, WithCompleter(fake))

	w := do(s, http.MethodPost, "/api/chat", `{"message":"Hello"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(s, http.MethodPost, "/api/chat", `{"message":"Hello"}`, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, fake.calls)

	w = do(s, http.MethodPost, "/api/chat", `{"message":"Hello"}`, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, w.Code)

	// health stays public
	w = do(s, http.MethodGet, "/api/", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCustomAuthorizer(t *testing.T) {
	deny := AuthorizerFunc(func(r *http.Request) error {
		if r.Header.Get("X-Tenant") == "" {
			return errors.New("tenant required")
		}
		return nil
	})
	s := newTestServer(t, testConfig(t), WithCompleter(&fakeCompleter{}), WithAuthorizer(deny))

	w := do(s, http.MethodGet, "/api/models", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"tenant required"}`, w.Body.String())

	w = do(s, http.MethodGet, "/api/models", "", "X-Tenant", "a")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, testConfig(t), WithCompleter(&fakeCompleter{}))

	w := do(s, http.MethodOptions, "/api/chat", "", "Origin", "http://localhost:5173", "Access-Control-Request-Method", "POST")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")

	w = do(s, http.MethodGet, "/api/models", "", "Origin", "http://localhost:5173")
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.EnableCORS = false
	s := newTestServer(t, cfg, WithCompleter(&fakeCompleter{}))

	w := do(s, http.MethodGet, "/api/models", "", "Origin", "http://localhost:5173")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestEcho(t *testing.T) {
	s := newTestServer(t, testConfig(t), WithCompleter(&fakeCompleter{}))

	w := do(s, http.MethodPost, "/api/test", `{"ping":[1,2]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":{"ping":[1,2]},"status":"ok"}`, w.Body.String())

	w = do(s, http.MethodPost, "/api/test", `{nope`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Failed to parse JSON"}`, w.Body.String())
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t, testConfig(t), WithCompleter(&fakeCompleter{}))

	w := do(s, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(s, http.MethodGet, "/health", "", "X-Request-ID", "abc")
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

func TestNotFound_API(t *testing.T) {
	s := newTestServer(t, testConfig(t), WithCompleter(&fakeCompleter{}))

	w := do(s, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Route not found"}`, w.Body.String())
}

func TestStatic_SPAFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0644))

	cfg := testConfig(t)
	cfg.Server.StaticDir = dir
	s := newTestServer(t, cfg, WithCompleter(&fakeCompleter{}))

	w := do(s, http.MethodGet, "/assets/app.js", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log(1)", w.Body.String())

	for _, path := range []string{"/", "/chat/42", "/index.html", "/../etc/passwd"} {
		w = do(s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "<html>app</html>", w.Body.String(), path)
	}

	w = do(s, http.MethodPost, "/chat/42", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatic_EmbeddedFallback(t *testing.T) {
	s := newTestServer(t, testConfig(t), WithCompleter(&fakeCompleter{}))

	w := do(s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Chatbot API is running")
}

func TestNew_InvalidRegistry(t *testing.T) {
	cfg := testConfig(t)
	cfg.Models.Default = "not/registered"

	_, err := New(cfg, zap.NewNop())
	assert.Error(t, err)
}
