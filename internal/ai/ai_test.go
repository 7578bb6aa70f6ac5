package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	var got Options
	r.Register(" Fake ", func(ctx context.Context, opts Options) (Provider, error) {
		got = opts
		return nil, nil
	})

	assert.True(t, r.Has("fake"))
	assert.Equal(t, []string{"fake"}, r.Names())

	_, err := r.Get(context.Background(), "FAKE", Options{Model: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", got.Model)

	_, err = r.Get(context.Background(), "nope", Options{})
	assert.ErrorContains(t, err, "unknown ai provider")
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaGenerateReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "m", req.Model)
		assert.False(t, req.Stream)
		_ = json.NewEncoder(w).Encode(ollamaGenerateResp{Response: "echo:" + req.Prompt})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "m")
	out, err := p.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", out)
}

func TestOllamaChatStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m").Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	assert.ErrorContains(t, err, "status 502")
}

func TestOpenAIChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req openAIChatReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.NotNil(t, req.ResponseFormat) {
			assert.Equal(t, "json_object", req.ResponseFormat.Type)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"turns\":[]}"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "k", "gpt")
	p.JSONMode = true
	out, err := p.Chat(context.Background(), []Message{{Role: RoleSystem, Content: "s"}, {Role: RoleUser, Content: "u"}})
	require.NoError(t, err)
	assert.Equal(t, `{"turns":[]}`, out)
}

func TestOpenAIChatErrors(t *testing.T) {
	_, err := NewOpenAIProvider("http://unused", "", "gpt").Chat(context.Background(), nil)
	assert.ErrorContains(t, err, "api key is required")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()
	_, err = NewOpenAIProvider(srv.URL, "k", "gpt").Chat(context.Background(), nil)
	assert.EqualError(t, err, "openai: bad key")
}

func TestGeminiRequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(context.Background(), "", "")
	assert.ErrorContains(t, err, "api key is required")
}

func TestSplit(t *testing.T) {
	sys, user := split([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleSystem, Content: "c"},
	})
	assert.Equal(t, "a\nc", sys)
	assert.Equal(t, "b", user)
}

func TestRegisterDefaultsOverrides(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r, Endpoints{OpenAIModel: "base", OpenAIAPIKey: "cfg", OllamaModel: "llama"})

	p, err := r.Get(context.Background(), "openai", Options{Model: "over", JSON: true})
	require.NoError(t, err)
	op := p.(*OpenAIProvider)
	assert.Equal(t, "over", op.Model)
	assert.Equal(t, "cfg", op.APIKey)
	assert.True(t, op.JSONMode)

	p, err = r.Get(context.Background(), "ollama", Options{})
	require.NoError(t, err)
	assert.Equal(t, "llama", p.(*OllamaProvider).Model)

	_, err = r.Get(context.Background(), "gemini", Options{})
	assert.Error(t, err)
}
