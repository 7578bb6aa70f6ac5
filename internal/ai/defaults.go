package ai

import (
	"context"
	"strings"
)

// Endpoints carries the configured defaults for the built-in providers.
type Endpoints struct {
	OllamaBaseURL string
	OllamaModel   string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
}

// RegisterDefaults adds "ollama", "openai" and "gemini" factories.
// Per-call Options override the configured model and key.
func RegisterDefaults(r *Registry, e Endpoints) {
	r.Register("ollama", func(ctx context.Context, opts Options) (Provider, error) {
		p := NewOllamaProvider(e.OllamaBaseURL, or(opts.Model, e.OllamaModel))
		if opts.JSON {
			p.Format = "json"
		}
		return p, nil
	})
	r.Register("openai", func(ctx context.Context, opts Options) (Provider, error) {
		p := NewOpenAIProvider(e.OpenAIBaseURL, or(opts.APIKey, e.OpenAIAPIKey), or(opts.Model, e.OpenAIModel))
		p.JSONMode = opts.JSON
		return p, nil
	})
	r.Register("gemini", func(ctx context.Context, opts Options) (Provider, error) {
		p, err := NewGeminiProvider(ctx, or(opts.APIKey, e.GeminiAPIKey), or(opts.Model, e.GeminiModel))
		if err != nil {
			return nil, err
		}
		p.JSONMode = opts.JSON
		return p, nil
	})
}

func or(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
