package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/rpg-chat/internal/ai"
)

// Provider selects a backend. The set is closed.
type Provider string

const (
	ProviderStub   Provider = "stub"
	ProviderLocal  Provider = "ollama"
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// ParseProvider accepts the canonical names and their aliases. Empty means stub.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stub", "mock":
		return ProviderStub, nil
	case "ollama", "local":
		return ProviderLocal, nil
	case "openai", "hosted":
		return ProviderOpenAI, nil
	case "gemini":
		return ProviderGemini, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

type Call struct {
	System     string
	User       string
	Characters []Character
	Model      string
	APIKey     string
}

type Backend interface {
	Generate(ctx context.Context, c Call) (TurnBatch, error)
}

// StubBackend echoes the player text from the first character.
type StubBackend struct{}

func (StubBackend) Generate(_ context.Context, c Call) (TurnBatch, error) {
	speaker := NarratorName
	if len(c.Characters) > 0 && c.Characters[0].Name != "" {
		speaker = c.Characters[0].Name
	}
	return TurnBatch{Turns: []Turn{{
		Speaker: speaker,
		Text:    fmt.Sprintf("(%s) Heard: %s", speaker, truncate(c.User, 160)),
		Speak:   true,
		Emotion: "neutral",
	}}}, nil
}

// Generator is implemented by providers exposing a raw completion endpoint.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LocalBackend sends one combined prompt to a local model and repairs the
// output. Unparseable output degrades to a narrator turn.
type LocalBackend struct {
	Registry *ai.Registry
	Name     string
}

func (b LocalBackend) Generate(ctx context.Context, c Call) (TurnBatch, error) {
	p, err := b.Registry.Get(ctx, b.Name, ai.Options{Model: c.Model})
	if err != nil {
		return TurnBatch{}, err
	}

	var raw string
	if g, ok := p.(Generator); ok {
		raw, err = g.Generate(ctx, c.System+"\nUser: "+c.User)
	} else {
		raw, err = p.Chat(ctx, []ai.Message{
			{Role: ai.RoleSystem, Content: c.System},
			{Role: ai.RoleUser, Content: c.User},
		})
	}
	if err != nil {
		return TurnBatch{}, err
	}

	if batch, ok := ExtractTurns(raw); ok {
		return batch, nil
	}
	return NarratorFallback(raw), nil
}

// HostedBackend expects the endpoint to follow the JSON instruction; anything
// else is an error.
type HostedBackend struct {
	Registry *ai.Registry
	Name     string
}

func (b HostedBackend) Generate(ctx context.Context, c Call) (TurnBatch, error) {
	p, err := b.Registry.Get(ctx, b.Name, ai.Options{Model: c.Model, APIKey: c.APIKey, JSON: true})
	if err != nil {
		return TurnBatch{}, err
	}
	txt, err := p.Chat(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: c.System + "\nReturn only the JSON requested; no extra text."},
		{Role: ai.RoleUser, Content: c.User},
	})
	if err != nil {
		return TurnBatch{}, err
	}
	if strings.TrimSpace(txt) == "" {
		return TurnBatch{}, &MalformedOutputError{Backend: b.Name, Err: errors.New("empty content")}
	}
	batch, err := DecodeTurnBatch(StripFences(txt))
	if err != nil {
		return TurnBatch{}, &MalformedOutputError{Backend: b.Name, Snippet: truncate(txt, 160), Err: err}
	}
	return batch, nil
}

// Request is one generation: the roster, player identity and context that go
// into the system prompt, plus backend selection.
type Request struct {
	Provider       Provider
	Model          string
	APIKey         string
	Characters     []Character
	PlayerText     string
	Mature         bool
	ExtraContext   string
	PlayerLabel    string
	PlayerActingAs []string
	PlayerAliases  []string
	NarrativeTime  time.Time
}

type Router struct {
	backends map[Provider]Backend
}

func NewRouter(reg *ai.Registry) *Router {
	return &Router{backends: map[Provider]Backend{
		ProviderStub:   StubBackend{},
		ProviderLocal:  LocalBackend{Registry: reg, Name: "ollama"},
		ProviderOpenAI: HostedBackend{Registry: reg, Name: "openai"},
		ProviderGemini: HostedBackend{Registry: reg, Name: "gemini"},
	}}
}

func (r *Router) Generate(ctx context.Context, req Request) (TurnBatch, error) {
	b, ok := r.backends[req.Provider]
	if !ok {
		return TurnBatch{}, fmt.Errorf("no backend for provider %q", req.Provider)
	}
	system := BuildSystemPrompt(PromptInput{
		Characters:     req.Characters,
		Mature:         req.Mature,
		NarrativeTime:  req.NarrativeTime,
		ExtraContext:   req.ExtraContext,
		PlayerLabel:    req.PlayerLabel,
		PlayerActingAs: req.PlayerActingAs,
		PlayerAliases:  req.PlayerAliases,
	})
	return b.Generate(ctx, Call{
		System:     system,
		User:       req.PlayerText,
		Characters: req.Characters,
		Model:      req.Model,
		APIKey:     req.APIKey,
	})
}
