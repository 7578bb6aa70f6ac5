package convo

import (
	"context"

	"github.com/suPer8Hu/rpg-chat/internal/llm"
)

// CharacterRef is a roster entry as sent by the client.
type CharacterRef struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

type Request struct {
	SessionID  string         `json:"session_id"`
	PlayerText string         `json:"player_text"`
	Characters []CharacterRef `json:"characters"`

	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	// APIKey comes from the X-Provider-Key header and is never stored.
	APIKey string `json:"-"`

	Mature     bool   `json:"mature,omitempty"`
	TweakMode  string `json:"tweak_mode,omitempty"`
	UseRAG     bool   `json:"use_rag,omitempty"`
	StyleShort bool   `json:"style_short,omitempty"`

	ReviewerProvider string `json:"reviewer_provider,omitempty"`
	ReviewerModel    string `json:"reviewer_model,omitempty"`

	Debug bool `json:"-"`
}

type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Speak   bool   `json:"speak"`
	Emotion string `json:"emotion,omitempty"`
}

type Response struct {
	Turns   []Turn `json:"turns"`
	Blocked bool   `json:"blocked,omitempty"`
}

// TurnGenerator is the provider router as seen by the orchestrator.
type TurnGenerator interface {
	Generate(ctx context.Context, req llm.Request) (llm.TurnBatch, error)
}

const (
	SystemSpeaker = "System"
	playerSpeaker = "player"
	ellipsis      = "…"
)
