// Package reviewer down-selects retrieval candidates, either heuristically or
// by asking a small model for a JSON verdict.
package reviewer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/suPer8Hu/rpg-chat/internal/ai"
	"github.com/suPer8Hu/rpg-chat/internal/llm"
)

const (
	MaxCandidates = 8
	DefaultKeep   = 3
)

const defaultPrompt = `You are a retrieval reviewer. Read the candidate snippets and return JSON {"selected":[ids],"notes":"...","ask_clarify":true|false}. Keep selected small (<=3).`

type Candidate struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Score      float64 `json:"score,omitempty"`
	OccurredAt *int64  `json:"occurred_at,omitempty"`
}

type Selection struct {
	Selected   []string `json:"selected"`
	Notes      string   `json:"notes"`
	AskClarify bool     `json:"ask_clarify"`
}

type Request struct {
	CharacterID string
	// Provider is "stub" (or empty), "ollama", "openai" or "gemini".
	Provider   string
	Model      string
	APIKey     string
	Candidates []Candidate
	StyleShort bool
}

// PromptSource returns a character-specific reviewer prompt, or "".
type PromptSource interface {
	ReviewerPrompt(characterID string) string
}

type Selector struct {
	registry *ai.Registry
	prompts  PromptSource
	log      *zap.Logger
}

func NewSelector(reg *ai.Registry, prompts PromptSource, log *zap.Logger) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Selector{registry: reg, prompts: prompts, log: log}
}

func heuristic(top []Candidate, notes string) Selection {
	n := min(DefaultKeep, len(top))
	ids := make([]string, 0, n)
	for _, c := range top[:n] {
		ids = append(ids, c.ID)
	}
	return Selection{Selected: ids, Notes: notes}
}

// Select never fails: backend or parse errors fall back to the top candidates.
func (s *Selector) Select(ctx context.Context, req Request) Selection {
	if len(req.Candidates) == 0 {
		return Selection{Selected: []string{}, Notes: "no candidates", AskClarify: true}
	}
	top := req.Candidates[:min(MaxCandidates, len(req.Candidates))]

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" || provider == "stub" || provider == "mock" || s.registry == nil {
		return heuristic(top, "heuristic")
	}

	sel, err := s.ask(ctx, provider, req, top)
	if err != nil {
		s.log.Warn("reviewer fallback", zap.String("provider", provider), zap.Error(err))
		return heuristic(top, "fallback heuristic")
	}
	return sel
}

func (s *Selector) ask(ctx context.Context, provider string, req Request, top []Candidate) (Selection, error) {
	system := defaultPrompt
	if s.prompts != nil && req.CharacterID != "" {
		if p := strings.TrimSpace(s.prompts.ReviewerPrompt(req.CharacterID)); p != "" {
			system = p
		}
	}
	system += " Always respond with a single JSON object. Do not include explanations."

	var user strings.Builder
	user.WriteString("Candidates (id: text):\n")
	for i, c := range top {
		if i > 0 {
			user.WriteString("\n")
		}
		fmt.Fprintf(&user, "- %s: %s", c.ID, clip(c.Text, 600))
	}
	if req.StyleShort {
		user.WriteString("\nGuidelines: prefer candidates that support short, concrete replies.")
	}

	p, err := s.registry.Get(ctx, provider, ai.Options{Model: req.Model, APIKey: req.APIKey, JSON: true})
	if err != nil {
		return Selection{}, err
	}
	out, err := p.Chat(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: system},
		{Role: ai.RoleUser, Content: user.String()},
	})
	if err != nil {
		return Selection{}, err
	}
	return parseSelection(out, top)
}

// parseSelection decodes the verdict and drops ids that were not offered.
func parseSelection(raw string, top []Candidate) (Selection, error) {
	var sel Selection
	if err := json.Unmarshal([]byte(llm.StripFences(llm.StripThink(raw))), &sel); err != nil {
		return Selection{}, fmt.Errorf("decode reviewer output: %w", err)
	}
	offered := make(map[string]struct{}, len(top))
	for _, c := range top {
		offered[c.ID] = struct{}{}
	}
	kept := make([]string, 0, len(sel.Selected))
	for _, id := range sel.Selected {
		if _, ok := offered[id]; ok {
			kept = append(kept, id)
		}
	}
	sel.Selected = kept
	return sel, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
