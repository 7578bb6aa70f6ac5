// Package llm builds the scene prompt, dispatches it to a stub, local or
// hosted backend, and decodes the reply into a TurnBatch.
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const NarratorName = "Narrator"

type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Speak   bool   `json:"speak"`
	Emotion string `json:"emotion,omitempty"`
}

type TurnBatch struct {
	Turns []Turn `json:"turns"`
}

// MalformedOutputError reports model output that is not a turns object.
type MalformedOutputError struct {
	Backend string
	Snippet string
	Err     error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s returned non-JSON content: %s", e.Backend, e.Snippet)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

var errNoTurns = errors.New("missing turns array")

type wireTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Speak   *bool  `json:"speak"`
	Emotion string `json:"emotion"`
}

type wireBatch struct {
	Turns *[]wireTurn `json:"turns"`
}

// DecodeTurnBatch parses s as a JSON object that must carry a turns array.
// A missing speak flag means the turn is spoken.
func DecodeTurnBatch(s string) (TurnBatch, error) {
	var w wireBatch
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return TurnBatch{}, err
	}
	if w.Turns == nil {
		return TurnBatch{}, errNoTurns
	}
	out := TurnBatch{Turns: make([]Turn, 0, len(*w.Turns))}
	for _, t := range *w.Turns {
		speak := true
		if t.Speak != nil {
			speak = *t.Speak
		}
		out.Turns = append(out.Turns, Turn{Speaker: t.Speaker, Text: t.Text, Speak: speak, Emotion: t.Emotion})
	}
	return out, nil
}

var (
	reThink      = regexp.MustCompile(`(?is)<think>.*?</think>`)
	reFenceOpen  = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \t]*\r?\n?")
	reFenceClose = regexp.MustCompile("\r?\n?```\\s*$")
)

func StripThink(s string) string {
	return reThink.ReplaceAllString(s, "")
}

func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = reFenceOpen.ReplaceAllString(s, "")
	s = reFenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
