package llm

import (
	"fmt"
	"strings"
	"time"
)

type Character struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Age          *int   `json:"age,omitempty"`
	BirthYear    *int   `json:"birth_year,omitempty"`
}

// PromptInput is everything the scene system prompt is built from.
type PromptInput struct {
	Characters     []Character
	Mature         bool
	NarrativeTime  time.Time
	ExtraContext   string
	PlayerLabel    string
	PlayerActingAs []string
	PlayerAliases  []string
}

// AgeAt returns the explicit age, else the age derived from the birth year in
// the year of at (now when zero).
func AgeAt(c Character, at time.Time) (int, bool) {
	if c.Age != nil {
		return *c.Age, true
	}
	if c.BirthYear == nil || *c.BirthYear == 0 {
		return 0, false
	}
	if at.IsZero() {
		at = time.Now()
	}
	return max(0, at.UTC().Year()-*c.BirthYear), true
}

func Names(chars []Character) []string {
	out := make([]string, 0, len(chars))
	for _, c := range chars {
		out = append(out, c.Name)
	}
	return out
}

func BuildSystemPrompt(in PromptInput) string {
	listed := make([]string, 0, len(in.Characters))
	quoted := make([]string, 0, len(in.Characters))
	for _, c := range in.Characters {
		if a, ok := AgeAt(c, in.NarrativeTime); ok {
			listed = append(listed, fmt.Sprintf("%s (%d)", c.Name, a))
		} else {
			listed = append(listed, c.Name)
		}
		quoted = append(quoted, fmt.Sprintf("%q", c.Name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are running a scene. Characters: %s.\n", strings.Join(listed, ", "))
	b.WriteString(`Output ONLY strict JSON of shape {"turns":[{"speaker":"NAME","text":"...","speak":true,"emotion":"neutral"}]}. `)
	fmt.Fprintf(&b, `The value of "speaker" MUST be exactly one of: [%s]. `, strings.Join(quoted, ", "))
	b.WriteString("Never output placeholders like <one> or <one of the characters>; use a real name verbatim. ")
	b.WriteString("Keep each turn to at most 2 sentences.\n")

	if in.Mature {
		b.WriteString("You may use mature language if in-character. Do not include sexual content involving minors. Avoid illegal content.")
	} else {
		b.WriteString("Keep language PG-13; avoid explicit sexual content.")
	}

	if in.PlayerLabel != "" {
		switch len(in.PlayerActingAs) {
		case 0:
			fmt.Fprintf(&b, "\nThe human player is %s. Address them as appropriate. Do not generate a turn for the player.", in.PlayerLabel)
		default:
			acting := strings.Join(in.PlayerActingAs, ", ")
			fmt.Fprintf(&b, "\nThe human player is %s, speaking as %s. Do not generate turns for %s; only other characters reply.", in.PlayerLabel, acting, acting)
		}
	} else if len(in.PlayerActingAs) > 0 {
		fmt.Fprintf(&b, "\nDo not generate turns for %s; they are controlled by the player.", strings.Join(in.PlayerActingAs, ", "))
	}
	if len(in.PlayerAliases) > 0 {
		fmt.Fprintf(&b, "\nPlayer may be referred to as: %s.", strings.Join(in.PlayerAliases, ", "))
	}
	if in.ExtraContext != "" {
		b.WriteString("\nContext (use if helpful):\n")
		b.WriteString(in.ExtraContext)
	}
	return b.String()
}
