// Package prompt builds the extra-context block appended to the scene system
// prompt and decides how often the heavier parts of it are repeated.
package prompt

import (
	"fmt"
	"strings"

	"github.com/suPer8Hu/rpg-chat/internal/facts"
	"github.com/suPer8Hu/rpg-chat/internal/retrieval"
)

const (
	BriefLimit    = 600
	ProfileLimit  = 1800
	SnippetLimit  = 500
	MaxSnippets   = 5
	brevityLine   = "Guidelines: Keep replies brief (1-3 short sentences). Avoid long paragraphs."
	briefEllipsis = " …"
)

type Brief struct {
	Name  string
	Short string
}

// Directed is a line the player addressed to one character with /<Name>.
type Directed struct {
	Name string
	Text string
}

type Input struct {
	Gate Gate

	Guidelines string
	Briefs     []Brief
	Profile    string

	// Facts is nil when the primary character has no record.
	Facts      *facts.Facts
	Snippets   []retrieval.Scored
	StyleShort bool

	DirectorNotes []string
	Directed      []Directed
	// DoNotGenerate lists player-controlled characters when more than one is.
	DoNotGenerate []string
}

// Assemble joins the present blocks with blank lines in a fixed order:
// guidelines, briefs, profile excerpt, facts and snippets, director notes,
// directed lines, and the player-controlled exclusion.
func Assemble(in Input) string {
	var blocks []string
	add := func(s string) {
		if strings.TrimSpace(s) != "" {
			blocks = append(blocks, s)
		}
	}

	if in.Gate.Prompts {
		if g := strings.TrimSpace(in.Guidelines); g != "" {
			add("Guidelines (apply to all NPCs):\n" + in.Guidelines)
		}
		add(renderBriefs(in.Briefs))
	}
	if in.Gate.Profile && strings.TrimSpace(in.Profile) != "" {
		add("Profile Excerpt (for initial grounding):\n" + clip(in.Profile, ProfileLimit))
	}
	add(renderRAG(in.Facts, in.Snippets, in.StyleShort))

	if len(in.DirectorNotes) > 0 {
		var b strings.Builder
		b.WriteString("Director notes:")
		for _, n := range in.DirectorNotes {
			b.WriteString("\n- " + n)
		}
		add(b.String())
	}
	if len(in.Directed) > 0 {
		var b strings.Builder
		b.WriteString("Directed lines (the player addresses these characters directly):")
		for _, d := range in.Directed {
			fmt.Fprintf(&b, "\n- To %s: %s", d.Name, d.Text)
		}
		add(b.String())
	}
	if len(in.DoNotGenerate) > 1 {
		add(fmt.Sprintf("Do not generate turns for: %s (player-controlled).", strings.Join(in.DoNotGenerate, ", ")))
	}
	return strings.Join(blocks, "\n\n")
}

func renderBriefs(briefs []Brief) string {
	var lines []string
	for _, b := range briefs {
		body := strings.TrimSpace(b.Short)
		if body == "" {
			continue
		}
		if len([]rune(body)) > BriefLimit {
			body = clip(body, BriefLimit) + briefEllipsis
		}
		lines = append(lines, fmt.Sprintf("- %s:\n%s", b.Name, body))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Character Briefs (short prompts):\n" + strings.Join(lines, "\n\n")
}

func renderRAG(f *facts.Facts, snippets []retrieval.Scored, styleShort bool) string {
	var parts []string
	if f != nil {
		parts = append(parts, f.Line())
	}
	if len(snippets) > MaxSnippets {
		snippets = snippets[:MaxSnippets]
	}
	snips := make([]string, 0, len(snippets))
	for _, d := range snippets {
		snips = append(snips, fmt.Sprintf("- [%s] %s\n%s", d.Source, d.Title, clip(d.Text, SnippetLimit)))
	}
	if len(snips) > 0 {
		parts = append(parts, strings.Join(snips, "\n\n"))
	}
	if len(parts) == 0 {
		return ""
	}
	if styleShort || (f != nil && f.ReviewerHints.PreferBrief) {
		parts = append(parts, brevityLine)
	}
	return strings.Join(parts, "\n")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
