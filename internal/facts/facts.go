// Package facts holds the structured per-character record (nicknames, age,
// reviewer hints) and a line-oriented rules extractor for it.
package facts

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type ReviewerHints struct {
	PreferBrief bool     `json:"prefer_brief,omitempty"`
	Tone        []string `json:"tone,omitempty"`
}

type Boundaries struct {
	PG13                  bool `json:"pg_13,omitempty"`
	DisallowMinorsContent bool `json:"disallow_minors_content,omitempty"`
}

type ProviderPref struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

type Provenance struct {
	GeneratedAt time.Time `json:"generated_at"`
	Reason      string    `json:"reason"`
	Sources     []string  `json:"sources,omitempty"`
}

type Facts struct {
	Name          string        `json:"name"`
	Nicknames     []string      `json:"nicknames,omitempty"`
	Aliases       []string      `json:"aliases,omitempty"`
	Age           *int          `json:"age,omitempty"`
	BirthYear     *int          `json:"birth_year,omitempty"`
	ReviewerHints ReviewerHints `json:"reviewer_hints"`
	Boundaries    Boundaries    `json:"boundaries"`
	ProviderPref  *ProviderPref `json:"provider_pref,omitempty"`
	StoryStart    string        `json:"story_start,omitempty"`
	Provenance    Provenance    `json:"provenance"`
}

// Line renders the one-line summary placed ahead of retrieval snippets.
func (f Facts) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Facts: name=%s", f.Name)
	if len(f.Nicknames) > 0 {
		fmt.Fprintf(&b, "; nicknames=%s", strings.Join(f.Nicknames, "/"))
	}
	if len(f.Aliases) > 0 {
		fmt.Fprintf(&b, "; aliases=%s", strings.Join(f.Aliases, "/"))
	}
	if f.Age != nil {
		fmt.Fprintf(&b, "; age=%d", *f.Age)
	}
	if f.BirthYear != nil {
		fmt.Fprintf(&b, "; birth_year=%d", *f.BirthYear)
	}
	if f.StoryStart != "" {
		fmt.Fprintf(&b, "; story_start=%s", f.StoryStart)
	}
	return b.String()
}

var (
	reAge       = regexp.MustCompile(`(?i)\bAge\s*:\s*(\d{1,3})\b`)
	reBirthYear = regexp.MustCompile(`(?i)\bBirth\s*Year\s*:\s*(\d{4})\b`)
	reNicknames = regexp.MustCompile(`(?i)\bNicknames?\s*:\s*(.+)$`)
	reAliases   = regexp.MustCompile(`(?i)\bAliases?\s*:\s*(.+)$`)
	reListSep   = regexp.MustCompile(`[;,]`)
)

// ExtractRules scans texts line by line for "Age:", "Birth Year:",
// "Nicknames:" and "Aliases:" keys. Later matches win.
func ExtractRules(name string, now time.Time, texts ...string) Facts {
	f := Facts{
		Name:          name,
		ReviewerHints: ReviewerHints{PreferBrief: true},
		Boundaries:    Boundaries{PG13: true, DisallowMinorsContent: true},
		StoryStart:    now.Format(time.DateOnly),
		Provenance:    Provenance{GeneratedAt: now.UTC(), Reason: "rules"},
	}
	for _, text := range texts {
		for _, ln := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
			if m := reAge.FindStringSubmatch(ln); m != nil {
				f.Age = atoi(m[1])
			}
			if m := reBirthYear.FindStringSubmatch(ln); m != nil {
				f.BirthYear = atoi(m[1])
			}
			if m := reNicknames.FindStringSubmatch(ln); m != nil {
				f.Nicknames = splitList(m[1])
			}
			if m := reAliases.FindStringSubmatch(ln); m != nil {
				f.Aliases = splitList(m[1])
			}
		}
	}
	return f
}

func splitList(s string) []string {
	var out []string
	for _, p := range reListSep.Split(s, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func atoi(s string) *int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return &n
}
