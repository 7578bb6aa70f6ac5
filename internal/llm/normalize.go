package llm

import "strings"

func isPlaceholder(s string) bool {
	if s == "" {
		return true
	}
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		return true
	}
	return strings.EqualFold(s, "one of the characters")
}

// NormalizeSpeaker maps a model-chosen speaker onto a known name. Placeholders
// and unknown names become the first known name. With no known names every
// speaker becomes the narrator.
func NormalizeSpeaker(raw string, names []string) string {
	s := strings.TrimSpace(raw)
	if len(names) == 0 {
		return NarratorName
	}
	if isPlaceholder(s) {
		return names[0]
	}
	for _, n := range names {
		if n == s {
			return n
		}
	}
	for _, n := range names {
		if strings.EqualFold(n, s) {
			return n
		}
	}
	return names[0]
}

func NormalizeTurns(b TurnBatch, names []string) TurnBatch {
	out := TurnBatch{Turns: make([]Turn, len(b.Turns))}
	for i, t := range b.Turns {
		t.Speaker = NormalizeSpeaker(t.Speaker, names)
		out.Turns[i] = t
	}
	return out
}
