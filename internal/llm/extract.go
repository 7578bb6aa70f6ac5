package llm

import "strings"

// MaxExtractBytes bounds the balanced-brace scan, which is quadratic in the
// number of opening braces.
const MaxExtractBytes = 64 << 10

// ExtractTurns recovers a turns object from noisy local-model output. It
// returns false when nothing in the text decodes.
func ExtractTurns(raw string) (TurnBatch, bool) {
	text := StripFences(StripThink(raw))
	if b, err := DecodeTurnBatch(text); err == nil {
		return b, true
	}

	if len(text) > MaxExtractBytes {
		text = text[:MaxExtractBytes]
	}
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end := matchBrace(text, start)
		if end < 0 {
			continue
		}
		span := text[start : end+1]
		if !strings.Contains(span, `"turns"`) {
			continue
		}
		if b, err := DecodeTurnBatch(span); err == nil {
			return b, true
		}
	}
	return TurnBatch{}, false
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside JSON strings are ignored.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// NarratorFallback wraps unparseable output as a single unspoken narrator turn.
func NarratorFallback(raw string) TurnBatch {
	text := strings.TrimSpace(raw)
	if text == "" {
		text = "…"
	}
	return TurnBatch{Turns: []Turn{{Speaker: NarratorName, Text: text, Speak: false, Emotion: "neutral"}}}
}
