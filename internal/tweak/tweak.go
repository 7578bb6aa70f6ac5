// Package tweak is a keyword heuristic that allows, rewrites, suggests, or
// blocks player input before it reaches a model. It is not a policy model.
package tweak

import (
	"regexp"
	"strings"
)

type Mode string

const (
	ModeOff     Mode = "off"
	ModeSuggest Mode = "suggest"
	ModeAuto    Mode = "auto"
)

// ParseMode maps free text onto a mode; unknown values mean off.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSuggest:
		return ModeSuggest
	case ModeAuto:
		return ModeAuto
	default:
		return ModeOff
	}
}

type Action string

const (
	ActionAllow   Action = "allow"
	ActionSuggest Action = "suggest"
	ActionRewrite Action = "rewrite"
	ActionBlock   Action = "block"
)

// Context describes the characters a line may refer to. A nil age is unknown.
type Context struct {
	Ages   map[string]*int
	Mature bool
}

type Result struct {
	Action     Action `json:"action"`
	Text       string `json:"text,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Note       string `json:"note,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

const adultClause = " (All characters involved are adults, 18 or older.)"

var (
	reMinor       = regexp.MustCompile(`(?i)\b(minor|under\s*age|underage|child|children|kid|teen|preteen)s?\b`)
	reSexualMinor = regexp.MustCompile(`(?i)\b(sex|sexual|porn|nsfw|explicit|nude)`)
	reSexual      = regexp.MustCompile(`(?i)\b(sex|sexual|porn|nsfw|explicit|nude|naked|erotic)\b`)
	reHarm        = regexp.MustCompile(`(?i)\b(murder|kill|assassinate|bomb|explosive|terror|poison|meth|cocaine|heroin)\b`)
	reHowTo       = regexp.MustCompile(`(?i)\s*\b(how\s+to|step[\s-]+by[\s-]+step|instructions?\s+(?:for|on|to)|recipe\s+for|tutorial\s+(?:for|on))\b`)
)

// Apply runs the rules in order; the first match wins.
func Apply(input string, mode Mode, tc Context) Result {
	text := strings.TrimSpace(input)

	// Either order: "a child in an explicit scene" and "an explicit scene with a child".
	if reMinor.MatchString(text) && reSexualMinor.MatchString(text) {
		return Result{Action: ActionBlock, Reason: "Sexual content involving minors is prohibited."}
	}

	if reSexual.MatchString(text) {
		unknown := len(tc.Ages) == 0
		for _, age := range tc.Ages {
			if age == nil {
				unknown = true
				continue
			}
			if *age < 18 {
				return Result{Action: ActionBlock, Reason: "Sexual content involving a character under 18 is prohibited."}
			}
		}
		if unknown {
			switch mode {
			case ModeAuto:
				return Result{Action: ActionRewrite, Text: text + adultClause, Note: "Added adult clarification; some character ages are unknown."}
			case ModeSuggest:
				return Result{Action: ActionSuggest, Text: text, Suggestion: "Some character ages are unknown. State that everyone involved is an adult, or set ages on the characters."}
			}
		}
		return Result{Action: ActionAllow, Text: text}
	}

	if reHarm.MatchString(text) && reHowTo.MatchString(text) {
		switch mode {
		case ModeAuto:
			rewrite := strings.TrimSpace(reHowTo.ReplaceAllString(text, ""))
			return Result{Action: ActionRewrite, Text: rewrite, Note: "Removed request for step-by-step harmful instructions."}
		case ModeSuggest:
			suggestion := "Consider reframing as a scene beat rather than instructions (e.g. \"the villain sets the trap\" or \"we gather evidence\")."
			if !tc.Mature {
				suggestion += " Keep it PG-13."
			}
			return Result{Action: ActionSuggest, Text: text, Suggestion: suggestion}
		}
	}

	return Result{Action: ActionAllow, Text: text}
}
