// Package commands splits a player message into leading slash directives and
// the plain-text remainder.
package commands

import (
	"regexp"
	"strings"
)

type Kind string

const (
	KindLLM        Kind = "llm"
	KindScene      Kind = "scene"
	KindAddChar    Kind = "addchar"
	KindCharUpdate Kind = "charupdate"
	KindReseed     Kind = "reseed"
	KindNPC        Kind = "npc"
)

type ReseedTarget string

const (
	ReseedPrompts ReseedTarget = "prompts"
	ReseedProfile ReseedTarget = "profile"
	ReseedAll     ReseedTarget = "all"
)

// Command is one recognized directive. Which fields are set depends on Kind.
type Command struct {
	Kind   Kind         `json:"kind"`
	Text   string       `json:"text,omitempty"`
	Name   string       `json:"name,omitempty"`
	Note   string       `json:"note,omitempty"`
	Target ReseedTarget `json:"target,omitempty"`
}

type Parsed struct {
	Commands  []Command `json:"commands"`
	Remainder string    `json:"remainder"`
}

var (
	reLLM        = regexp.MustCompile(`(?i)^/LLM\b\s*(.*)$`)
	reScene      = regexp.MustCompile(`(?i)^/scene\b\s*(.*)$`)
	reAddChar    = regexp.MustCompile(`(?i)^/addcharacter\s+(\S.*?)(?:\s+-\s*(.*))?$`)
	reCharUpdate = regexp.MustCompile(`(?i)^/charupdate(?:\s+(\S.*?))?(?:\s+-\s*(.*))?$`)
	reReseed     = regexp.MustCompile(`(?i)^/(?:reseed|reread)(?:\s+(prompts|profile|all))?\s*$`)
	reReseedHead = regexp.MustCompile(`(?i)^/(?:reseed|reread)\b`)
	reKeyword    = regexp.MustCompile(`(?i)^/(?:addcharacter|charupdate)\b`)
	reNPC        = regexp.MustCompile(`^/([A-Za-z0-9_\-]+)\b\s*(.*)$`)
)

// Parse consumes consecutive command lines from the start of input. The first
// line that is not a recognized command ends parsing and, with everything after
// it, becomes the remainder.
func Parse(input string) Parsed {
	var cmds []Command
	rest := strings.TrimSpace(input)

	for strings.HasPrefix(rest, "/") {
		line, after := rest, ""
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			line, after = rest[:i], rest[i+1:]
		}
		line = strings.TrimSpace(line)
		after = strings.TrimSpace(after)

		cmd, ok := parseLine(line)
		if !ok {
			break
		}
		cmds = append(cmds, cmd)
		rest = after
	}

	return Parsed{Commands: cmds, Remainder: rest}
}

func parseLine(line string) (Command, bool) {
	if m := reLLM.FindStringSubmatch(line); m != nil {
		return Command{Kind: KindLLM, Text: strings.TrimSpace(m[1])}, true
	}
	if m := reScene.FindStringSubmatch(line); m != nil {
		return Command{Kind: KindScene, Text: strings.TrimSpace(m[1])}, true
	}
	if m := reAddChar.FindStringSubmatch(line); m != nil {
		return Command{Kind: KindAddChar, Name: strings.TrimSpace(m[1]), Note: strings.TrimSpace(m[2])}, true
	}
	if m := reCharUpdate.FindStringSubmatch(line); m != nil {
		return Command{Kind: KindCharUpdate, Name: strings.TrimSpace(m[1]), Note: strings.TrimSpace(m[2])}, true
	}
	if reReseedHead.MatchString(line) {
		target := ReseedAll
		if m := reReseed.FindStringSubmatch(line); m != nil && m[1] != "" {
			target = ReseedTarget(strings.ToLower(m[1]))
		}
		return Command{Kind: KindReseed, Target: target}, true
	}
	// a keyword that failed its own grammar is not a character name
	if reKeyword.MatchString(line) {
		return Command{}, false
	}
	if m := reNPC.FindStringSubmatch(line); m != nil {
		return Command{Kind: KindNPC, Name: m[1], Text: strings.TrimSpace(m[2])}, true
	}
	return Command{}, false
}

// Reseed returns the first reseed target, if any.
func (p Parsed) Reseed() (ReseedTarget, bool) {
	for _, c := range p.Commands {
		if c.Kind == KindReseed {
			return c.Target, true
		}
	}
	return "", false
}

// Of returns the commands of the given kind in input order.
func (p Parsed) Of(kind Kind) []Command {
	var out []Command
	for _, c := range p.Commands {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}
