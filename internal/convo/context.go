package convo

import (
	"context"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/suPer8Hu/rpg-chat/internal/apperr"
	"github.com/suPer8Hu/rpg-chat/internal/commands"
	"github.com/suPer8Hu/rpg-chat/internal/facts"
	"github.com/suPer8Hu/rpg-chat/internal/llm"
	"github.com/suPer8Hu/rpg-chat/internal/prompt"
	"github.com/suPer8Hu/rpg-chat/internal/retrieval"
	"github.com/suPer8Hu/rpg-chat/internal/reviewer"
)

const (
	ragCandidates = 5
	memoryLimit   = 200
)

// assemble builds the extra-context block. Prompt files, profile, facts and
// snippets all come from the first enriched character.
func (o *Orchestrator) assemble(ctx context.Context, req Request, sid, playerText string, gate prompt.Gate, chars []llm.Character, parsed commands.Parsed, controlled []string) string {
	in := prompt.Input{Gate: gate, StyleShort: req.StyleShort}

	for _, c := range parsed.Of(commands.KindLLM) {
		if c.Text != "" {
			in.DirectorNotes = append(in.DirectorNotes, c.Text)
		}
	}
	roster := make([]string, 0, len(req.Characters))
	for _, c := range req.Characters {
		roster = append(roster, c.Name)
	}
	for _, c := range parsed.Of(commands.KindNPC) {
		in.Directed = append(in.Directed, prompt.Directed{Name: ResolveName(c.Name, roster), Text: c.Text})
	}
	in.DoNotGenerate = controlled

	if len(chars) == 0 {
		return prompt.Assemble(in)
	}
	primary := chars[0]

	if gate.Prompts {
		in.Guidelines = o.docs.GenericGuidelines(primary.ID)
		for _, c := range chars {
			in.Briefs = append(in.Briefs, prompt.Brief{Name: c.Name, Short: o.docs.ShortPrompt(c.ID)})
		}
	}
	if gate.Profile && primary.ID != "" {
		in.Profile, _ = o.docs.Profile(primary.ID)
	}

	var f *facts.Facts
	if primary.ID != "" && o.facts != nil {
		loaded, err := o.facts.Load(ctx, primary.ID)
		o.bestEffort(sid, "load facts", err)
		f = loaded
	}

	if req.UseRAG && primary.ID != "" {
		if f == nil {
			f = &facts.Facts{Name: primary.Name}
		}
		in.Snippets = o.retrieve(ctx, req, sid, playerText, gate, primary)
	}
	in.Facts = f
	return prompt.Assemble(in)
}

// retrieve scores the primary character's documents and memories against the
// player text and keeps the reviewer's choice, reusing a cached choice while
// the cadence has not invalidated it.
func (o *Orchestrator) retrieve(ctx context.Context, req Request, sid, query string, gate prompt.Gate, primary llm.Character) []retrieval.Scored {
	scored := retrieval.TopK(retrieval.Score(query, o.corpus(ctx, sid, primary.ID, primary.Name)), ragCandidates)
	if len(scored) == 0 {
		return nil
	}

	var selected []string
	if !gate.Invalidate {
		ids, ok, err := o.cache.Get(ctx, sid)
		o.bestEffort(sid, "reviewer cache get", err)
		if ok {
			selected = ids
		}
	}
	if selected == nil {
		cands := make([]reviewer.Candidate, 0, len(scored))
		for _, d := range scored {
			cands = append(cands, reviewer.Candidate{ID: d.ID, Text: d.Text, Score: d.Score, OccurredAt: d.OccurredAt})
		}
		var sel reviewer.Selection
		if o.reviewer != nil {
			sel = o.reviewer.Select(ctx, reviewer.Request{
				CharacterID: primary.ID,
				Provider:    req.ReviewerProvider,
				Model:       firstNonEmpty(req.ReviewerModel, o.opts.ReviewerModel),
				APIKey:      req.APIKey,
				Candidates:  cands,
				StyleShort:  req.StyleShort,
			})
		}
		selected = sel.Selected
		if len(selected) == 0 {
			for _, d := range scored[:min(reviewer.DefaultKeep, len(scored))] {
				selected = append(selected, d.ID)
			}
		}
		o.bestEffort(sid, "reviewer cache set", o.cache.Set(ctx, sid, selected))
	}

	keep := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		keep[id] = struct{}{}
	}
	out := make([]retrieval.Scored, 0, len(selected))
	for _, d := range scored {
		if _, ok := keep[d.ID]; ok {
			out = append(out, d)
		}
	}
	return out
}

// corpus collects a character's documents and its newest memories.
func (o *Orchestrator) corpus(ctx context.Context, sid, characterID, name string) []retrieval.Doc {
	docs, err := o.docs.RAGDocs(characterID)
	o.bestEffort(sid, "rag docs", err)

	mems, err := o.repo.ListMemories(ctx, name, memoryLimit)
	o.bestEffort(sid, "rag memories", err)
	for i, m := range mems {
		at := m.CreatedAt.UnixMilli()
		docs = append(docs, retrieval.Doc{
			ID:         fmt.Sprintf("mem:%d", i),
			Source:     "memory",
			Title:      "memory",
			Text:       m.Text,
			OccurredAt: &at,
		})
	}
	return docs
}

// MaxSearchResults caps Search.
const MaxSearchResults = 20

// Search scores a stored character's corpus against query and returns the
// best k results.
func (o *Orchestrator) Search(ctx context.Context, characterID, query string, k int) ([]retrieval.Scored, error) {
	if strings.TrimSpace(characterID) == "" || strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("character_id and query required")
	}
	c, err := o.svc.GetCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = ragCandidates
	}
	k = min(k, MaxSearchResults)
	return retrieval.TopK(retrieval.Score(query, o.corpus(ctx, "", c.ID, c.Name)), k), nil
}

// ResolveName maps a /<Name> directive onto the roster: exact, then
// case-insensitive, then the best fuzzy match. Underscores stand for spaces.
// Unmatched names pass through.
func ResolveName(name string, roster []string) string {
	name = strings.ReplaceAll(name, "_", " ")
	for _, n := range roster {
		if n == name {
			return n
		}
	}
	for _, n := range roster {
		if strings.EqualFold(n, name) {
			return n
		}
	}
	if matches := fuzzy.Find(name, roster); len(matches) > 0 {
		return roster[matches[0].Index]
	}
	return name
}
