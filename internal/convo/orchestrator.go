// Package convo runs one player turn: parse, tweak, assemble context,
// generate, normalize, persist.
package convo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/suPer8Hu/rpg-chat/internal/ai"
	"github.com/suPer8Hu/rpg-chat/internal/apperr"
	"github.com/suPer8Hu/rpg-chat/internal/chat"
	"github.com/suPer8Hu/rpg-chat/internal/commands"
	"github.com/suPer8Hu/rpg-chat/internal/docstore"
	"github.com/suPer8Hu/rpg-chat/internal/facts"
	"github.com/suPer8Hu/rpg-chat/internal/llm"
	"github.com/suPer8Hu/rpg-chat/internal/prompt"
	"github.com/suPer8Hu/rpg-chat/internal/reviewer"
	"github.com/suPer8Hu/rpg-chat/internal/transcript"
	"github.com/suPer8Hu/rpg-chat/internal/tweak"
	"github.com/suPer8Hu/rpg-chat/internal/usage"
)

type Options struct {
	TurnTimeout     time.Duration
	DefaultProvider string
	ReviewerModel   string
	// PlayerName and PlayerAliases describe the human when the session does not.
	PlayerName    string
	PlayerAliases []string
}

type Deps struct {
	Chat       *chat.Service
	Facts      *facts.Store
	Docs       *docstore.Store
	Transcript *transcript.Writer
	Usage      *usage.Recorder
	Generator  TurnGenerator
	Reviewer   *reviewer.Selector
	Cache      reviewer.Cache
	// Registry is optional; it backs the /addcharacter profile helper.
	Registry *ai.Registry
	Log      *zap.Logger
}

type Orchestrator struct {
	svc        *chat.Service
	repo       *chat.Repo
	facts      *facts.Store
	docs       *docstore.Store
	transcript *transcript.Writer
	usage      *usage.Recorder
	gen        TurnGenerator
	reviewer   *reviewer.Selector
	cache      reviewer.Cache
	registry   *ai.Registry
	opts       Options
	log        *zap.Logger
	now        func() time.Time
}

func New(d Deps, opts Options) *Orchestrator {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Cache == nil {
		d.Cache = reviewer.NewMemoryCache(reviewer.CacheTTL)
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 90 * time.Second
	}
	return &Orchestrator{
		svc:        d.Chat,
		repo:       d.Chat.Repo(),
		facts:      d.Facts,
		docs:       d.Docs,
		transcript: d.Transcript,
		usage:      d.Usage,
		gen:        d.Generator,
		reviewer:   d.Reviewer,
		cache:      d.Cache,
		registry:   d.Registry,
		opts:       opts,
		log:        d.Log,
		now:        time.Now,
	}
}

// bestEffort logs a failed enrichment. These never abort a turn.
func (o *Orchestrator) bestEffort(sessionID, what string, err error) {
	if err != nil {
		o.log.Warn("best-effort step failed", zap.String("session_id", sessionID), zap.String("step", what), zap.Error(err))
	}
}

func (o *Orchestrator) note(sessionID, line string) {
	o.bestEffort(sessionID, "transcript", o.transcript.Append(sessionID, line))
}

func (o *Orchestrator) record(sessionID, model, role, text string) {
	o.bestEffort(sessionID, "usage", o.usage.Record(sessionID, model, role, text))
}

// Run processes one player message.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	if req.Debug {
		speaker := llm.NarratorName
		if len(req.Characters) > 0 && req.Characters[0].Name != "" {
			speaker = req.Characters[0].Name
		}
		return &Response{Turns: []Turn{{Speaker: speaker, Text: "(debug) echo: " + req.PlayerText}}}, nil
	}

	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.PlayerText) == "" || len(req.Characters) == 0 {
		return nil, apperr.Validation("session_id, player_text and characters are required")
	}
	sess, err := o.svc.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	provider, err := llm.ParseProvider(firstNonEmpty(req.Provider, sess.Provider, o.opts.DefaultProvider))
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	model := firstNonEmpty(req.Model, sess.Model)
	sid := sess.SessionID

	label, actingAs := o.playerIdentity(ctx, sess)

	parsed := commands.Parse(req.PlayerText)
	playerText := parsed.Remainder
	if playerText == "" {
		playerText = strings.TrimSpace(req.PlayerText)
	}

	playerTurn := &chat.Turn{
		SessionID: sid,
		Role:      chat.RolePlayer,
		Speaker:   playerSpeaker,
		Text:      playerText,
		Meta:      map[string]any{"commands": parsed.Commands},
	}
	if err := o.repo.InsertTurn(ctx, playerTurn); err != nil {
		return nil, apperr.Internal("persist player turn", err)
	}

	roster, controlled := o.filterControlled(ctx, sid, sess, req.Characters)
	chars, ages := o.enrich(ctx, roster)

	tw := tweak.Apply(playerText, tweak.ParseMode(req.TweakMode), tweak.Context{Ages: ages, Mature: req.Mature})
	switch tw.Action {
	case tweak.ActionBlock:
		o.note(sid, "player: "+playerText)
		o.note(sid, "system: Blocked input: "+tw.Reason)
		return &Response{
			Blocked: true,
			Turns:   []Turn{{Speaker: SystemSpeaker, Text: "Blocked: " + tw.Reason}},
		}, nil
	case tweak.ActionRewrite:
		playerText = tw.Text
		o.note(sid, "system: "+tw.Note)
		o.note(sid, "system: Tweaked input -> "+playerText)
	}

	o.note(sid, "player: "+playerText)
	o.record(sid, string(provider), chat.RolePlayer, playerText)
	if actingAs != "" {
		o.bestEffort(sid, "player memory", o.remember(ctx, sid, actingAs, playerText, map[string]any{"sessionId": sid, "by": "player"}))
	}

	o.applyCommands(ctx, req, sid, parsed)

	cad := prompt.Cadence{PlayerTurns: sess.PlayerTurns, SinceContext: sess.TurnsSinceContext}
	reseed, _ := parsed.Reseed()
	gate := cad.Step(reseed)
	o.bestEffort(sid, "cadence", o.repo.SaveCadence(ctx, sid, cad.PlayerTurns, cad.SinceContext))
	if gate.Invalidate {
		o.bestEffort(sid, "reviewer cache", o.cache.Invalidate(ctx, sid))
	}

	extra := o.assemble(ctx, req, sid, playerText, gate, chars, parsed, controlled)
	narrative := o.narrativeTime(ctx, sid)

	var actingList []string
	if actingAs != "" {
		actingList = []string{actingAs}
	}

	gctx, cancel := context.WithTimeout(ctx, o.opts.TurnTimeout)
	batch, err := o.gen.Generate(gctx, llm.Request{
		Provider:       provider,
		Model:          model,
		APIKey:         req.APIKey,
		Characters:     chars,
		PlayerText:     playerText,
		Mature:         req.Mature,
		ExtraContext:   extra,
		PlayerLabel:    label,
		PlayerActingAs: actingList,
		PlayerAliases:  o.opts.PlayerAliases,
		NarrativeTime:  narrative,
	})
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			o.note(sid, fmt.Sprintf("system: Error calling model: timed out after %s", o.opts.TurnTimeout))
			return nil, apperr.Timeout("model call timed out", err)
		}
		o.note(sid, "system: Error calling model: "+err.Error())
		return nil, apperr.Provider("model call failed", err)
	}

	names := llm.Names(chars)
	batch = llm.NormalizeTurns(batch, names)
	if len(batch.Turns) == 0 {
		o.note(sid, "system: Model returned no turns; using fallback.")
		speaker := llm.NarratorName
		if len(names) > 0 {
			speaker = names[0]
		}
		batch.Turns = []llm.Turn{{Speaker: speaker, Text: ellipsis, Speak: false}}
	}

	out := make([]Turn, 0, len(batch.Turns)+1)
	if tw.Action == tweak.ActionSuggest && tw.Suggestion != "" {
		out = append(out, Turn{Speaker: SystemSpeaker, Text: tw.Suggestion})
	}
	npc := make([]Turn, 0, len(batch.Turns))
	for _, t := range batch.Turns {
		row := &chat.Turn{
			SessionID: sid,
			Role:      chat.RoleNPC,
			Speaker:   t.Speaker,
			Text:      t.Text,
			Meta:      map[string]any{"emotion": t.Emotion},
		}
		if err := o.repo.InsertTurn(ctx, row); err != nil {
			return nil, apperr.Internal("persist npc turn", err)
		}
		o.note(sid, t.Speaker+": "+t.Text)
		o.record(sid, string(provider), chat.RoleNPC, t.Text)
		npc = append(npc, Turn{Speaker: t.Speaker, Text: t.Text, Speak: t.Speak, Emotion: t.Emotion})
	}
	out = append(out, npc...)

	o.afterTurn(ctx, sid, playerTurn.ID, npc, req.Characters, provider)
	return &Response{Turns: out}, nil
}

// playerIdentity returns the label the model addresses and, when the player
// plays a stored character, that character's name.
func (o *Orchestrator) playerIdentity(ctx context.Context, sess *chat.Session) (label, actingAs string) {
	if sess.PlayerCharacterID != nil && *sess.PlayerCharacterID != "" {
		if c, err := o.repo.GetCharacter(ctx, *sess.PlayerCharacterID); err == nil {
			label = c.Name
			if sess.PlayerName != nil && *sess.PlayerName != "" {
				label = *sess.PlayerName
			}
			return label, c.Name
		}
	}
	if sess.PlayerName != nil && *sess.PlayerName != "" {
		return *sess.PlayerName, ""
	}
	return o.opts.PlayerName, ""
}

// filterControlled drops player-controlled characters from the roster and
// returns the controlled names.
func (o *Orchestrator) filterControlled(ctx context.Context, sid string, sess *chat.Session, roster []CharacterRef) ([]CharacterRef, []string) {
	ids := map[string]struct{}{}
	var order []string
	controls, err := o.repo.ListControlled(ctx, sid, chat.ControllerPlayer)
	o.bestEffort(sid, "list controls", err)
	for _, c := range controls {
		if _, ok := ids[c.CharacterID]; !ok {
			ids[c.CharacterID] = struct{}{}
			order = append(order, c.CharacterID)
		}
	}
	if sess.PlayerCharacterID != nil && *sess.PlayerCharacterID != "" {
		if _, ok := ids[*sess.PlayerCharacterID]; !ok {
			ids[*sess.PlayerCharacterID] = struct{}{}
			order = append(order, *sess.PlayerCharacterID)
		}
	}
	if len(ids) == 0 {
		return roster, nil
	}

	var names []string
	nameSet := map[string]struct{}{}
	for _, id := range order {
		if c, err := o.repo.GetCharacter(ctx, id); err == nil {
			names = append(names, c.Name)
			nameSet[c.Name] = struct{}{}
		}
	}

	kept := make([]CharacterRef, 0, len(roster))
	for _, c := range roster {
		_, byID := ids[c.ID]
		_, byName := nameSet[c.Name]
		if (c.ID != "" && byID) || byName {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) != len(roster) {
		o.note(sid, fmt.Sprintf("system: Player controls: %s. These will not be generated by the model.", strings.Join(names, ", ")))
	}
	return kept, names
}

// enrich joins each roster entry with its stored row for ids and ages.
// Unknown characters keep a nil age.
func (o *Orchestrator) enrich(ctx context.Context, roster []CharacterRef) ([]llm.Character, map[string]*int) {
	out := make([]llm.Character, 0, len(roster))
	ages := make(map[string]*int, len(roster))
	for _, r := range roster {
		c := llm.Character{ID: r.ID, Name: r.Name, SystemPrompt: r.SystemPrompt}
		if row, err := o.repo.GetCharacterByName(ctx, r.Name); err == nil {
			c.Age, c.BirthYear = row.Age, row.BirthYear
			if c.ID == "" {
				c.ID = row.ID
			}
		}
		if strings.TrimSpace(c.SystemPrompt) == "" {
			c.SystemPrompt = fmt.Sprintf("You are %s.", c.Name)
		}
		ages[c.Name] = c.Age
		out = append(out, c)
	}
	return out, ages
}

func (o *Orchestrator) remember(ctx context.Context, sid, name, text string, sources map[string]any) error {
	return o.repo.InsertMemory(ctx, &chat.Memory{
		ID:          uuid.NewString(),
		CharacterID: name,
		SessionID:   sid,
		Text:        "Observation: " + clip(text, 200),
		Scope:       chat.MemoryScope{AppliesTo: []string{name}},
		Sources:     sources,
	})
}

func (o *Orchestrator) narrativeTime(ctx context.Context, sid string) time.Time {
	st, err := o.repo.LatestSceneState(ctx, sid)
	if err != nil || st == nil {
		o.bestEffort(sid, "scene state", err)
		return time.Time{}
	}
	s, _ := st.State["time"].(string)
	return parseNarrativeTime(s)
}

func parseNarrativeTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// afterTurn writes the derived records for a finished turn. All best effort.
func (o *Orchestrator) afterTurn(ctx context.Context, sid string, playerTurnID uint64, npc []Turn, roster []CharacterRef, provider llm.Provider) {
	for _, t := range npc {
		o.bestEffort(sid, "npc memory", o.remember(ctx, sid, t.Speaker, t.Text, map[string]any{"sessionId": sid}))
		o.bestEffort(sid, "timeline event", o.repo.InsertTimelineEvent(ctx, &chat.TimelineEvent{
			ID:           uuid.NewString(),
			Scope:        chat.TimelineCharacter,
			OwnerID:      t.Speaker,
			OccurredAt:   o.now(),
			Title:        "Said something",
			Summary:      clip(t.Text, 120),
			Participants: []string{t.Speaker, playerSpeaker},
			Sources:      map[string]any{"session_id": sid},
		}))
	}

	o.bestEffort(sid, "snapshot", o.repo.InsertSnapshot(ctx, &chat.Snapshot{
		ID:        uuid.NewString(),
		SessionID: sid,
		TurnID:    playerTurnID,
		Payload:   map[string]any{"characters": roster, "provider": string(provider)},
	}))
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
