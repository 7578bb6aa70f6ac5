package convo

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/suPer8Hu/rpg-chat/internal/ai"
	"github.com/suPer8Hu/rpg-chat/internal/chat"
	"github.com/suPer8Hu/rpg-chat/internal/commands"
	"github.com/suPer8Hu/rpg-chat/internal/docstore"
	"github.com/suPer8Hu/rpg-chat/internal/llm"
)

// excerptBytes is how much transcript tail goes into profile and update docs.
const excerptBytes = 2000

var (
	reSceneTime = regexp.MustCompile(`(?i)time\s*:\s*([0-9]{4}(?:-[0-9]{2}(?:-[0-9]{2})?)?)`)
	reSceneYear = regexp.MustCompile(`(?i)year\s*:\s*([0-9]{4})`)
)

// applyCommands runs the side effects of /scene, /addcharacter and
// /charupdate. Failures are logged and the turn continues.
func (o *Orchestrator) applyCommands(ctx context.Context, req Request, sid string, parsed commands.Parsed) {
	for _, c := range parsed.Commands {
		switch c.Kind {
		case commands.KindScene:
			o.bestEffort(sid, "scene", o.applyScene(ctx, sid, c.Text))
		case commands.KindAddChar:
			o.bestEffort(sid, "addcharacter", o.addCharacter(ctx, req, sid, c))
		case commands.KindCharUpdate:
			o.bestEffort(sid, "charupdate", o.charUpdate(ctx, req, sid, c))
		}
	}
}

// SceneTime extracts "time: YYYY[-MM[-DD]]" or "year: YYYY" from a scene note.
func SceneTime(note string) (string, bool) {
	if m := reSceneTime.FindStringSubmatch(note); m != nil {
		return m[1], true
	}
	if m := reSceneYear.FindStringSubmatch(note); m != nil {
		return m[1] + "-01-01", true
	}
	return "", false
}

func (o *Orchestrator) applyScene(ctx context.Context, sid, note string) error {
	o.note(sid, "system: Scene note: "+note)
	if err := o.repo.InsertTimelineEvent(ctx, &chat.TimelineEvent{
		ID:         uuid.NewString(),
		Scope:      chat.TimelineGlobal,
		OccurredAt: o.now(),
		Title:      "Scene note",
		Summary:    note,
		Sources:    map[string]any{"session_id": sid},
	}); err != nil {
		return err
	}

	prev, err := o.repo.LatestSceneState(ctx, sid)
	if err != nil {
		return err
	}
	next := map[string]any{
		"locations":    []string{},
		"participants": []string{},
		"time":         o.now().UTC().Format(time.RFC3339Nano),
	}
	if prev != nil && prev.State != nil {
		next = make(map[string]any, len(prev.State)+1)
		for k, v := range prev.State {
			next[k] = v
		}
	}
	next["note"] = note
	if t, ok := SceneTime(note); ok {
		next["time"] = t
	}
	return o.repo.InsertSceneState(ctx, &chat.SceneState{SessionID: sid, State: next})
}

func (o *Orchestrator) addCharacter(ctx context.Context, req Request, sid string, c commands.Command) error {
	ch, err := o.repo.GetCharacterByName(ctx, c.Name)
	if isNotFound(err) {
		ch, err = o.svc.CreateCharacter(ctx, chat.CharacterInput{Name: c.Name})
	}
	if err != nil {
		return err
	}

	excerpt, err := o.transcript.Tail(sid, excerptBytes)
	o.bestEffort(sid, "transcript tail", err)

	md := fmt.Sprintf("# %s Profile\n", c.Name)
	if c.Note != "" {
		md += "\n" + c.Note + "\n"
	}
	if txt := o.draftProfile(ctx, req.APIKey, c.Name, c.Note, excerpt); txt != "" {
		md = txt
	}
	if _, err := o.docs.WriteDoc(ch.ID, docstore.ProfileDocName(c.Name), md); err != nil {
		return err
	}
	o.note(sid, fmt.Sprintf("system: Added character %s.", c.Name))
	return nil
}

// draftProfile asks the hosted JSON helper for a short markdown profile. It
// returns "" when no hosted backend is usable.
func (o *Orchestrator) draftProfile(ctx context.Context, apiKey, name, note, excerpt string) string {
	if o.registry == nil || !o.registry.Has("openai") {
		return ""
	}
	p, err := o.registry.Get(ctx, "openai", ai.Options{APIKey: apiKey, JSON: true})
	if err != nil {
		return ""
	}
	user := fmt.Sprintf("Name: %s\n", name)
	if note != "" {
		user += "Note: " + note + "\n"
	}
	user += "Excerpt:\n" + excerpt
	out, err := p.Chat(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: `Write a concise Markdown profile (<= 300 words) for the named character based on the conversation excerpt. Respond with a single JSON object {"text":"..."}.`},
		{Role: ai.RoleUser, Content: user},
	})
	if err != nil {
		o.log.Debug("profile draft skipped", zap.String("name", name), zap.Error(err))
		return ""
	}
	var v struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(llm.StripFences(out)), &v); err != nil {
		return ""
	}
	return strings.TrimSpace(v.Text)
}

func (o *Orchestrator) charUpdate(ctx context.Context, req Request, sid string, c commands.Command) error {
	target := c.Name
	if target == "" && len(req.Characters) > 0 {
		target = req.Characters[0].Name
	}
	if target == "" {
		return nil
	}
	ch, err := o.repo.GetCharacterByName(ctx, target)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	excerpt, err := o.transcript.Tail(sid, excerptBytes)
	o.bestEffort(sid, "transcript tail", err)
	if _, err := o.docs.AppendUpdate(ch.ID, c.Note, excerpt, o.now()); err != nil {
		return err
	}
	o.note(sid, fmt.Sprintf("system: Appended update for %s.", target))
	return nil
}
