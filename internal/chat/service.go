package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/suPer8Hu/rpg-chat/internal/apperr"
	"github.com/suPer8Hu/rpg-chat/internal/common"
	"github.com/suPer8Hu/rpg-chat/internal/facts"
)

// Docs is the per-character document bundle on disk.
type Docs interface {
	InitBundle(characterID, name, systemPrompt string) error
	Texts(characterID string) ([]string, error)
}

// PlayerDefaults apply when a session request names no player.
type PlayerDefaults struct {
	Name          string
	DefaultPlayer string
}

type Service struct {
	repo     *Repo
	facts    *facts.Store
	docs     Docs
	defaults PlayerDefaults
	log      *zap.Logger
	now      func() time.Time
}

func NewService(repo *Repo, fs *facts.Store, docs Docs, defaults PlayerDefaults, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, facts: fs, docs: docs, defaults: defaults, log: log, now: time.Now}
}

func (s *Service) Repo() *Repo { return s.repo }

const (
	defaultProvider = "stub"
	defaultTitle    = "Scene"
)

func NewSessionID() (string, error) {
	return common.NewULID()
}

func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what+" not found", err)
	}
	return apperr.Internal("load "+what, err)
}

// Characters

type CharacterInput struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Age          *int   `json:"age"`
	BirthYear    *int   `json:"birth_year"`
	Voice        string `json:"voice"`
	Provider     string `json:"provider"`
	AvatarURI    string `json:"avatar_uri"`
	ProfileURI   string `json:"profile_uri"`
}

// CharacterPatch leaves nil fields untouched.
type CharacterPatch struct {
	Name         *string `json:"name"`
	SystemPrompt *string `json:"system_prompt"`
	Age          *int    `json:"age"`
	BirthYear    *int    `json:"birth_year"`
	Voice        *string `json:"voice"`
	Provider     *string `json:"provider"`
	AvatarURI    *string `json:"avatar_uri"`
	ProfileURI   *string `json:"profile_uri"`
}

func (s *Service) CreateCharacter(ctx context.Context, in CharacterInput) (*Character, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name required")
	}
	c := &Character{
		ID:           uuid.NewString(),
		Name:         name,
		SystemPrompt: in.SystemPrompt,
		Age:          in.Age,
		BirthYear:    in.BirthYear,
		Voice:        in.Voice,
		Provider:     in.Provider,
		AvatarURI:    in.AvatarURI,
		ProfileURI:   in.ProfileURI,
	}
	base := c.snapshot()
	c.Base = &base
	if err := s.repo.CreateCharacter(ctx, c); err != nil {
		return nil, apperr.Internal("create character", err)
	}
	s.initBundle(c)
	return c, nil
}

func (s *Service) initBundle(c *Character) {
	if s.docs == nil {
		return
	}
	if err := s.docs.InitBundle(c.ID, c.Name, c.SystemPrompt); err != nil {
		s.log.Warn("init character bundle", zap.String("character_id", c.ID), zap.Error(err))
	}
}

func (s *Service) ListCharacters(ctx context.Context) ([]Character, error) {
	out, err := s.repo.ListCharacters(ctx)
	if err != nil {
		return nil, apperr.Internal("list characters", err)
	}
	return out, nil
}

func (s *Service) GetCharacter(ctx context.Context, id string) (*Character, error) {
	c, err := s.repo.GetCharacter(ctx, id)
	if err != nil {
		return nil, notFound("character", err)
	}
	return c, nil
}

func (s *Service) PatchCharacter(ctx context.Context, id string, p CharacterPatch) (*Character, error) {
	c, err := s.GetCharacter(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, apperr.Validation("name cannot be empty")
		}
		c.Name = name
	}
	if p.SystemPrompt != nil {
		c.SystemPrompt = *p.SystemPrompt
	}
	if p.Age != nil {
		c.Age = p.Age
	}
	if p.BirthYear != nil {
		c.BirthYear = p.BirthYear
	}
	if p.Voice != nil {
		c.Voice = *p.Voice
	}
	if p.Provider != nil {
		c.Provider = *p.Provider
	}
	if p.AvatarURI != nil {
		c.AvatarURI = *p.AvatarURI
	}
	if p.ProfileURI != nil {
		c.ProfileURI = *p.ProfileURI
	}
	if err := s.repo.SaveCharacter(ctx, c); err != nil {
		return nil, apperr.Internal("update character", err)
	}
	return c, nil
}

// ResetCharacter restores the creation snapshot and forgets the character's
// memories and timeline.
func (s *Service) ResetCharacter(ctx context.Context, id string) (*Character, error) {
	c, err := s.GetCharacter(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := c.Name
	if c.Base != nil {
		b := *c.Base
		c.Name, c.SystemPrompt, c.Age, c.BirthYear = b.Name, b.SystemPrompt, b.Age, b.BirthYear
		c.Voice, c.Provider, c.AvatarURI, c.ProfileURI = b.Voice, b.Provider, b.AvatarURI, b.ProfileURI
	}
	if err := s.repo.ResetCharacter(ctx, c, previous); err != nil {
		return nil, apperr.Internal("reset character", err)
	}
	return c, nil
}

func (s *Service) CloneCharacter(ctx context.Context, id, name string) (*Character, error) {
	src, err := s.GetCharacter(ctx, id)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = src.Name + " Copy"
	}
	return s.CreateCharacter(ctx, CharacterInput{
		Name:         name,
		SystemPrompt: src.SystemPrompt,
		Age:          src.Age,
		BirthYear:    src.BirthYear,
		Voice:        src.Voice,
		Provider:     src.Provider,
		AvatarURI:    src.AvatarURI,
		ProfileURI:   src.ProfileURI,
	})
}

func (s *Service) DeleteCharacter(ctx context.Context, id string) error {
	c, err := s.GetCharacter(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCharacter(ctx, c); err != nil {
		return apperr.Internal("delete character", err)
	}
	if s.facts != nil {
		if err := s.facts.Delete(ctx, id); err != nil {
			s.log.Warn("delete character facts", zap.String("character_id", id), zap.Error(err))
		}
	}
	return nil
}

// Facts

func (s *Service) GetFacts(ctx context.Context, id string) (*facts.Facts, error) {
	if _, err := s.GetCharacter(ctx, id); err != nil {
		return nil, err
	}
	f, err := s.facts.Load(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load facts", err)
	}
	if f == nil {
		return nil, apperr.NotFound("no facts for character", nil)
	}
	return f, nil
}

func (s *Service) SaveFacts(ctx context.Context, id string, f facts.Facts) (*facts.Facts, error) {
	c, err := s.GetCharacter(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(f.Name) == "" {
		f.Name = c.Name
	}
	if f.Provenance.Reason == "" {
		f.Provenance = facts.Provenance{GeneratedAt: s.now().UTC(), Reason: "manual"}
	}
	if err := s.facts.Save(ctx, id, f); err != nil {
		return nil, apperr.Internal("save facts", err)
	}
	return &f, nil
}

// ExtractFacts runs the rules extractor over the system prompt and the
// character's documents and stores the result.
func (s *Service) ExtractFacts(ctx context.Context, id string) (*facts.Facts, error) {
	c, err := s.GetCharacter(ctx, id)
	if err != nil {
		return nil, err
	}
	texts := []string{c.SystemPrompt}
	if s.docs != nil {
		more, err := s.docs.Texts(id)
		if err != nil {
			s.log.Warn("read character docs", zap.String("character_id", id), zap.Error(err))
		}
		texts = append(texts, more...)
	}
	f := facts.ExtractRules(c.Name, s.now(), texts...)
	if err := s.facts.Save(ctx, id, f); err != nil {
		return nil, apperr.Internal("save facts", err)
	}
	return &f, nil
}

// Sessions

type SessionInput struct {
	Title        string   `json:"title"`
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	Participants []string `json:"participants"`
	// Player is "char:<id|name>", "new:<display name>" or a character name.
	Player              string `json:"player"`
	UserName            string `json:"user_name"`
	ConfirmCreatePlayer bool   `json:"confirm_create_player"`
}

func (s *Service) CreateSession(ctx context.Context, in SessionInput) (*Session, error) {
	sid, err := NewSessionID()
	if err != nil {
		return nil, apperr.Internal("session id", err)
	}

	playerName, playerCharID, err := s.resolvePlayer(ctx, in)
	if err != nil {
		return nil, err
	}

	participants := make([]string, 0, len(in.Participants))
	for _, p := range in.Participants {
		if p = strings.TrimSpace(p); p != "" {
			participants = append(participants, p)
		}
	}

	sess := &Session{
		SessionID:         sid,
		Title:             or(in.Title, defaultTitle),
		Provider:          or(in.Provider, defaultProvider),
		Model:             in.Model,
		Participants:      participants,
		PlayerName:        playerName,
		PlayerCharacterID: playerCharID,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, apperr.Internal("create session", err)
	}

	if playerCharID != nil {
		if err := s.repo.SetControl(ctx, &SessionControl{SessionID: sid, CharacterID: *playerCharID, Controller: ControllerPlayer}); err != nil {
			s.log.Warn("mark player control", zap.String("session_id", sid), zap.Error(err))
		}
	}
	if len(participants) > 0 && s.facts != nil {
		s.ensureFacts(ctx, participants[0])
	}
	return sess, nil
}

func (s *Service) resolvePlayer(ctx context.Context, in SessionInput) (*string, *string, error) {
	choice := strings.TrimSpace(in.Player)
	if choice == "" {
		choice = s.defaults.DefaultPlayer
	}
	userName := or(strings.TrimSpace(in.UserName), s.defaults.Name)
	lower := strings.ToLower(choice)

	switch {
	case strings.HasPrefix(lower, "char:"):
		key := strings.TrimSpace(choice[5:])
		c, err := s.repo.GetCharacter(ctx, key)
		if err != nil {
			c, err = s.repo.GetCharacterByName(ctx, key)
		}
		if err != nil {
			// unknown character: no player identity
			return nil, nil, nil
		}
		return &c.Name, &c.ID, nil

	case strings.HasPrefix(lower, "new:"):
		name := or(strings.TrimSpace(choice[4:]), or(userName, "Player"))
		return &name, nil, nil

	case choice != "":
		c, err := s.repo.GetCharacterByName(ctx, choice)
		if err == nil {
			return &c.Name, &c.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.Internal("load player character", err)
		}
		if !in.ConfirmCreatePlayer {
			return nil, nil, apperr.Conflict(fmt.Sprintf("confirm_new_character: %s", choice))
		}
		c, cerr := s.CreateCharacter(ctx, CharacterInput{Name: choice})
		if cerr != nil {
			return nil, nil, cerr
		}
		return &c.Name, &c.ID, nil
	}

	if userName != "" {
		return &userName, nil, nil
	}
	return nil, nil, nil
}

func (s *Service) ensureFacts(ctx context.Context, characterID string) {
	existing, err := s.facts.Load(ctx, characterID)
	if err != nil || existing != nil {
		return
	}
	if _, err := s.ExtractFacts(ctx, characterID); err != nil && !apperr.Is(err, apperr.KindNotFound) {
		s.log.Warn("auto-extract facts", zap.String("character_id", characterID), zap.Error(err))
	}
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, notFound("session", err)
	}
	return sess, nil
}

func (s *Service) SetController(ctx context.Context, sessionID, characterID, controller string) error {
	if characterID == "" || (controller != ControllerPlayer && controller != ControllerLLM) {
		return apperr.Validation("character_id and controller (player|llm) required")
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}
	if err := s.repo.SetControl(ctx, &SessionControl{SessionID: sessionID, CharacterID: characterID, Controller: controller}); err != nil {
		return apperr.Internal("set controller", err)
	}
	return nil
}

func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	if err := s.repo.EndSession(ctx, sessionID, s.now()); err != nil {
		return notFound("session", err)
	}
	return nil
}

func (s *Service) ListTurns(ctx context.Context, sessionID string, limit int, beforeID uint64) ([]Turn, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	turns, err := s.repo.ListTurns(ctx, sessionID, limit, beforeID)
	if err != nil {
		return nil, apperr.Internal("list turns", err)
	}
	return turns, nil
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
