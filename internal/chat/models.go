package chat

import "time"

const (
	RolePlayer = "player"
	RoleNPC    = "npc"
	RoleSystem = "system"

	ControllerPlayer = "player"
	ControllerLLM    = "llm"
)

// CharacterBase is the snapshot a character is reset to.
type CharacterBase struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Age          *int   `json:"age,omitempty"`
	BirthYear    *int   `json:"birth_year,omitempty"`
	Voice        string `json:"voice,omitempty"`
	Provider     string `json:"provider,omitempty"`
	AvatarURI    string `json:"avatar_uri,omitempty"`
	ProfileURI   string `json:"profile_uri,omitempty"`
}

type Character struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Name         string         `gorm:"type:varchar(128);index;not null" json:"name"`
	SystemPrompt string         `gorm:"type:text" json:"system_prompt"`
	Age          *int           `json:"age"`
	BirthYear    *int           `json:"birth_year"`
	Voice        string         `gorm:"type:varchar(64)" json:"voice,omitempty"`
	Provider     string         `gorm:"type:varchar(32)" json:"provider,omitempty"`
	AvatarURI    string         `gorm:"type:varchar(512)" json:"avatar_uri,omitempty"`
	ProfileURI   string         `gorm:"type:varchar(512)" json:"profile_uri,omitempty"`
	Base         *CharacterBase `gorm:"serializer:json;type:text" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (c Character) snapshot() CharacterBase {
	return CharacterBase{
		Name:         c.Name,
		SystemPrompt: c.SystemPrompt,
		Age:          c.Age,
		BirthYear:    c.BirthYear,
		Voice:        c.Voice,
		Provider:     c.Provider,
		AvatarURI:    c.AvatarURI,
		ProfileURI:   c.ProfileURI,
	}
}

type Session struct {
	ID                uint64     `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID         string     `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`
	Title             string     `gorm:"type:varchar(128)" json:"title"`
	Provider          string     `gorm:"type:varchar(32);not null" json:"provider"`
	Model             string     `gorm:"type:varchar(64)" json:"model"`
	Participants      []string   `gorm:"serializer:json;type:text" json:"participants"`
	PlayerName        *string    `gorm:"type:varchar(128)" json:"player_name"`
	PlayerCharacterID *string    `gorm:"size:36" json:"player_character_id"`
	PlayerTurns       int        `gorm:"not null;default:0" json:"player_turns"`
	TurnsSinceContext int        `gorm:"not null;default:0" json:"-"`
	EndedAt           *time.Time `json:"ended_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

type SessionControl struct {
	SessionID   string `gorm:"primaryKey;type:varchar(26)" json:"session_id"`
	CharacterID string `gorm:"primaryKey;size:36" json:"character_id"`
	Controller  string `gorm:"type:varchar(8);not null" json:"controller"`
}

type Turn struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string         `gorm:"type:varchar(26);index:idx_turn_session_id,priority:1;not null" json:"session_id"`
	Role      string         `gorm:"type:varchar(16);index;not null" json:"role"`
	Speaker   string         `gorm:"type:varchar(128);not null" json:"speaker"`
	Text      string         `gorm:"type:text;not null" json:"text"`
	Meta      map[string]any `gorm:"serializer:json;type:text" json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (Turn) TableName() string { return "chat_turns" }

type MemoryScope struct {
	AppliesTo []string `json:"applies_to"`
}

// Memory is keyed by character name so it survives id churn across clones.
type Memory struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	CharacterID string         `gorm:"type:varchar(128);index;not null" json:"character_id"`
	SessionID   string         `gorm:"type:varchar(26);index" json:"session_id"`
	Text        string         `gorm:"type:text;not null" json:"text"`
	Scope       MemoryScope    `gorm:"serializer:json;type:text" json:"scope"`
	Sources     map[string]any `gorm:"serializer:json;type:text" json:"sources"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SceneState rows are append-only; the newest row per session is current.
type SceneState struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string         `gorm:"type:varchar(26);index;not null" json:"session_id"`
	State     map[string]any `gorm:"serializer:json;type:text" json:"state"`
	CreatedAt time.Time      `json:"created_at"`
}

const (
	TimelineGlobal    = "global"
	TimelineCharacter = "character"
)

type TimelineEvent struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Scope        string         `gorm:"type:varchar(16);index;not null" json:"scope"`
	OwnerID      string         `gorm:"type:varchar(128);index" json:"owner_id"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Title        string         `gorm:"type:varchar(256)" json:"title"`
	Summary      string         `gorm:"type:text" json:"summary"`
	Participants []string       `gorm:"serializer:json;type:text" json:"participants"`
	Sources      map[string]any `gorm:"serializer:json;type:text" json:"sources"`
	CreatedAt    time.Time      `json:"created_at"`
}

type Snapshot struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	SessionID string         `gorm:"type:varchar(26);index;not null" json:"session_id"`
	TurnID    uint64         `gorm:"index" json:"turn_id"`
	Payload   map[string]any `gorm:"serializer:json;type:text" json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// Models lists every table this package owns, for AutoMigrate.
func Models() []any {
	return []any{
		&Character{}, &Session{}, &SessionControl{}, &Turn{}, &Memory{},
		&SceneState{}, &TimelineEvent{}, &Snapshot{}, &Job{},
	}
}
