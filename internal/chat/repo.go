package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Characters

func (r *Repo) CreateCharacter(ctx context.Context, c *Character) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetCharacter(ctx context.Context, id string) (*Character, error) {
	var c Character
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCharacterByName returns the oldest character with that exact name.
func (r *Repo) GetCharacterByName(ctx context.Context, name string) (*Character, error) {
	var c Character
	if err := r.db.WithContext(ctx).
		Where("name = ?", name).
		Order("created_at ASC").
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) ListCharacters(ctx context.Context) ([]Character, error) {
	var out []Character
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) SaveCharacter(ctx context.Context, c *Character) error {
	return r.db.WithContext(ctx).Save(c).Error
}

// DeleteCharacter removes the row together with its memories, timeline
// events and session control entries.
func (r *Repo) DeleteCharacter(ctx context.Context, c *Character) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearHistory(tx, c); err != nil {
			return err
		}
		if err := tx.Delete(&SessionControl{}, "character_id = ?", c.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&Character{}, "id = ?", c.ID).Error
	})
}

// ResetCharacter saves c and clears its memories and timeline in one
// transaction. History recorded under previousName is cleared too.
func (r *Repo) ResetCharacter(ctx context.Context, c *Character, previousName string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearHistory(tx, c, previousName); err != nil {
			return err
		}
		return tx.Save(c).Error
	})
}

func clearHistory(tx *gorm.DB, c *Character, extraNames ...string) error {
	names := append([]string{c.Name}, extraNames...)
	if err := tx.Delete(&Memory{}, "character_id IN ?", names).Error; err != nil {
		return err
	}
	owners := append([]string{c.ID}, names...)
	return tx.Delete(&TimelineEvent{}, "scope = ? AND owner_id IN ?", TimelineCharacter, owners).Error
}

// Sessions

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSessionBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) EndSession(ctx context.Context, sessionID string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Update("ended_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SaveCadence stores the context cadence counters for a session.
func (r *Repo) SaveCadence(ctx context.Context, sessionID string, playerTurns, sinceContext int) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"player_turns":        playerTurns,
			"turns_since_context": sinceContext,
		}).Error
}

func (r *Repo) SetControl(ctx context.Context, c *SessionControl) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(c).Error
}

func (r *Repo) ListControlled(ctx context.Context, sessionID, controller string) ([]SessionControl, error) {
	var out []SessionControl
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND controller = ?", sessionID, controller).
		Order("character_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Turns

func (r *Repo) InsertTurn(ctx context.Context, t *Turn) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// ListTurns returns turns in DESC id order (newest -> oldest).
func (r *Repo) ListTurns(ctx context.Context, sessionID string, limit int, beforeID uint64) ([]Turn, error) {
	q := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit)

	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var turns []Turn
	if err := q.Find(&turns).Error; err != nil {
		return nil, err
	}
	return turns, nil
}

// Memories

func (r *Repo) InsertMemory(ctx context.Context, m *Memory) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMemories returns the newest memories for a character name.
func (r *Repo) ListMemories(ctx context.Context, characterName string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 200
	}
	var out []Memory
	if err := r.db.WithContext(ctx).
		Where("character_id = ?", characterName).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Scene state, timeline, snapshots

func (r *Repo) LatestSceneState(ctx context.Context, sessionID string) (*SceneState, error) {
	var s SceneState
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) InsertSceneState(ctx context.Context, s *SceneState) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) InsertTimelineEvent(ctx context.Context, e *TimelineEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *Repo) ListTimelineEvents(ctx context.Context, scope, ownerID string) ([]TimelineEvent, error) {
	q := r.db.WithContext(ctx).Where("scope = ?", scope)
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	var out []TimelineEvent
	if err := q.Order("occurred_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) InsertSnapshot(ctx context.Context, s *Snapshot) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// Job CRUD
func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// UpdateJobStatusRunning claims a queued job. It reports false when another
// consumer already holds it.
func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Updates(map[string]any{
			"status":   JobRunning,
			"attempts": gorm.Expr("attempts + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

// RequeueJob puts a running job back to queued so a retry can claim it.
func (r *Repo) RequeueJob(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": JobQueued,
			"error":  errMsg,
		}).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, result string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": JobSucceeded,
			"result": result,
			"error":  nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": JobFailed,
			"error":  errMsg,
			"result": nil,
		}).Error
}

func (r *Repo) GetJobByIdempotencyKey(ctx context.Context, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting tries to create a job, but if idempotency_key already exists,
// it returns the existing job instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetJobByIdempotencyKey(ctx, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}

	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
