package facts

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Record is the persisted form; the whole Facts value is replaced on save.
type Record struct {
	CharacterID string    `gorm:"primaryKey;size:36"`
	Data        Facts     `gorm:"serializer:json;type:text;not null"`
	UpdatedAt   time.Time
}

func (Record) TableName() string { return "character_facts" }

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Load returns nil, nil when the character has no record.
func (s *Store) Load(ctx context.Context, characterID string) (*Facts, error) {
	var r Record
	err := s.db.WithContext(ctx).First(&r, "character_id = ?", characterID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r.Data, nil
}

func (s *Store) Save(ctx context.Context, characterID string, f Facts) error {
	return s.db.WithContext(ctx).Save(&Record{CharacterID: characterID, Data: f}).Error
}

func (s *Store) Delete(ctx context.Context, characterID string) error {
	return s.db.WithContext(ctx).Delete(&Record{}, "character_id = ?", characterID).Error
}
