package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func reviewerKey(sessionID string) string {
	return "reviewer:selected:" + sessionID
}

// Get returns the cached reviewer selection for a session. Expiry is left to redis.
func (s *Store) Get(ctx context.Context, sessionID string) ([]string, bool, error) {
	raw, err := s.rdb.Get(ctx, reviewerKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	ids, err := decodeIDs(raw)
	if err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

func (s *Store) Set(ctx context.Context, sessionID string, ids []string) error {
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, reviewerKey(sessionID), b, s.ttl).Err()
}

func (s *Store) Invalidate(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, reviewerKey(sessionID)).Err()
}

func decodeIDs(raw []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
