package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Lobby/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store with one JSON string key per client.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore builds a Store backed by Redis. Prefix is optional (e.g., "lobby").
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	p := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if p == "" {
		p = "lobby"
	}
	return &RedisStore{rdb: rdb, prefix: p}
}

func (s *RedisStore) key(id domain.ClientID) string {
	return fmt.Sprintf("%s:handoff:%s", s.prefix, id)
}

func (s *RedisStore) Save(ctx context.Context, id domain.ClientID, p domain.SessionParams, ttl time.Duration) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal handoff: %w", err)
	}
	return s.rdb.Set(ctx, s.key(id), b, ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, id domain.ClientID) (domain.SessionParams, error) {
	b, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SessionParams{}, ErrNotFound
	}
	if err != nil {
		return domain.SessionParams{}, err
	}
	var p domain.SessionParams
	if err := json.Unmarshal(b, &p); err != nil {
		return domain.SessionParams{}, fmt.Errorf("unmarshal handoff: %w", err)
	}
	return p, nil
}

func (s *RedisStore) Delete(ctx context.Context, id domain.ClientID) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}
