package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares markers across service instances.
// Keys are <namespace>:handoff:<session>:completed and ...:id.
type RedisStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

type RedisOption func(*RedisStore)

// WithNamespace prefixes every key.
func WithNamespace(ns string) RedisOption {
	return func(s *RedisStore) {
		s.namespace = ns
	}
}

func NewRedisStore(client *redis.Client, ttl time.Duration, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		namespace: "relawan",
		ttl:       ttl,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) keys(session string) (completed, id string) {
	base := s.namespace + ":handoff:" + session
	return base + completedSuffix, base + idSuffix
}

// Set writes both entries in one transaction.
func (s *RedisStore) Set(ctx context.Context, session string, m Marker) error {
	completedKey, idKey := s.keys(session)
	flag := "0"
	if m.Completed {
		flag = "1"
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, completedKey, flag, s.ttl)
		if m.RegistrationID != "" {
			pipe.Set(ctx, idKey, m.RegistrationID, s.ttl)
		} else {
			pipe.Del(ctx, idKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set handoff marker: %w", err)
	}
	return nil
}

func (s *RedisStore) Peek(ctx context.Context, session string) (Marker, error) {
	completedKey, idKey := s.keys(session)
	vals, err := s.client.MGet(ctx, completedKey, idKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Marker{}, fmt.Errorf("read handoff marker: %w", err)
	}

	var m Marker
	if len(vals) == 2 {
		if flag, ok := vals[0].(string); ok {
			m.Completed = flag == "1"
		}
		if id, ok := vals[1].(string); ok {
			m.RegistrationID = id
		}
	}
	return m, nil
}

func (s *RedisStore) Clear(ctx context.Context, session string) error {
	completedKey, idKey := s.keys(session)
	if err := s.client.Del(ctx, completedKey, idKey).Err(); err != nil {
		return fmt.Errorf("clear handoff marker: %w", err)
	}
	return nil
}
