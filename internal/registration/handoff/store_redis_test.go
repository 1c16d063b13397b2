//go:build integration

package handoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"relawan/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.store = NewRedisStore(s.redis.Client, time.Minute, WithNamespace("test"))
}

func (s *RedisStoreSuite) TestRoundTrip() {
	s.Require().NoError(s.store.Set(s.ctx, "sess", Marker{Completed: true, RegistrationID: "abc123"}))

	m, err := s.store.Peek(s.ctx, "sess")
	s.Require().NoError(err)
	s.Equal(Marker{Completed: true, RegistrationID: "abc123"}, m)

	flag, err := s.redis.Client.Get(s.ctx, "test:handoff:sess:completed").Result()
	s.Require().NoError(err)
	s.Equal("1", flag)

	ttl, err := s.redis.Client.TTL(s.ctx, "test:handoff:sess:id").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisStoreSuite) TestMissingMarkerIsZero() {
	m, err := s.store.Peek(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Equal(Marker{}, m)
}

func (s *RedisStoreSuite) TestScopeClearsBothEntries() {
	s.Require().NoError(NewWriter(s.store, "sess", nil).Complete(s.ctx, "abc123"))

	s.Require().NoError(Scope(s.ctx, s.store, "sess", nil, func(m Marker) error {
		s.Equal("abc123", m.RegistrationID)
		return nil
	}))

	n, err := s.redis.Client.Exists(s.ctx, "test:handoff:sess:completed", "test:handoff:sess:id").Result()
	s.Require().NoError(err)
	s.Zero(n)
}
