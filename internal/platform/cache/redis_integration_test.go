//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"catalog/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *RedisCache
	ctx   context.Context
}

func TestRedisCacheSuite(t *testing.T) {
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.cache = NewRedis(s.redis.Client, WithDefaultTTL(300*time.Second))
	s.ctx = context.Background()
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisCacheSuite) TestRoundTrip() {
	s.cache.Set(s.ctx, "record:1", entry{Name: "Laptop", Stock: 10}, 0)

	var got entry
	s.Require().True(s.cache.Get(s.ctx, "record:1", &got))
	s.Equal("Laptop", got.Name)
}

func (s *RedisCacheSuite) TestDefaultTTLApplied() {
	s.cache.Set(s.ctx, "record:list", []entry{}, 0)

	ttl, err := s.redis.Client.TTL(s.ctx, "record:list").Result()
	s.Require().NoError(err)
	s.InDelta(300, ttl.Seconds(), 2)
}

func (s *RedisCacheSuite) TestExplicitTTLExpires() {
	s.cache.Set(s.ctx, "k", entry{Name: "a"}, time.Second)
	time.Sleep(1500 * time.Millisecond)

	var got entry
	s.False(s.cache.Get(s.ctx, "k", &got))
}

func (s *RedisCacheSuite) TestDelete() {
	s.cache.Set(s.ctx, "k", entry{Name: "a"}, 0)
	s.cache.Delete(s.ctx, "k")

	var got entry
	s.False(s.cache.Get(s.ctx, "k", &got))
}
