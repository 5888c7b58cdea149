//go:build integration

// Integration tests for the Redis client and limiter. They need Docker and
// run with:
//
//	go test -v -race -tags=integration ./pkg/clients/redis/...
package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/StricklySoft/storefront/internal/testutil/containers"
	"github.com/StricklySoft/storefront/pkg/clients/redis"
)

// ===========================================================================
// Suite Definition
// ===========================================================================

// RedisIntegrationSuite shares one container across tests; each test uses
// its own key prefix.
type RedisIntegrationSuite struct {
	suite.Suite

	ctx         context.Context
	redisResult *containers.RedisResult
	client      *redis.Client
}

func (s *RedisIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	result, err := containers.StartRedis(s.ctx)
	require.NoError(s.T(), err, "failed to start Redis container")
	s.redisResult = result

	client, err := redis.NewClient(s.ctx, redis.Config{URI: result.ConnString})
	require.NoError(s.T(), err, "failed to create Redis client")
	s.client = client
}

func (s *RedisIntegrationSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.redisResult != nil {
		if err := s.redisResult.Container.Terminate(s.ctx); err != nil {
			s.T().Logf("failed to terminate redis container: %v", err)
		}
	}
}

func TestRedisIntegration(t *testing.T) {
	suite.Run(t, new(RedisIntegrationSuite))
}

// ===========================================================================
// Tests
// ===========================================================================

func (s *RedisIntegrationSuite) TestHealth() {
	s.NoError(s.client.Health(s.ctx))
}

func (s *RedisIntegrationSuite) TestIncrExpireTTL() {
	key := "it:" + uuid.NewString()

	n, err := s.client.Incr(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	s.Require().NoError(s.client.Expire(s.ctx, key, time.Minute))
	ttl, err := s.client.TTL(s.ctx, key)
	s.Require().NoError(err)
	s.Greater(ttl, 50*time.Second)

	v, ok, err := s.client.Get(s.ctx, key)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("1", v)

	deleted, err := s.client.Del(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)
}

func (s *RedisIntegrationSuite) TestLimiter() {
	limiter := redis.NewLimiter(s.client, "it-"+uuid.NewString())

	for i := 0; i < 5; i++ {
		ok, err := limiter.Allow(s.ctx, "cart", 5, time.Minute)
		s.Require().NoError(err)
		s.True(ok)
	}
	ok, err := limiter.Allow(s.ctx, "cart", 5, time.Minute)
	s.Require().NoError(err)
	s.False(ok)
}
