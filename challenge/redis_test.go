package challenge

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wot-id/identity/syntax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedisStore(t *testing.T, opts ...Option) *RedisStore {
	redisURL := os.Getenv("WOTID_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("set WOTID_TEST_REDIS_URL to run live redis tests")
	}
	s, err := NewRedisStore(context.Background(), redisURL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisIssueConsume(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	s := testRedisStore(t)
	did := syntax.DID("did:example:redis-issue-consume")

	first, err := s.Issue(ctx, did)
	require.NoError(err)
	c, err := s.Issue(ctx, did)
	require.NoError(err)

	assert.ErrorIs(s.Consume(ctx, did, first.Nonce), ErrNonceMismatch)
	assert.NoError(s.Consume(ctx, did, c.Nonce))
	assert.ErrorIs(s.Consume(ctx, did, c.Nonce), ErrNoSuchChallenge)
}

func TestRedisExpiry(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	clock := newFakeClock()
	s := testRedisStore(t, WithClock(clock.Now), WithTTL(time.Minute))
	did := syntax.DID("did:example:redis-expiry")

	c, err := s.Issue(ctx, did)
	require.NoError(err)
	clock.Advance(time.Minute + time.Second)
	assert.ErrorIs(s.Consume(ctx, did, c.Nonce), ErrChallengeExpired)
	assert.ErrorIs(s.Consume(ctx, did, c.Nonce), ErrNoSuchChallenge)
}

func TestRedisConcurrentConsume(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := testRedisStore(t)
	did := syntax.DID("did:example:redis-race")
	c, err := s.Issue(ctx, did)
	require.NoError(err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Consume(ctx, did, c.Nonce) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisUnreachable(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "redis://127.0.0.1:1/0")
	assert.Error(t, err)

	_, err = NewRedisStore(context.Background(), "not a url")
	assert.Error(t, err)
}
