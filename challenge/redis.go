package challenge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/wot-id/identity/pkg/metrics"
	"github.com/wot-id/identity/syntax"

	"github.com/redis/go-redis/v9"
)

// prefix string for all the Redis keys this store uses
var redisChallengePrefix = "wotid/challenge/"

// Atomic test-and-delete. Only a hash of the nonce is stored, so the comparison done by the script leaks nothing useful through timing.
//
// Returns: 0 = no challenge, 1 = consumed, 2 = expired (removed), 3 = mismatch (kept)
var consumeScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'nonce_sha256', 'issued_ms')
if not v[1] or not v[2] then
	return 0
end
if tonumber(ARGV[2]) - tonumber(v[2]) > tonumber(ARGV[3]) then
	redis.call('DEL', KEYS[1])
	return 2
end
if v[1] ~= ARGV[1] then
	return 3
end
redis.call('DEL', KEYS[1])
return 1
`)

// Challenge store shared between replicas through Redis. Each DID maps to one hash key; keys expire on their own at twice the challenge TTL, so stale challenges are reported as expired before they vanish.
type RedisStore struct {
	client redis.UniversalClient
	opts   options
}

var _ Store = (*RedisStore)(nil)

// Connects using a redis:// URL and checks the connection.
func NewRedisStore(ctx context.Context, redisURL string, opts ...Option) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("could not configure redis challenge store: %w", err)
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("could not connect to redis challenge store: %w", err)
	}
	return NewRedisStoreWithClient(rdb, opts...), nil
}

func NewRedisStoreWithClient(client redis.UniversalClient, opts ...Option) *RedisStore {
	s := &RedisStore{
		client: client,
		opts:   defaultOptions(),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

func redisKey(did syntax.DID) string {
	return redisChallengePrefix + did.String()
}

func hashNonce(nonce string) string {
	sum := sha256.Sum256([]byte(nonce))
	return hex.EncodeToString(sum[:])
}

func (s *RedisStore) Issue(ctx context.Context, did syntax.DID) (*Challenge, error) {
	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}
	now := s.opts.clock()
	key := redisKey(did)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "nonce_sha256", hashNonce(nonce), "issued_ms", strconv.FormatInt(now.UnixMilli(), 10))
		pipe.PExpire(ctx, key, 2*s.opts.ttl)
		return nil
	})
	if err != nil {
		challengesIssued.WithLabelValues("redis", metrics.StatusError).Inc()
		return nil, fmt.Errorf("%w: issuing challenge: %w", ErrStoreUnavailable, err)
	}

	challengesIssued.WithLabelValues("redis", metrics.StatusOK).Inc()
	s.opts.logger.Debug("challenge issued", "did", did, "nonce", nonce)
	return &Challenge{DID: did, Nonce: nonce, IssuedAt: now}, nil
}

func (s *RedisStore) Consume(ctx context.Context, did syntax.DID, nonce string) error {
	now := s.opts.clock()
	code, err := consumeScript.Run(ctx, s.client,
		[]string{redisKey(did)},
		hashNonce(nonce), now.UnixMilli(), s.opts.ttl.Milliseconds(),
	).Int()

	var result error
	switch {
	case err != nil:
		result = fmt.Errorf("%w: consuming challenge: %w", ErrStoreUnavailable, err)
	case code == 0:
		result = ErrNoSuchChallenge
	case code == 1:
		result = nil
	case code == 2:
		result = ErrChallengeExpired
	case code == 3:
		result = ErrNonceMismatch
	default:
		result = fmt.Errorf("unexpected challenge script result: %d", code)
	}
	challengesConsumed.WithLabelValues("redis", consumeStatus(result)).Inc()
	return result
}

// Checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
