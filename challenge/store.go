// Package challenge issues and consumes the single-use nonces which bind a signature to one login attempt.
package challenge

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wot-id/identity/pkg/metrics"
	"github.com/wot-id/identity/syntax"

	"github.com/google/uuid"
)

const (
	// DefaultTTL is how long an issued challenge stays valid.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxEntries bounds the number of outstanding challenges held in memory.
	DefaultMaxEntries = 100_000

	// DefaultSweepInterval is how often expired in-memory challenges are purged.
	DefaultSweepInterval = 30 * time.Second
)

// No challenge is outstanding for the DID: never issued, already consumed, or purged after expiry.
var ErrNoSuchChallenge = errors.New("no outstanding challenge")

// A challenge exists for the DID, but is older than the TTL. The challenge is removed.
var ErrChallengeExpired = errors.New("challenge expired")

// A live challenge exists for the DID, but with a different nonce. The challenge is kept.
var ErrNonceMismatch = errors.New("challenge nonce mismatch")

// Too many outstanding challenges to issue another one.
var ErrStoreFull = errors.New("challenge store full")

// Shared backing store (eg, Redis) could not be reached.
var ErrStoreUnavailable = errors.New("challenge store unavailable")

type Challenge struct {
	DID      syntax.DID
	Nonce    string
	IssuedAt time.Time
}

// Registry of outstanding challenges, at most one per DID.
//
// Implementations must be safe for concurrent use. Operations on the same DID are mutually exclusive; operations on different DIDs do not contend.
type Store interface {
	// Issues a fresh challenge for the DID, replacing (invalidating) any outstanding one.
	Issue(ctx context.Context, did syntax.DID) (*Challenge, error)

	// Atomically checks and removes the outstanding challenge for the DID. Returns nil only if a live challenge with exactly this nonce was present; at most one concurrent caller can succeed for a given challenge.
	Consume(ctx context.Context, did syntax.DID, nonce string) error
}

type options struct {
	ttl           time.Duration
	clock         func() time.Time
	maxEntries    int64
	sweepInterval time.Duration
	logger        *slog.Logger
}

func defaultOptions() options {
	return options{
		ttl:           DefaultTTL,
		clock:         time.Now,
		maxEntries:    DefaultMaxEntries,
		sweepInterval: DefaultSweepInterval,
		logger:        slog.Default().With("component", "challenge"),
	}
}

type Option func(*options)

// WithTTL sets how long a challenge is valid after issue.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithMaxEntries caps the number of outstanding in-memory challenges; zero or negative means no cap. Ignored by RedisStore.
func WithMaxEntries(max int) Option {
	return func(o *options) {
		o.maxEntries = int64(max)
	}
}

// WithSweepInterval sets how often expired in-memory challenges are purged. Zero or negative disables the sweeper. Ignored by RedisStore.
func WithSweepInterval(interval time.Duration) Option {
	return func(o *options) {
		o.sweepInterval = interval
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Generates a random nonce: a UUIDv4, which carries 122 random bits.
func NewNonce() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating challenge nonce: %w", err)
	}
	return u.String(), nil
}

func nonceEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func expired(issuedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(issuedAt) > ttl
}

// short status string for metrics and logs
func consumeStatus(err error) string {
	switch {
	case err == nil:
		return metrics.StatusOK
	case errors.Is(err, ErrNoSuchChallenge):
		return "no_such_challenge"
	case errors.Is(err, ErrChallengeExpired):
		return "expired"
	case errors.Is(err, ErrNonceMismatch):
		return "mismatch"
	default:
		return metrics.StatusError
	}
}
