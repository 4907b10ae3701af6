package challenge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wot-id/identity/pkg/metrics"
	"github.com/wot-id/identity/syntax"

	"github.com/puzpuzpuz/xsync/v3"
)

type memoryEntry struct {
	nonce    string
	issuedAt time.Time
}

// In-process challenge store. Suitable for a single replica.
type MemoryStore struct {
	opts    options
	entries *xsync.MapOf[syntax.DID, memoryEntry]
	count   atomic.Int64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store. By default challenges live for five minutes, at most 100,000 may be outstanding, and expired ones are swept every 30 seconds. Call Close to stop the sweeper.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		opts:    defaultOptions(),
		entries: xsync.NewMapOf[syntax.DID, memoryEntry](),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}

	if s.opts.sweepInterval > 0 {
		go s.sweepLoop(s.opts.sweepInterval)
	} else {
		close(s.done)
	}
	return s
}

func (s *MemoryStore) Issue(ctx context.Context, did syntax.DID) (*Challenge, error) {
	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}
	now := s.opts.clock()
	next := memoryEntry{nonce: nonce, issuedAt: now}

	full := false
	s.entries.Compute(did, func(old memoryEntry, loaded bool) (memoryEntry, bool) {
		if !loaded && s.count.Add(1) > s.opts.maxEntries && s.opts.maxEntries > 0 {
			s.count.Add(-1)
			full = true
			return old, true
		}
		return next, false
	})
	if full {
		challengesIssued.WithLabelValues("memory", "full").Inc()
		return nil, ErrStoreFull
	}

	challengesIssued.WithLabelValues("memory", metrics.StatusOK).Inc()
	s.opts.logger.Debug("challenge issued", "did", did, "nonce", nonce)
	return &Challenge{DID: did, Nonce: nonce, IssuedAt: now}, nil
}

func (s *MemoryStore) Consume(ctx context.Context, did syntax.DID, nonce string) error {
	now := s.opts.clock()

	var result error
	s.entries.Compute(did, func(old memoryEntry, loaded bool) (memoryEntry, bool) {
		switch {
		case !loaded:
			result = ErrNoSuchChallenge
			return old, true
		case expired(old.issuedAt, now, s.opts.ttl):
			result = ErrChallengeExpired
			s.count.Add(-1)
			return old, true
		case !nonceEqual(old.nonce, nonce):
			result = ErrNonceMismatch
			return old, false
		default:
			result = nil
			s.count.Add(-1)
			return old, true
		}
	})

	challengesConsumed.WithLabelValues("memory", consumeStatus(result)).Inc()
	return result
}

// Number of outstanding (possibly expired but not yet swept) challenges.
func (s *MemoryStore) Len() int {
	return int(s.count.Load())
}

// Removes expired challenges. Called periodically by the sweeper; exported for tests and manual use.
func (s *MemoryStore) Sweep() int {
	now := s.opts.clock()
	removed := 0
	s.entries.Range(func(did syntax.DID, e memoryEntry) bool {
		if !expired(e.issuedAt, now, s.opts.ttl) {
			return true
		}
		// re-check under the per-key lock, in case a fresh challenge replaced it
		s.entries.Compute(did, func(old memoryEntry, loaded bool) (memoryEntry, bool) {
			if !loaded {
				return old, true
			}
			if expired(old.issuedAt, now, s.opts.ttl) {
				s.count.Add(-1)
				removed++
				return old, true
			}
			return old, false
		})
		return true
	})
	if removed > 0 {
		s.opts.logger.Debug("swept expired challenges", "count", removed)
	}
	return removed
}

// Close stops the sweeper. Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
