package identity

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/wot-id/identity/syntax"
)

// A fake DID resolver, for use in tests
type MockResolver struct {
	mu        sync.RWMutex
	Documents map[syntax.DID]*Document
	// When set, every resolution fails with this error.
	Err   error
	calls atomic.Int64
}

var _ Resolver = (*MockResolver)(nil)

func NewMockResolver() *MockResolver {
	return &MockResolver{
		Documents: make(map[syntax.DID]*Document),
	}
}

func (r *MockResolver) Insert(doc *Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Documents[doc.ID] = doc
}

func (r *MockResolver) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = err
}

// Number of ResolveDID calls made so far.
func (r *MockResolver) Calls() int64 {
	return r.calls.Load()
}

func (r *MockResolver) ResolveDID(ctx context.Context, did syntax.DID) (*Document, error) {
	r.calls.Add(1)
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.Err != nil {
		return nil, r.Err
	}
	doc, ok := r.Documents[did]
	if !ok {
		return nil, ErrDIDNotFound
	}
	return doc, nil
}
