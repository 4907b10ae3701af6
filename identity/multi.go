package identity

import (
	"context"
	"fmt"

	"github.com/wot-id/identity/syntax"
)

// Routes resolution to a per-method resolver.
type MultiResolver struct {
	handlers map[string]Resolver
	// Used for methods without a dedicated handler. May be nil.
	Fallback Resolver
}

var _ Resolver = (*MultiResolver)(nil)

func NewMultiResolver() *MultiResolver {
	return &MultiResolver{
		handlers: make(map[string]Resolver),
	}
}

// Not safe to call concurrently with ResolveDID; configure at startup.
func (mr *MultiResolver) AddHandler(method string, res Resolver) {
	mr.handlers[method] = res
}

func (mr *MultiResolver) ResolveDID(ctx context.Context, did syntax.DID) (*Document, error) {
	res, ok := mr.handlers[did.Method()]
	if !ok {
		if mr.Fallback == nil {
			return nil, fmt.Errorf("%w: %q", ErrMethodNotSupported, did.Method())
		}
		res = mr.Fallback
	}
	return res.ResolveDID(ctx, did)
}
