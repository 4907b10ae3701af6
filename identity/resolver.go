package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/wot-id/identity/pkg/metrics"
	"github.com/wot-id/identity/syntax"
)

// Low-level interface for resolving a DID to a DID document.
//
// Implementations must be safe for concurrent use, and must honor context cancellation and deadlines.
type Resolver interface {
	ResolveDID(ctx context.Context, did syntax.DID) (*Document, error)
}

// Indicates that resolution completed successfully, but the DID does not exist (or has been deactivated).
var ErrDIDNotFound = errors.New("DID not found")

// The resolver backend could not be reached, timed out, or failed with a server error. These failures are expected to be transient.
var ErrResolutionTransport = errors.New("DID resolver unavailable")

// The resolver backend responded, but with something which could not be interpreted as a DID document for the requested DID.
var ErrResolutionProtocol = errors.New("DID resolution protocol error")

// No resolver is configured for the DID method. Wraps [ErrDIDNotFound].
var ErrMethodNotSupported = fmt.Errorf("%w: DID method not supported", ErrDIDNotFound)

// Helper for resolving an unparsed DID string. Malformed input fails with [syntax.ErrMalformedIdentifier] without calling the resolver.
func ResolveString(ctx context.Context, r Resolver, raw string) (*Document, error) {
	did, err := syntax.ParseDID(raw)
	if err != nil {
		return nil, err
	}
	return r.ResolveDID(ctx, did)
}

// short status string for metrics and logs
func errorStatus(err error) string {
	switch {
	case err == nil:
		return metrics.StatusOK
	case errors.Is(err, ErrDIDNotFound):
		return metrics.StatusNotFound
	case errors.Is(err, ErrResolutionTransport):
		return "transport"
	case errors.Is(err, ErrResolutionProtocol):
		return "protocol"
	default:
		return metrics.StatusError
	}
}
