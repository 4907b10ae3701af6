package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wot-id/identity/ledger"
	"github.com/wot-id/identity/syntax"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("identity")

// Resolves DIDs by asking a ledger node over JSON-RPC.
type LedgerResolver struct {
	Client *ledger.Client
	// JSON-RPC method invoked with the DID string as only parameter. Defaults to [DefaultResolveMethod].
	Method string
}

var _ Resolver = (*LedgerResolver)(nil)

const DefaultResolveMethod = "did_resolve"

func NewLedgerResolver(client *ledger.Client) *LedgerResolver {
	return &LedgerResolver{
		Client: client,
		Method: DefaultResolveMethod,
	}
}

func (r *LedgerResolver) ResolveDID(ctx context.Context, did syntax.DID) (*Document, error) {
	ctx, span := tracer.Start(ctx, "LedgerResolver.ResolveDID")
	defer span.End()
	span.SetAttributes(attribute.String("did", did.String()))

	start := time.Now()
	doc, err := r.resolve(ctx, did)
	status := errorStatus(err)
	span.SetAttributes(attribute.String("status", status))
	didResolution.WithLabelValues("ledger", status).Inc()
	didResolutionDuration.WithLabelValues("ledger", status).Observe(time.Since(start).Seconds())
	return doc, err
}

func (r *LedgerResolver) resolve(ctx context.Context, did syntax.DID) (*Document, error) {
	method := r.Method
	if method == "" {
		method = DefaultResolveMethod
	}

	raw, err := r.Client.Call(ctx, method, did.String())
	if err != nil {
		var rpcErr *ledger.RPCError
		switch {
		case errors.As(err, &rpcErr):
			// nodes report unknown objects as call errors, not null results
			if rpcErr.Code != ledger.CodeMethodNotFound && strings.Contains(strings.ToLower(rpcErr.Message), "not found") {
				return nil, fmt.Errorf("%w: %s", ErrDIDNotFound, rpcErr.Message)
			}
			return nil, fmt.Errorf("%w: %w", ErrResolutionProtocol, err)
		case errors.Is(err, ledger.ErrTransport):
			return nil, fmt.Errorf("%w: %w", ErrResolutionTransport, err)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("%w: %w", ErrResolutionTransport, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrResolutionProtocol, err)
		}
	}
	return parseResolution(did, raw)
}
