package subject

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wot-id/identity/ledger"
	"github.com/wot-id/identity/syntax"
)

// Default JSON-RPC view method for subject lookups.
const DefaultLedgerLookupMethod = "identity_lookupSubject"

// Looks subjects up through a read-only view call on an identity package deployed on the ledger.
//
// The call is `<Method>(PackageID, hint)`, answered with `{"did": ..., "name": ...}` or null.
type LedgerOracle struct {
	Client    *ledger.Client
	PackageID string
	Method    string
}

var _ Oracle = (*LedgerOracle)(nil)

type ledgerSubject struct {
	DID  string `json:"did"`
	Name string `json:"name"`
}

func NewLedgerOracle(client *ledger.Client, packageID string) *LedgerOracle {
	return &LedgerOracle{
		Client:    client,
		PackageID: packageID,
		Method:    DefaultLedgerLookupMethod,
	}
}

func (o *LedgerOracle) Resolve(ctx context.Context, hint string) (syntax.DID, error) {
	did, err := o.resolve(ctx, hint)
	subjectLookups.WithLabelValues("ledger", errorStatus(err)).Inc()
	return did, err
}

func (o *LedgerOracle) resolve(ctx context.Context, hint string) (syntax.DID, error) {
	method := o.Method
	if method == "" {
		method = DefaultLedgerLookupMethod
	}

	raw, err := o.Client.Call(ctx, method, o.PackageID, hint)
	if err != nil {
		var rpcErr *ledger.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code != ledger.CodeMethodNotFound && strings.Contains(strings.ToLower(rpcErr.Message), "not found") {
			return "", fmt.Errorf("%w: %s", ErrNotFound, rpcErr.Message)
		}
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", ErrNotFound
	}

	var out ledgerSubject
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decoding subject: %w", ErrUnavailable, err)
	}
	if out.DID == "" {
		return "", ErrNotFound
	}
	did, err := syntax.ParseDID(out.DID)
	if err != nil {
		return "", fmt.Errorf("%w: ledger returned %w", ErrNotFound, err)
	}
	return did, nil
}
