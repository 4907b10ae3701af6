package identity

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"
	"time"

	"github.com/wot-id/identity/syntax"

	"github.com/multiformats/go-multibase"
)

// Expands did:key identifiers (Ed25519 only) into a DID document. No network I/O.
type KeyResolver struct{}

var _ Resolver = (*KeyResolver)(nil)

func (KeyResolver) ResolveDID(ctx context.Context, did syntax.DID) (*Document, error) {
	start := time.Now()
	doc, err := resolveDIDKey(did)
	status := errorStatus(err)
	didResolution.WithLabelValues("key", status).Inc()
	didResolutionDuration.WithLabelValues("key", status).Observe(time.Since(start).Seconds())
	return doc, err
}

func resolveDIDKey(did syntax.DID) (*Document, error) {
	if did.Method() != "key" {
		return nil, fmt.Errorf("%w: expected a did:key, got: %s", ErrMethodNotSupported, did)
	}
	fingerprint := did.Identifier()
	if !strings.HasPrefix(fingerprint, "z") {
		return nil, fmt.Errorf("%w: did:key must be base58btc multibase", ErrResolutionProtocol)
	}
	_, data, err := multibase.Decode(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("%w: did:key multibase: %w", ErrResolutionProtocol, err)
	}
	pub, err := decodeMulticodecKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolutionProtocol, err)
	}
	return DIDKeyDocument(did, pub.(ed25519.PublicKey)), nil
}

// Builds the document for a did:key with the given Ed25519 public key.
func DIDKeyDocument(did syntax.DID, pub ed25519.PublicKey) *Document {
	fingerprint := EncodeMultibaseEd25519(pub)
	vmID := did.WithFragment(fingerprint)
	return &Document{
		ID: did,
		VerificationMethod: []VerificationMethod{{
			ID:                 vmID,
			Type:               "Ed25519VerificationKey2020",
			Controller:         did.String(),
			PublicKeyMultibase: fingerprint,
		}},
		Authentication:  []VerificationRelationship{{Reference: vmID}},
		AssertionMethod: []VerificationRelationship{{Reference: vmID}},
	}
}

// Returns the did:key identifier for an Ed25519 public key.
func DIDKeyFromEd25519(pub ed25519.PublicKey) syntax.DID {
	return syntax.DID("did:key:" + EncodeMultibaseEd25519(pub))
}
