package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/wot-id/identity/identity"
	"github.com/wot-id/identity/syntax"

	"github.com/golang-jwt/jwt/v5"
)

// Checks a signed challenge response against a resolved DID document.
type Verifier interface {
	// Returns true only if the signature verifies with the referenced key AND the claims bind it to the expected DID and nonce. An invalid signature or a claim mismatch is (false, nil); errors are reserved for malformed input and unusable keys.
	Check(ctx context.Context, jws string, doc *identity.Document, expectedDID syntax.DID, expectedNonce string) (bool, error)
}

type challengeClaims struct {
	jwt.RegisteredClaims

	Challenge string `json:"challenge"`
}

// Verifies EdDSA (Ed25519) compact JWS challenge responses.
type EdDSAVerifier struct {
	// Clock skew tolerance for "exp", "nbf" and "iat" claims, when present.
	Leeway time.Duration
	// Replaces time.Now, for tests.
	Clock  func() time.Time
	Logger *slog.Logger
}

var _ Verifier = (*EdDSAVerifier)(nil)

func NewEdDSAVerifier() *EdDSAVerifier {
	return &EdDSAVerifier{
		Leeway: 30 * time.Second,
		Clock:  time.Now,
		Logger: slog.Default().With("component", "auth"),
	}
}

func (v *EdDSAVerifier) Check(ctx context.Context, jws string, doc *identity.Document, expectedDID syntax.DID, expectedNonce string) (bool, error) {
	logger := v.logger().With("did", expectedDID)

	token, err := ParseCompact(jws)
	if err != nil {
		return false, err
	}
	if doc == nil || doc.ID != expectedDID {
		logger.Info("DID document does not belong to the expected DID")
		return false, nil
	}

	vm, ok := doc.FindVerificationMethod(token.Header.Kid)
	if !ok {
		return false, ErrKeyNotFound
	}
	pub, err := vm.PublicKey()
	if err != nil {
		if errors.Is(err, identity.ErrUnsupportedKeyType) {
			return false, errors.Join(ErrUnsupportedAlgorithm, err)
		}
		return false, errors.Join(ErrKeyNotFound, err)
	}

	// signature strictly before claims: nothing in the payload is trusted until this passes
	if err := jwt.SigningMethodEdDSA.Verify(token.SigningInput, token.Signature, pub); err != nil {
		logger.Info("JWS signature invalid", "kid", vm.ID, "err", err)
		return false, nil
	}

	var claims challengeClaims
	if err := json.Unmarshal(token.Payload, &claims); err != nil {
		logger.Info("JWS payload is not a JSON claims set", "err", err)
		return false, nil
	}
	issOK := subtle.ConstantTimeCompare([]byte(claims.Issuer), []byte(expectedDID)) == 1
	nonceOK := subtle.ConstantTimeCompare([]byte(claims.Challenge), []byte(expectedNonce)) == 1
	if !issOK || !nonceOK {
		logger.Info("JWS claims do not match challenge", "issuerMatch", issOK, "challengeMatch", nonceOK)
		return false, nil
	}

	validator := jwt.NewValidator(jwt.WithLeeway(v.Leeway), jwt.WithTimeFunc(v.now))
	if err := validator.Validate(claims); err != nil {
		logger.Info("JWS time claims invalid", "err", err)
		return false, nil
	}

	return true, nil
}

func (v *EdDSAVerifier) now() time.Time {
	if v.Clock != nil {
		return v.Clock()
	}
	return time.Now()
}

func (v *EdDSAVerifier) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}
