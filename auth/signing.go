package auth

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/wot-id/identity/syntax"

	"github.com/golang-jwt/jwt/v5"
)

// Produces the compact JWS a client sends back for a challenge. `kid` should reference the verification method of `priv` in the DID document (relative "#key-1" or absolute). A zero ttl omits the "exp" claim.
func SignChallenge(did syntax.DID, kid, nonce string, priv ed25519.PrivateKey, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := challengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   did.String(),
			IssuedAt: jwt.NewNumericDate(now),
		},
		Challenge: nonce,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(priv)
	if err != nil {
		return "", fmt.Errorf("signing challenge: %w", err)
	}
	return signed, nil
}
