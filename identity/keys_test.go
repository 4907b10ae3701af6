package identity

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multibase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ed25519JWK(pub ed25519.PublicKey) []byte {
	return []byte(fmt.Sprintf(`{"kty":"OKP","crv":"Ed25519","x":"%s"}`, base64.RawURLEncoding.EncodeToString(pub)))
}

func TestPublicKeyEncodings(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(err)

	bareMultibase, err := multibase.Encode(multibase.Base58BTC, pub)
	require.NoError(err)

	methods := []VerificationMethod{
		{ID: "#jwk", PublicKeyJWK: ed25519JWK(pub)},
		{ID: "#multikey", PublicKeyMultibase: EncodeMultibaseEd25519(pub)},
		{ID: "#bare", PublicKeyMultibase: bareMultibase},
		{ID: "#b58", PublicKeyBase58: base58.Encode(pub)},
	}
	for _, vm := range methods {
		got, err := vm.PublicKey()
		require.NoError(err, vm.ID)
		assert.True(pub.Equal(got), vm.ID)
	}
}

func TestPublicKeyFailures(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	vm := VerificationMethod{ID: "#empty"}
	_, err := vm.PublicKey()
	assert.ErrorIs(err, ErrKeyMaterial)

	vm = VerificationMethod{ID: "#junk", PublicKeyJWK: []byte(`{"kty":"nope"}`)}
	_, err = vm.PublicKey()
	assert.ErrorIs(err, ErrKeyMaterial)

	vm = VerificationMethod{ID: "#short", PublicKeyBase58: base58.Encode([]byte{1, 2, 3})}
	_, err = vm.PublicKey()
	assert.ErrorIs(err, ErrKeyMaterial)

	vm = VerificationMethod{ID: "#badmb", PublicKeyMultibase: "!!!"}
	_, err = vm.PublicKey()
	assert.ErrorIs(err, ErrKeyMaterial)

	// secp256k1-pub multicodec
	k256, err := multibase.Encode(multibase.Base58BTC, append([]byte{0xE7, 0x01}, make([]byte, 33)...))
	require.NoError(err)
	vm = VerificationMethod{ID: "#k256", PublicKeyMultibase: k256}
	_, err = vm.PublicKey()
	assert.ErrorIs(err, ErrUnsupportedKeyType)

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)
	x := base64.RawURLEncoding.EncodeToString(priv.PublicKey.X.FillBytes(make([]byte, 32)))
	y := base64.RawURLEncoding.EncodeToString(priv.PublicKey.Y.FillBytes(make([]byte, 32)))
	vm = VerificationMethod{ID: "#p256", PublicKeyJWK: []byte(fmt.Sprintf(`{"kty":"EC","crv":"P-256","x":"%s","y":"%s"}`, x, y))}
	_, err = vm.PublicKey()
	assert.ErrorIs(err, ErrUnsupportedKeyType)
}
