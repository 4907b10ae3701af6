package identity

import (
	"crypto"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
)

const (
	// multicodec code for ed25519-pub
	MulticodecEd25519 = 0xED
)

// Verification method declares no key material, or key material which could not be decoded.
var ErrKeyMaterial = errors.New("verification method key material unusable")

// Verification method key decoded fine, but it is not a key type this package can verify with.
var ErrUnsupportedKeyType = errors.New("unsupported verification method key type")

// Decodes the public key of the verification method. Checks "publicKeyJwk", "publicKeyMultibase", and "publicKeyBase58", in that order.
//
// Ed25519 keys are returned as [ed25519.PublicKey]. Other decodable key types (eg, P-256 JWKs) are returned along with [ErrUnsupportedKeyType], so callers can report which type was found.
func (vm *VerificationMethod) PublicKey() (crypto.PublicKey, error) {
	switch {
	case len(vm.PublicKeyJWK) > 0:
		return parseJWK(vm.PublicKeyJWK)
	case vm.PublicKeyMultibase != "":
		return parseMultibase(vm.PublicKeyMultibase)
	case vm.PublicKeyBase58 != "":
		raw, err := base58.Decode(vm.PublicKeyBase58)
		if err != nil {
			return nil, fmt.Errorf("%w: base58: %w", ErrKeyMaterial, err)
		}
		return rawEd25519(raw)
	default:
		return nil, fmt.Errorf("%w: no public key in method %s", ErrKeyMaterial, vm.ID)
	}
}

func parseJWK(b []byte) (crypto.PublicKey, error) {
	key, err := jwk.ParseKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: JWK: %w", ErrKeyMaterial, err)
	}
	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("%w: JWK: %w", ErrKeyMaterial, err)
	}
	switch k := raw.(type) {
	case ed25519.PublicKey:
		if len(k) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: ed25519 JWK has %d bytes", ErrKeyMaterial, len(k))
		}
		return k, nil
	case ed25519.PrivateKey:
		// never accept private material published in a document
		return nil, fmt.Errorf("%w: JWK contains private key", ErrKeyMaterial)
	default:
		return k, fmt.Errorf("%w: JWK kty=%s", ErrUnsupportedKeyType, key.KeyType())
	}
}

// Accepts either a bare 32-byte Ed25519 key, or one prefixed with the ed25519-pub multicodec (as in did:key and Multikey).
func parseMultibase(s string) (crypto.PublicKey, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: multibase: %w", ErrKeyMaterial, err)
	}
	if len(data) == ed25519.PublicKeySize {
		return ed25519.PublicKey(data), nil
	}
	return decodeMulticodecKey(data)
}

func decodeMulticodecKey(data []byte) (crypto.PublicKey, error) {
	code, n, err := varint.FromUvarint(data)
	if err != nil {
		return nil, fmt.Errorf("%w: multicodec prefix: %w", ErrKeyMaterial, err)
	}
	if code != MulticodecEd25519 {
		return nil, fmt.Errorf("%w: multicodec 0x%x", ErrUnsupportedKeyType, code)
	}
	return rawEd25519(data[n:])
}

func rawEd25519(raw []byte) (crypto.PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: expected %d ed25519 key bytes, got %d", ErrKeyMaterial, ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// Encodes an Ed25519 public key as a multicodec-prefixed base58btc multibase string (the did:key fingerprint form).
func EncodeMultibaseEd25519(pub ed25519.PublicKey) string {
	buf := make([]byte, varint.UvarintSize(MulticodecEd25519)+len(pub))
	n := varint.PutUvarint(buf, MulticodecEd25519)
	copy(buf[n:], pub)
	s, err := multibase.Encode(multibase.Base58BTC, buf)
	if err != nil {
		// only fails for unknown encodings
		panic(err)
	}
	return s
}
