// Package auth verifies compact JWS challenge responses against keys from DID documents.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWS is not structurally valid: wrong number of segments, bad base64url, or undecodable header.
var ErrMalformedSignature = errors.New("malformed JWS")

// JWS header names an algorithm other than EdDSA, or the referenced key is not an Ed25519 key.
var ErrUnsupportedAlgorithm = errors.New("unsupported JWS algorithm")

// JWS "kid" does not reference a usable verification method in the DID document.
var ErrKeyNotFound = errors.New("verification key not found")

// The only supported JWS algorithm
const AlgEdDSA = "EdDSA"

// Maximum accepted length of a compact JWS, in bytes
const MaxCompactLength = 16 * 1024

type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid,omitempty"`
	Typ string `json:"typ,omitempty"`
}

// A compact-serialized JWS, split and decoded but not verified.
type CompactJWS struct {
	Header Header
	// The "header.payload" prefix which the signature covers
	SigningInput string
	Payload      []byte
	Signature    []byte
}

// strict decoding rejects non-zero padding bits, so each JWS has exactly one encoding
var segmentParser = jwt.NewParser(jwt.WithStrictDecoding())

// Splits and decodes a compact JWS (`header.payload.signature`). Does not verify anything beyond structure and the "alg" header.
func ParseCompact(raw string) (*CompactJWS, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty string", ErrMalformedSignature)
	}
	if len(raw) > MaxCompactLength {
		return nil, fmt.Errorf("%w: too long", ErrMalformedSignature)
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedSignature, len(parts))
	}

	headerJSON, err := segmentParser.DecodeSegment(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: header encoding: %w", ErrMalformedSignature, err)
	}
	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding: %w", ErrMalformedSignature, err)
	}
	sig, err := segmentParser.DecodeSegment(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: signature encoding: %w", ErrMalformedSignature, err)
	}
	if len(sig) == 0 {
		return nil, fmt.Errorf("%w: empty signature", ErrMalformedSignature)
	}

	var hdr Header
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header JSON: %w", ErrMalformedSignature, err)
	}
	if hdr.Alg != AlgEdDSA {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, hdr.Alg)
	}

	return &CompactJWS{
		Header:       hdr,
		SigningInput: parts[0] + "." + parts[1],
		Payload:      payload,
		Signature:    sig,
	}, nil
}
