package cliutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Secret key loaded from a JWK file, along with its key ID ("kid").
type KeyFile struct {
	KeyID      string
	PrivateKey ed25519.PrivateKey
}

func (k *KeyFile) PublicKey() ed25519.PublicKey {
	return k.PrivateKey.Public().(ed25519.PublicKey)
}

// Loads an Ed25519 secret key from JWK JSON on disk.
func LoadKeyFromFile(fpath string) (*KeyFile, error) {
	kb, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}

	sk, err := jwk.ParseKey(kb)
	if err != nil {
		return nil, err
	}
	if _, ok := sk.(jwk.OKPPrivateKey); !ok {
		return nil, fmt.Errorf("expected an OKP (Ed25519) private key, got %s", sk.KeyType())
	}

	var raw ed25519.PrivateKey
	if err := sk.Raw(&raw); err != nil {
		return nil, err
	}
	return &KeyFile{KeyID: sk.KeyID(), PrivateKey: raw}, nil
}

// Generates an Ed25519 secret key and saves it to disk as JWK.
func GenerateKeyToFile(fname, kid string) (*KeyFile, error) {
	_, raw, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate new Ed25519 private key: %w", err)
	}

	key, err := jwk.FromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ed25519 key: %w", err)
	}
	if kid != "" {
		if err := key.Set(jwk.KeyIDKey, kid); err != nil {
			return nil, err
		}
	}

	buf, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key into JSON: %w", err)
	}

	// ensure data directory exists; won't error if it does
	if err := os.MkdirAll(filepath.Dir(fname), os.ModePerm); err != nil {
		return nil, err
	}
	if err := os.WriteFile(fname, buf, 0600); err != nil {
		return nil, err
	}
	return &KeyFile{KeyID: kid, PrivateKey: raw}, nil
}
