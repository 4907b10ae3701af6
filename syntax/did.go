package syntax

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Returned (wrapped) by [ParseDID] for any input which is not a syntactically valid DID.
var ErrMalformedIdentifier = errors.New("malformed identifier")

// Represents a syntactically valid DID: `did:<method>:<method-specific-id>`.
//
// Always use [ParseDID] instead of wrapping strings directly, especially when working with input.
type DID string

var didRegex = regexp.MustCompile(`^did:[a-z0-9]+:[a-zA-Z0-9._:%-]*[a-zA-Z0-9._-]$`)

func ParseDID(raw string) (DID, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: expected DID, got empty string", ErrMalformedIdentifier)
	}
	if len(raw) > 2*1024 {
		return "", fmt.Errorf("%w: DID is too long (2048 chars max)", ErrMalformedIdentifier)
	}
	if !didRegex.MatchString(raw) {
		return "", fmt.Errorf("%w: DID syntax didn't validate via regex", ErrMalformedIdentifier)
	}
	return DID(raw), nil
}

// The "method" part of the DID, between the 'did:' prefix and the method-specific identifier.
func (d DID) Method() string {
	// syntax guarantees that there are at least 3 parts of split
	parts := strings.SplitN(string(d), ":", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// The method-specific identifier: everything after the method. For `did:iota:tst:0xabc` this is `tst:0xabc`.
func (d DID) Identifier() string {
	parts := strings.SplitN(string(d), ":", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

// Builds an absolute DID URL for a fragment, eg "key-1" or "#key-1" becomes "did:example:123#key-1".
func (d DID) WithFragment(fragment string) string {
	return string(d) + "#" + strings.TrimPrefix(fragment, "#")
}

func (d DID) String() string {
	return string(d)
}

func (d DID) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DID) UnmarshalText(text []byte) error {
	did, err := ParseDID(string(text))
	if err != nil {
		return err
	}
	*d = did
	return nil
}
