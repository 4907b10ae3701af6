// Package subject maps login hints (e-mail addresses) to the DID which must answer the challenge.
package subject

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wot-id/identity/pkg/metrics"
	"github.com/wot-id/identity/syntax"
)

// The oracle answered, and has no DID for the hint.
var ErrNotFound = errors.New("subject not found")

// The oracle could not be consulted (backend down, timeout). Expected to be transient.
var ErrUnavailable = errors.New("subject oracle unavailable")

// Hint is empty or not shaped like an e-mail address.
var ErrInvalidHint = errors.New("invalid subject hint")

// Maps a normalized hint to a DID.
type Oracle interface {
	Resolve(ctx context.Context, hint string) (syntax.DID, error)
}

// Display attributes released to the relying party after a successful verification.
type Profile struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Optional capability of an Oracle: reverse lookup of subject attributes by DID.
type Profiler interface {
	Profile(ctx context.Context, did syntax.DID) (*Profile, error)
}

// Trims and lower-cases an e-mail style hint.
func NormalizeHint(hint string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidHint)
	}
	if len(h) > 320 {
		return "", fmt.Errorf("%w: too long", ErrInvalidHint)
	}
	at := strings.LastIndexByte(h, '@')
	if at <= 0 || at == len(h)-1 || strings.ContainsAny(h, " \t\r\n") {
		return "", fmt.Errorf("%w: not an e-mail address", ErrInvalidHint)
	}
	return h, nil
}

// short status string for metrics and logs
func errorStatus(err error) string {
	switch {
	case err == nil:
		return metrics.StatusOK
	case errors.Is(err, ErrNotFound):
		return metrics.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return metrics.StatusError
	}
}
