package subject

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/wot-id/identity/pkg/metrics"
	"github.com/wot-id/identity/syntax"
)

// One row of a subject directory.
type Entry struct {
	Email string     `json:"email"`
	DID   syntax.DID `json:"did"`
	Name  string     `json:"name,omitempty"`
}

// Fixed in-memory subject directory, optionally loaded from a JSON file.
type StaticOracle struct {
	mu      sync.RWMutex
	byEmail map[string]Entry
	byDID   map[syntax.DID]Entry
}

var _ Oracle = (*StaticOracle)(nil)
var _ Profiler = (*StaticOracle)(nil)

// Placeholder mapping used by development deployments.
var DevEntry = Entry{
	Email: "user@example.com",
	DID:   syntax.DID("did:iota:tst:0xplaceholderdidforuseratolecom"),
	Name:  "Example User",
}

func NewStaticOracle(entries ...Entry) (*StaticOracle, error) {
	o := &StaticOracle{
		byEmail: make(map[string]Entry),
		byDID:   make(map[syntax.DID]Entry),
	}
	for _, e := range entries {
		if err := o.Insert(e); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Reads a JSON array of entries, eg: `[{"email": "user@example.com", "did": "did:iota:...", "name": "..."}]`
func LoadEntries(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading subject directory: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parsing subject directory %s: %w", path, err)
	}
	return entries, nil
}

// Loads a subject directory file (see LoadEntries).
func LoadStaticOracle(path string) (*StaticOracle, error) {
	entries, err := LoadEntries(path)
	if err != nil {
		return nil, err
	}
	return NewStaticOracle(entries...)
}

func (o *StaticOracle) Insert(e Entry) error {
	email, err := NormalizeHint(e.Email)
	if err != nil {
		return err
	}
	if _, err := syntax.ParseDID(e.DID.String()); err != nil {
		return fmt.Errorf("subject %s: %w", email, err)
	}
	e.Email = email

	o.mu.Lock()
	defer o.mu.Unlock()
	if prev, ok := o.byEmail[email]; ok && o.byDID[prev.DID].Email == email {
		delete(o.byDID, prev.DID)
	}
	o.byEmail[email] = e
	o.byDID[e.DID] = e
	return nil
}

func (o *StaticOracle) Resolve(ctx context.Context, hint string) (syntax.DID, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	e, ok := o.byEmail[hint]
	if !ok {
		subjectLookups.WithLabelValues("static", metrics.StatusNotFound).Inc()
		return "", ErrNotFound
	}
	subjectLookups.WithLabelValues("static", metrics.StatusOK).Inc()
	return e.DID, nil
}

func (o *StaticOracle) Profile(ctx context.Context, did syntax.DID) (*Profile, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	e, ok := o.byDID[did]
	if !ok {
		return nil, ErrNotFound
	}
	return &Profile{Email: e.Email, Name: e.Name}, nil
}
