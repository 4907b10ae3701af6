package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/wot-id/identity/subject"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportSubjects(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	dir := t.TempDir()
	dburl := "sqlite://" + filepath.Join(dir, "subjects.sqlite")
	fname := filepath.Join(dir, "subjects.json")
	require.NoError(t, os.WriteFile(fname, []byte(`[
		{"email": "Alice@Example.com", "did": "did:example:alice", "name": "Alice"},
		{"email": "bob@example.com", "did": "did:example:bob"}
	]`), 0644))

	entries, err := subject.LoadEntries(fname)
	require.NoError(t, err)
	n, err := importSubjects(ctx, dburl, entries, discardLogger)
	require.NoError(t, err)
	assert.Equal(2, n)

	// re-import updates in place
	n, err = importSubjects(ctx, dburl, []subject.Entry{{Email: "bob@example.com", DID: "did:example:bob2"}}, discardLogger)
	require.NoError(t, err)
	assert.Equal(1, n)

	n, err = importSubjects(ctx, dburl, []subject.Entry{
		{Email: "carol@example.com", DID: "did:example:carol"},
		{Email: "not-an-email", DID: "did:example:dave"},
	}, discardLogger)
	assert.Error(err)
	assert.Equal(1, n)

	oracle, _, closers, err := configOracle(&Config{DatabaseURL: dburl}, nil, discardLogger)
	require.NoError(t, err)
	defer closeAll(discardLogger, closers)

	did, err := oracle.Resolve(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal("did:example:alice", did.String())
	did, err = oracle.Resolve(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal("did:example:bob2", did.String())
	did, err = oracle.Resolve(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Equal("did:example:carol", did.String())
	_, err = oracle.Resolve(ctx, "dave@example.com")
	assert.ErrorIs(err, subject.ErrNotFound)

	_, err = importSubjects(ctx, "mysql://nope", entries, discardLogger)
	assert.Error(err)
}
