package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wot-id/identity/ledger"
	"github.com/wot-id/identity/syntax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimal JSON-RPC node which serves the resolution fixture for one DID
func fakeNode(t *testing.T, fixture []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64   `json:"id"`
			Method string   `json:"method"`
			Params []string `json:"params"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch {
		case req.Method != DefaultResolveMethod:
			out["error"] = map[string]any{"code": -32601, "message": "Method not found"}
		case req.Params[0] == fixtureDID.String():
			out["result"] = json.RawMessage(fixture)
		case req.Params[0] == "did:iota:tst:0xgone":
			out["error"] = map[string]any{"code": -32000, "message": "Object not found"}
		case req.Params[0] == "did:iota:tst:0xbroken":
			out["error"] = map[string]any{"code": -32603, "message": "internal error"}
		default:
			out["result"] = nil
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func TestLedgerResolver(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	srv := fakeNode(t, loadFixture(t))
	defer srv.Close()

	res := NewLedgerResolver(ledger.NewClient(srv.URL))
	doc, err := res.ResolveDID(ctx, fixtureDID)
	require.NoError(err)
	assert.Equal(fixtureDID, doc.ID)

	_, err = res.ResolveDID(ctx, syntax.DID("did:iota:tst:0xmissing"))
	assert.ErrorIs(err, ErrDIDNotFound)

	_, err = res.ResolveDID(ctx, syntax.DID("did:iota:tst:0xgone"))
	assert.ErrorIs(err, ErrDIDNotFound)

	_, err = res.ResolveDID(ctx, syntax.DID("did:iota:tst:0xbroken"))
	assert.ErrorIs(err, ErrResolutionProtocol)

	res.Method = "iota_nothing"
	_, err = res.ResolveDID(ctx, fixtureDID)
	assert.ErrorIs(err, ErrResolutionProtocol)
}

func TestLedgerResolverTransport(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	res := NewLedgerResolver(ledger.NewClient(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := res.ResolveDID(ctx, fixtureDID)
	assert.ErrorIs(err, ErrResolutionTransport)

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	res = NewLedgerResolver(ledger.NewClient(down.URL))
	_, err = res.ResolveDID(context.Background(), fixtureDID)
	assert.ErrorIs(err, ErrResolutionTransport)
}

func TestHTTPResolver(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	fixture := loadFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1.0/identifiers/" + fixtureDID.String():
			w.Header().Set("Content-Type", "application/ld+json")
			_, _ = w.Write(fixture)
		case "/1.0/identifiers/did:iota:tst:0xdeactivated":
			w.WriteHeader(http.StatusGone)
		case "/1.0/identifiers/did:iota:tst:0xbroken":
			w.WriteHeader(http.StatusInternalServerError)
		case "/1.0/identifiers/did:iota:tst:0xweird":
			w.WriteHeader(http.StatusTeapot)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	res := NewHTTPResolver(srv.URL + "/")
	doc, err := res.ResolveDID(ctx, fixtureDID)
	require.NoError(err)
	assert.Equal(fixtureDID, doc.ID)

	_, err = res.ResolveDID(ctx, syntax.DID("did:iota:tst:0xmissing"))
	assert.ErrorIs(err, ErrDIDNotFound)
	_, err = res.ResolveDID(ctx, syntax.DID("did:iota:tst:0xdeactivated"))
	assert.ErrorIs(err, ErrDIDNotFound)
	_, err = res.ResolveDID(ctx, syntax.DID("did:iota:tst:0xbroken"))
	assert.ErrorIs(err, ErrResolutionTransport)
	_, err = res.ResolveDID(ctx, syntax.DID("did:iota:tst:0xweird"))
	assert.ErrorIs(err, ErrResolutionProtocol)
}

func TestKeyResolver(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(err)
	did := DIDKeyFromEd25519(pub)
	_, err = syntax.ParseDID(did.String())
	require.NoError(err)

	doc, err := KeyResolver{}.ResolveDID(ctx, did)
	require.NoError(err)
	assert.Equal(did, doc.ID)
	require.Len(doc.VerificationMethod, 1)
	vm, ok := doc.FindVerificationMethod(doc.VerificationMethod[0].ID)
	require.True(ok)
	got, err := vm.PublicKey()
	require.NoError(err)
	assert.True(pub.Equal(got))

	_, err = KeyResolver{}.ResolveDID(ctx, syntax.DID("did:key:abc"))
	assert.ErrorIs(err, ErrResolutionProtocol)
	_, err = KeyResolver{}.ResolveDID(ctx, syntax.DID("did:web:example.com"))
	assert.ErrorIs(err, ErrDIDNotFound)
}

func TestMultiResolver(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	mock := NewMockResolver()
	mock.Insert(&Document{ID: fixtureDID})

	mr := NewMultiResolver()
	mr.AddHandler("iota", mock)
	mr.AddHandler("key", KeyResolver{})

	doc, err := mr.ResolveDID(ctx, fixtureDID)
	require.NoError(err)
	assert.Equal(fixtureDID, doc.ID)

	_, err = mr.ResolveDID(ctx, syntax.DID("did:web:example.com"))
	assert.ErrorIs(err, ErrMethodNotSupported)
	assert.ErrorIs(err, ErrDIDNotFound)

	mr.Fallback = mock
	_, err = mr.ResolveDID(ctx, syntax.DID("did:web:example.com"))
	assert.ErrorIs(err, ErrDIDNotFound)
	assert.Equal(int64(2), mock.Calls())
}

func TestResolveString(t *testing.T) {
	assert := assert.New(t)
	mock := NewMockResolver()

	_, err := ResolveString(context.Background(), mock, "not-a-did")
	assert.ErrorIs(err, syntax.ErrMalformedIdentifier)
	assert.Equal(int64(0), mock.Calls())
}
