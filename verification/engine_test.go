package verification

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wot-id/identity/auth"
	"github.com/wot-id/identity/challenge"
	"github.com/wot-id/identity/identity"
	"github.com/wot-id/identity/subject"
	"github.com/wot-id/identity/syntax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine   *Engine
	resolver *identity.MockResolver
	store    *challenge.MemoryStore
	priv     ed25519.PrivateKey
	now      atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	did := subject.DevEntry.DID
	resolver := identity.NewMockResolver()
	resolver.Insert(&identity.Document{
		ID: did,
		VerificationMethod: []identity.VerificationMethod{{
			ID:           did.WithFragment("key-1"),
			Type:         "JsonWebKey2020",
			Controller:   did.String(),
			PublicKeyJWK: json.RawMessage(fmt.Sprintf(`{"kty":"OKP","crv":"Ed25519","x":"%s"}`, base64.RawURLEncoding.EncodeToString(pub))),
		}},
	})

	f := &fixture{resolver: resolver, priv: priv}
	f.now.Store(time.Now().UnixNano())
	clock := func() time.Time { return time.Unix(0, f.now.Load()) }

	f.store = challenge.NewMemoryStore(challenge.WithSweepInterval(0), challenge.WithClock(clock))
	t.Cleanup(func() { f.store.Close() })

	oracle, err := subject.NewStaticOracle(subject.DevEntry)
	require.NoError(t, err)

	f.engine = NewEngine(resolver, auth.NewEdDSAVerifier(), f.store, oracle)
	return f
}

func (f *fixture) sign(t *testing.T, nonce string) string {
	jws, err := auth.SignChallenge(subject.DevEntry.DID, "#key-1", nonce, f.priv, time.Minute)
	require.NoError(t, err)
	return jws
}

func TestEndToEnd(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	started, err := f.engine.Initiate(ctx, " User@Example.com ")
	require.NoError(err)
	assert.Equal(syntax.DID("did:iota:tst:0xplaceholderdidforuseratolecom"), started.DID)
	assert.NotEmpty(started.Challenge)

	jws := f.sign(t, started.Challenge)
	res, err := f.engine.Verify(ctx, started.DID.String(), started.Challenge, jws)
	require.NoError(err)
	assert.True(res.Valid)
	assert.Equal(StateAccepted, res.State)
	require.NotNil(res.User)
	assert.Equal("user@example.com", res.User.Email)
	assert.Equal("Example User", res.User.Name)

	// replay
	res, err = f.engine.Verify(ctx, started.DID.String(), started.Challenge, jws)
	require.NoError(err)
	assert.False(res.Valid)
	assert.Equal(StateRejected, res.State)
	assert.Equal(ReasonNoSuchChallenge, res.Reason)
	assert.Nil(res.User)
}

func TestReinitiateInvalidatesFirst(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.engine.Initiate(ctx, "user@example.com")
	require.NoError(err)
	second, err := f.engine.Initiate(ctx, "user@example.com")
	require.NoError(err)

	res, err := f.engine.Verify(ctx, first.DID.String(), first.Challenge, f.sign(t, first.Challenge))
	require.NoError(err)
	assert.False(res.Valid)
	assert.Equal(ReasonNonceMismatch, res.Reason)

	res, err = f.engine.Verify(ctx, second.DID.String(), second.Challenge, f.sign(t, second.Challenge))
	require.NoError(err)
	assert.True(res.Valid)
}

func TestMalformedInputContactsNobody(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Verify(ctx, "not-a-did", "nonce", f.sign(t, "nonce"))
	assert.ErrorIs(err, syntax.ErrMalformedIdentifier)

	_, err = f.engine.Verify(ctx, subject.DevEntry.DID.String(), "nonce", "garbage")
	assert.ErrorIs(err, auth.ErrMalformedSignature)

	_, err = f.engine.Verify(ctx, subject.DevEntry.DID.String(), "nonce", "eyJhbGciOiJIUzI1NiJ9.e30.c2ln")
	assert.ErrorIs(err, auth.ErrUnsupportedAlgorithm)

	assert.Equal(int64(0), f.resolver.Calls())
}

func TestResolutionFailureKeepsChallenge(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	started, err := f.engine.Initiate(ctx, "user@example.com")
	require.NoError(err)
	jws := f.sign(t, started.Challenge)

	f.resolver.SetError(fmt.Errorf("%w: connection refused", identity.ErrResolutionTransport))
	_, err = f.engine.Verify(ctx, started.DID.String(), started.Challenge, jws)
	assert.ErrorIs(err, identity.ErrResolutionTransport)

	f.resolver.SetError(identity.ErrDIDNotFound)
	_, err = f.engine.Verify(ctx, started.DID.String(), started.Challenge, jws)
	assert.ErrorIs(err, identity.ErrDIDNotFound)

	f.resolver.SetError(errors.New("something odd"))
	_, err = f.engine.Verify(ctx, started.DID.String(), started.Challenge, jws)
	assert.ErrorIs(err, identity.ErrResolutionProtocol)

	f.resolver.SetError(nil)
	res, err := f.engine.Verify(ctx, started.DID.String(), started.Challenge, jws)
	require.NoError(err)
	assert.True(res.Valid)
}

type slowResolver struct{}

func (slowResolver) ResolveDID(ctx context.Context, did syntax.DID) (*identity.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolveTimeout(t *testing.T) {
	f := newFixture(t)
	f.engine.Resolver = slowResolver{}
	f.engine.ResolveTimeout = 20 * time.Millisecond

	_, err := f.engine.Verify(context.Background(), subject.DevEntry.DID.String(), "nonce", f.sign(t, "nonce"))
	assert.ErrorIs(t, err, identity.ErrResolutionTransport)
}

func TestRejections(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	did := subject.DevEntry.DID.String()

	// tampered signature consumes the challenge
	started, err := f.engine.Initiate(ctx, "user@example.com")
	require.NoError(err)
	jws := f.sign(t, started.Challenge)
	tampered := jws[:len(jws)-2] + flipChar(jws[len(jws)-2]) + jws[len(jws)-1:]
	res, err := f.engine.Verify(ctx, did, started.Challenge, tampered)
	require.NoError(err)
	assert.Equal(ReasonSignatureInvalid, res.Reason)
	res, err = f.engine.Verify(ctx, did, started.Challenge, jws)
	require.NoError(err)
	assert.Equal(ReasonNoSuchChallenge, res.Reason)

	// unknown key also consumes the challenge
	started, err = f.engine.Initiate(ctx, "user@example.com")
	require.NoError(err)
	other, err := auth.SignChallenge(subject.DevEntry.DID, "#key-9", started.Challenge, f.priv, time.Minute)
	require.NoError(err)
	res, err = f.engine.Verify(ctx, did, started.Challenge, other)
	require.NoError(err)
	assert.Equal(ReasonKeyNotFound, res.Reason)
	res, err = f.engine.Verify(ctx, did, started.Challenge, f.sign(t, started.Challenge))
	require.NoError(err)
	assert.Equal(ReasonNoSuchChallenge, res.Reason)

	// expired
	started, err = f.engine.Initiate(ctx, "user@example.com")
	require.NoError(err)
	f.now.Add(int64(challenge.DefaultTTL + time.Second))
	res, err = f.engine.Verify(ctx, did, started.Challenge, f.sign(t, started.Challenge))
	require.NoError(err)
	assert.Equal(ReasonChallengeExpired, res.Reason)

	// signed for a nonce which was never issued
	res, err = f.engine.Verify(ctx, did, "made-up", f.sign(t, "made-up"))
	require.NoError(err)
	assert.Equal(ReasonNoSuchChallenge, res.Reason)
}

// changes a base64url character so the decoded signature differs
func flipChar(c byte) string {
	if c == 'A' {
		return "B"
	}
	return "A"
}

func TestConcurrentVerify(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	started, err := f.engine.Initiate(ctx, "user@example.com")
	require.NoError(err)
	jws := f.sign(t, started.Challenge)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.Verify(ctx, started.DID.String(), started.Challenge, jws)
			if err == nil && res.Valid {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())
}

type brokenOracle struct{ err error }

func (b brokenOracle) Resolve(ctx context.Context, hint string) (syntax.DID, error) {
	return "", b.err
}

func TestInitiateErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.Initiate(ctx, "")
	assert.ErrorIs(err, subject.ErrInvalidHint)

	_, err = f.engine.Initiate(ctx, "nobody@example.com")
	assert.ErrorIs(err, ErrSubjectNotFound)

	f.engine.Oracle = brokenOracle{err: fmt.Errorf("%w: db down", subject.ErrUnavailable)}
	_, err = f.engine.Initiate(ctx, "user@example.com")
	assert.ErrorIs(err, ErrSubjectUnavailable)

	f.engine.Oracle = brokenOracle{err: context.DeadlineExceeded}
	_, err = f.engine.Initiate(ctx, "user@example.com")
	assert.ErrorIs(err, ErrSubjectUnavailable)
	assert.False(strings.Contains(err.Error(), "not found"))
}

func TestProfileWithoutProfiler(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	// oracle without the profile capability
	f.engine.Oracle = subjectFunc(func(ctx context.Context, hint string) (syntax.DID, error) {
		return subject.DevEntry.DID, nil
	})

	started, err := f.engine.Initiate(ctx, "user@example.com")
	require.NoError(err)
	res, err := f.engine.Verify(ctx, started.DID.String(), started.Challenge, f.sign(t, started.Challenge))
	require.NoError(err)
	assert.True(res.Valid)
	require.NotNil(res.User)
	assert.Empty(res.User.Email)
}

type subjectFunc func(ctx context.Context, hint string) (syntax.DID, error)

func (f subjectFunc) Resolve(ctx context.Context, hint string) (syntax.DID, error) {
	return f(ctx, hint)
}
