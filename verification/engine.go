// Package verification runs the challenge-response protocol: issue a challenge for a subject, then accept or reject the signed response.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wot-id/identity/auth"
	"github.com/wot-id/identity/challenge"
	"github.com/wot-id/identity/identity"
	"github.com/wot-id/identity/pkg/metrics"
	"github.com/wot-id/identity/subject"
	"github.com/wot-id/identity/syntax"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("verification")

// The subject oracle has no DID for the hint.
var ErrSubjectNotFound = subject.ErrNotFound

// The subject oracle could not be consulted.
var ErrSubjectUnavailable = subject.ErrUnavailable

const DefaultTimeout = 5 * time.Second

type Engine struct {
	Resolver identity.Resolver
	Verifier auth.Verifier
	Store    challenge.Store
	Oracle   subject.Oracle

	// Bounds each DID resolution. Zero means DefaultTimeout.
	ResolveTimeout time.Duration
	// Bounds each oracle lookup. Zero means DefaultTimeout.
	OracleTimeout time.Duration

	Logger *slog.Logger
}

func NewEngine(resolver identity.Resolver, verifier auth.Verifier, store challenge.Store, oracle subject.Oracle) *Engine {
	return &Engine{
		Resolver:       resolver,
		Verifier:       verifier,
		Store:          store,
		Oracle:         oracle,
		ResolveTimeout: DefaultTimeout,
		OracleTimeout:  DefaultTimeout,
		Logger:         slog.Default().With("component", "verification"),
	}
}

type Initiation struct {
	DID       syntax.DID
	Challenge string
	IssuedAt  time.Time
}

// Maps a login hint to its DID and issues a fresh challenge for it, invalidating any outstanding one.
func (e *Engine) Initiate(ctx context.Context, hint string) (*Initiation, error) {
	ctx, span := tracer.Start(ctx, "Engine.Initiate")
	defer span.End()

	normalized, err := subject.NormalizeHint(hint)
	if err != nil {
		return nil, err
	}

	did, err := e.lookupSubject(ctx, normalized)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		initiations.WithLabelValues(errorStatus(err)).Inc()
		return nil, err
	}
	span.SetAttributes(attribute.String("did", did.String()))

	c, err := e.Store.Issue(ctx, did)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		initiations.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("issuing challenge: %w", err)
	}

	initiations.WithLabelValues(metrics.StatusOK).Inc()
	e.logger().Info("challenge initiated", "did", did)
	return &Initiation{DID: did, Challenge: c.Nonce, IssuedAt: c.IssuedAt}, nil
}

func (e *Engine) lookupSubject(ctx context.Context, hint string) (syntax.DID, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(e.OracleTimeout))
	defer cancel()

	did, err := e.Oracle.Resolve(ctx, hint)
	switch {
	case err == nil:
		return did, nil
	case errors.Is(err, subject.ErrNotFound):
		return "", err
	case errors.Is(err, subject.ErrUnavailable):
		return "", err
	default:
		// timeouts and anything unclassified count as the oracle being unavailable
		return "", fmt.Errorf("%w: %w", ErrSubjectUnavailable, err)
	}
}

// Checks a signed challenge response.
//
// Malformed input (DID or JWS) and resolution failures are returned as errors, and leave the outstanding challenge untouched. Once the DID document is in hand, the challenge is consumed exactly once, whatever the signature check says; failures from that point on are a Rejected result rather than an error (except for an unsupported key algorithm, or the challenge store being unreachable).
func (e *Engine) Verify(ctx context.Context, rawDID, nonce, jws string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Engine.Verify")
	defer span.End()

	start := time.Now()
	t := tracker{span: span, logger: e.logger()}
	t.enter(StateReceived)

	did, err := syntax.ParseDID(rawDID)
	if err != nil {
		return nil, t.fail(err)
	}
	t.logger = t.logger.With("did", did)
	span.SetAttributes(attribute.String("did", did.String()))

	// cheap structural checks before any collaborator is contacted
	if _, err := auth.ParseCompact(jws); err != nil {
		return nil, t.fail(err)
	}

	t.enter(StateResolving)
	doc, err := e.resolve(ctx, did)
	if err != nil {
		verifications.WithLabelValues(string(StateRejected), "resolution_"+resolutionStatus(err)).Inc()
		return nil, t.fail(err)
	}
	t.enter(StateResolved)

	t.enter(StateVerifying)
	ok, verr := e.Verifier.Check(ctx, jws, doc, did, nonce)
	cerr := e.Store.Consume(ctx, did, nonce)

	var res *Result
	switch {
	case verr != nil && errors.Is(verr, auth.ErrKeyNotFound):
		res = rejected(did, ReasonKeyNotFound)
	case verr != nil:
		return nil, t.fail(verr)
	case !ok:
		res = rejected(did, ReasonSignatureInvalid)
	case cerr == nil:
		res = &Result{Valid: true, State: StateAccepted, DID: did}
	case errors.Is(cerr, challenge.ErrNoSuchChallenge):
		res = rejected(did, ReasonNoSuchChallenge)
	case errors.Is(cerr, challenge.ErrChallengeExpired):
		res = rejected(did, ReasonChallengeExpired)
	case errors.Is(cerr, challenge.ErrNonceMismatch):
		res = rejected(did, ReasonNonceMismatch)
	default:
		return nil, t.fail(fmt.Errorf("consuming challenge: %w", cerr))
	}

	if res.Valid {
		res.User = e.profile(ctx, did)
	}

	t.enter(res.State)
	span.SetAttributes(attribute.String("reason", string(res.Reason)))
	verifications.WithLabelValues(string(res.State), string(res.Reason)).Inc()
	verificationDuration.WithLabelValues(string(res.State)).Observe(time.Since(start).Seconds())
	t.logger.Info("verification finished", "state", res.State, "reason", res.Reason)
	return res, nil
}

func (e *Engine) resolve(ctx context.Context, did syntax.DID) (*identity.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(e.ResolveTimeout))
	defer cancel()

	doc, err := e.Resolver.ResolveDID(ctx, did)
	if err != nil {
		if resolutionStatus(err) == metrics.StatusError {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, fmt.Errorf("%w: %w", identity.ErrResolutionTransport, err)
			}
			return nil, fmt.Errorf("%w: %w", identity.ErrResolutionProtocol, err)
		}
		return nil, err
	}
	return doc, nil
}

// Best-effort lookup of subject attributes. Never nil.
func (e *Engine) profile(ctx context.Context, did syntax.DID) *subject.Profile {
	p, ok := e.Oracle.(subject.Profiler)
	if !ok {
		return &subject.Profile{}
	}
	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(e.OracleTimeout))
	defer cancel()

	prof, err := p.Profile(ctx, did)
	if err != nil || prof == nil {
		e.logger().Warn("subject profile lookup failed", "did", did, "err", err)
		return &subject.Profile{}
	}
	return prof
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

func resolutionStatus(err error) string {
	switch {
	case errors.Is(err, identity.ErrDIDNotFound):
		return metrics.StatusNotFound
	case errors.Is(err, identity.ErrResolutionTransport):
		return "transport"
	case errors.Is(err, identity.ErrResolutionProtocol):
		return "protocol"
	default:
		return metrics.StatusError
	}
}

func errorStatus(err error) string {
	switch {
	case errors.Is(err, ErrSubjectNotFound):
		return metrics.StatusNotFound
	case errors.Is(err, ErrSubjectUnavailable):
		return "unavailable"
	default:
		return metrics.StatusError
	}
}
