package verification

import (
	"log/slog"

	"github.com/wot-id/identity/subject"
	"github.com/wot-id/identity/syntax"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Progress of a single verification request.
type State string

const (
	StateReceived  State = "received"
	StateResolving State = "resolving"
	StateResolved  State = "resolved"
	StateVerifying State = "verifying"
	StateAccepted  State = "accepted"
	StateRejected  State = "rejected"
)

// Why a verification was rejected.
type Reason string

const (
	ReasonSignatureInvalid Reason = "SignatureInvalid"
	ReasonKeyNotFound      Reason = "KeyNotFound"
	ReasonNoSuchChallenge  Reason = "NoSuchChallenge"
	ReasonChallengeExpired Reason = "ChallengeExpired"
	ReasonNonceMismatch    Reason = "NonceMismatch"
)

type Result struct {
	Valid bool
	// Terminal state: StateAccepted or StateRejected
	State  State
	Reason Reason
	DID    syntax.DID
	// Set only when Valid
	User *subject.Profile
}

func rejected(did syntax.DID, reason Reason) *Result {
	return &Result{Valid: false, State: StateRejected, Reason: reason, DID: did}
}

// records state transitions on the span and debug log
type tracker struct {
	span   trace.Span
	logger *slog.Logger
	state  State
}

func (t *tracker) enter(s State) {
	t.state = s
	t.span.AddEvent(string(s))
	t.logger.Debug("verification state", "state", s)
}

func (t *tracker) fail(err error) error {
	t.span.SetStatus(codes.Error, err.Error())
	t.logger.Info("verification failed", "state", t.state, "err", err)
	t.state = StateRejected
	return err
}
