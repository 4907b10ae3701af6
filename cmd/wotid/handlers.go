package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wot-id/identity/auth"
	"github.com/wot-id/identity/challenge"
	"github.com/wot-id/identity/client"
	"github.com/wot-id/identity/health"
	"github.com/wot-id/identity/identity"
	"github.com/wot-id/identity/subject"
	"github.com/wot-id/identity/syntax"
	"github.com/wot-id/identity/verification"

	"github.com/labstack/echo/v4"
)

type GenericError = client.ErrorBody

// POST /api/v1/identity/initiate-challenge
func (srv *Server) HandleInitiateChallenge(c echo.Context) error {
	ctx := c.Request().Context()

	var body client.InitiateChallengeRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "BadRequest",
			Message: "invalid JSON request body",
		})
	}
	if strings.TrimSpace(body.Email) == "" {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "BadRequest",
			Message: "missing or empty field: email",
		})
	}

	out, err := srv.engine.Initiate(ctx, body.Email)
	if err != nil {
		return srv.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, client.InitiateChallengeResponse{
		DID:       out.DID.String(),
		Challenge: out.Challenge,
	})
}

// POST /api/v1/identity/verify-signature
func (srv *Server) HandleVerifySignature(c echo.Context) error {
	ctx := c.Request().Context()

	var body client.VerifySignatureRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "BadRequest",
			Message: "invalid JSON request body",
		})
	}
	var missing []string
	if body.DID == "" {
		missing = append(missing, "did")
	}
	if body.Challenge == "" {
		missing = append(missing, "challenge")
	}
	if body.Signature == "" {
		missing = append(missing, "signature")
	}
	if len(missing) > 0 {
		return c.JSON(http.StatusBadRequest, GenericError{
			Error:   "BadRequest",
			Message: "missing or empty fields: " + strings.Join(missing, ", "),
		})
	}

	res, err := srv.engine.Verify(ctx, body.DID, body.Challenge, body.Signature)
	if err != nil {
		return srv.errorResponse(c, err)
	}
	out := client.VerifySignatureResponse{IsValid: res.Valid}
	if res.Valid {
		out.User = res.User
	}
	return c.JSON(http.StatusOK, out)
}

// Classifies an engine error into a status code and a short message. Error details stay in the logs.
func errorClass(err error) (int, GenericError) {
	switch {
	case errors.Is(err, syntax.ErrMalformedIdentifier):
		return http.StatusBadRequest, GenericError{Error: "MalformedIdentifier", Message: "invalid DID syntax"}
	case errors.Is(err, auth.ErrMalformedSignature):
		return http.StatusBadRequest, GenericError{Error: "MalformedSignature", Message: "signature is not a valid compact JWS"}
	case errors.Is(err, auth.ErrUnsupportedAlgorithm):
		return http.StatusBadRequest, GenericError{Error: "UnsupportedAlgorithm", Message: "signature algorithm or key type not supported"}
	case errors.Is(err, subject.ErrInvalidHint):
		return http.StatusBadRequest, GenericError{Error: "InvalidEmail", Message: "email is not valid"}
	case errors.Is(err, verification.ErrSubjectNotFound):
		return http.StatusNotFound, GenericError{Error: "SubjectNotFound", Message: "no identity registered for this email"}
	case errors.Is(err, verification.ErrSubjectUnavailable):
		return http.StatusServiceUnavailable, GenericError{Error: "SubjectUnavailable", Message: "subject directory unavailable"}
	case errors.Is(err, identity.ErrResolutionTransport):
		return http.StatusServiceUnavailable, GenericError{Error: "LedgerUnavailable", Message: "DID resolution unavailable"}
	case errors.Is(err, identity.ErrDIDNotFound):
		return http.StatusInternalServerError, GenericError{Error: "DIDNotFound", Message: "DID document not found"}
	case errors.Is(err, identity.ErrResolutionProtocol):
		return http.StatusInternalServerError, GenericError{Error: "DIDResolutionFailed", Message: "DID resolution failed"}
	case errors.Is(err, challenge.ErrStoreUnavailable), errors.Is(err, challenge.ErrStoreFull):
		return http.StatusServiceUnavailable, GenericError{Error: "ChallengeStoreUnavailable", Message: "challenge store unavailable"}
	default:
		return http.StatusInternalServerError, GenericError{Error: "InternalServerError", Message: "internal error"}
	}
}

func (srv *Server) errorResponse(c echo.Context, err error) error {
	code, body := errorClass(err)
	if code >= 500 {
		srv.logger.Warn("request failed", "path", c.Path(), "class", body.Error, "err", err)
	} else {
		srv.logger.Debug("request rejected", "path", c.Path(), "class", body.Error, "err", err)
	}
	return c.JSON(code, body)
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	body := GenericError{Error: "InternalServerError", Message: "internal error"}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		body.Error = strings.ReplaceAll(http.StatusText(code), " ", "")
		body.Message = fmt.Sprintf("%v", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("wotid-http-internal-error", "err", err)
	}
	if c.Response().Committed {
		return
	}
	if err := c.JSON(code, body); err != nil {
		srv.logger.Error("failed to write error response", "err", err)
	}
}

// GET /health
func (srv *Server) HandleHealthCheck(c echo.Context) error {
	report := srv.health.Run(c.Request().Context())
	code := http.StatusOK
	if report.Status == health.StatusError {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, report)
}

var homeMessage string = `
               _   _     _
 __      _____ | |_(_) __| |
 \ \ /\ / / _ \| __| |/ _' |
  \ V  V / (_) | |_| | (_| |
   \_/\_/ \___/ \__|_|\__,_|

This is a DID challenge-response identity verification service.

  POST /api/v1/identity/initiate-challenge
  POST /api/v1/identity/verify-signature
  GET  /health
`

func (srv *Server) WebHome(c echo.Context) error {
	return c.String(http.StatusOK, homeMessage)
}
