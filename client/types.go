package client

import (
	"github.com/wot-id/identity/subject"
)

type InitiateChallengeRequest struct {
	Email string `json:"email"`
}

type InitiateChallengeResponse struct {
	DID       string `json:"did"`
	Challenge string `json:"challenge"`
}

type VerifySignatureRequest struct {
	DID       string `json:"did"`
	Challenge string `json:"challenge"`
	// compact JWS
	Signature string `json:"signature"`
}

type VerifySignatureResponse struct {
	IsValid bool             `json:"isValid"`
	User    *subject.Profile `json:"user,omitempty"`
}

// Body of every non-2xx API response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
