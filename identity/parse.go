package identity

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/wot-id/identity/syntax"
)

// DID resolution result envelope, as returned by universal resolvers and some ledger nodes.
type resolutionResult struct {
	Document           json.RawMessage     `json:"didDocument"`
	DocumentMetadata   *documentMetadata   `json:"didDocumentMetadata"`
	ResolutionMetadata *resolutionMetadata `json:"didResolutionMetadata"`
}

type documentMetadata struct {
	Deactivated bool `json:"deactivated"`
}

type resolutionMetadata struct {
	Error string `json:"error"`
}

// A body with any of the envelope keys is an envelope, even when the document itself is missing.
func (r *resolutionResult) isEnvelope() bool {
	return r.Document != nil || r.DocumentMetadata != nil || r.ResolutionMetadata != nil
}

// Interprets a resolver response body, which may be either a resolution result envelope or a bare DID document.
func parseResolution(did syntax.DID, body []byte) (*Document, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, ErrDIDNotFound
	}

	var envelope resolutionResult
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolutionProtocol, err)
	}

	docJSON := body
	if envelope.isEnvelope() {
		if envelope.ResolutionMetadata != nil {
			switch envelope.ResolutionMetadata.Error {
			case "":
			case "notFound":
				return nil, ErrDIDNotFound
			default:
				return nil, fmt.Errorf("%w: resolver error %q", ErrResolutionProtocol, envelope.ResolutionMetadata.Error)
			}
		}
		if envelope.DocumentMetadata != nil && envelope.DocumentMetadata.Deactivated {
			return nil, fmt.Errorf("%w: DID deactivated", ErrDIDNotFound)
		}
		docJSON = bytes.TrimSpace(envelope.Document)
		if len(docJSON) == 0 || bytes.Equal(docJSON, []byte("null")) {
			return nil, ErrDIDNotFound
		}
	}

	var doc Document
	if err := json.Unmarshal(docJSON, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing DID document: %w", ErrResolutionProtocol, err)
	}
	if doc.ID != did {
		return nil, fmt.Errorf("%w: document id %q does not match %q", ErrResolutionProtocol, doc.ID, did)
	}
	return &doc, nil
}
