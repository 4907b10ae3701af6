package identity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wot-id/identity/syntax"
)

type Document struct {
	ID                 syntax.DID                 `json:"id"`
	AlsoKnownAs        []string                   `json:"alsoKnownAs,omitempty"`
	Controller         StringList                 `json:"controller,omitempty"`
	VerificationMethod []VerificationMethod       `json:"verificationMethod,omitempty"`
	Authentication     []VerificationRelationship `json:"authentication,omitempty"`
	AssertionMethod    []VerificationRelationship `json:"assertionMethod,omitempty"`
	Service            []Service                  `json:"service,omitempty"`
}

type VerificationMethod struct {
	ID                 string          `json:"id"`
	Type               string          `json:"type"`
	Controller         string          `json:"controller"`
	PublicKeyJWK       json.RawMessage `json:"publicKeyJwk,omitempty"`
	PublicKeyMultibase string          `json:"publicKeyMultibase,omitempty"`
	PublicKeyBase58    string          `json:"publicKeyBase58,omitempty"`
}

type Service struct {
	ID              string          `json:"id"`
	Type            StringList      `json:"type"`
	ServiceEndpoint json.RawMessage `json:"serviceEndpoint"`
}

// Entry in a verification relationship section (eg, "authentication"): either a reference to a verification method by ID, or an embedded method.
type VerificationRelationship struct {
	Reference string
	Embedded  *VerificationMethod
}

func (v VerificationRelationship) MarshalJSON() ([]byte, error) {
	if v.Embedded != nil {
		return json.Marshal(v.Embedded)
	}
	return json.Marshal(v.Reference)
}

func (v *VerificationRelationship) UnmarshalJSON(b []byte) error {
	var ref string
	if err := json.Unmarshal(b, &ref); err == nil {
		v.Reference = ref
		v.Embedded = nil
		return nil
	}
	var vm VerificationMethod
	if err := json.Unmarshal(b, &vm); err != nil {
		return fmt.Errorf("verification relationship neither a reference nor a method: %w", err)
	}
	v.Reference = ""
	v.Embedded = &vm
	return nil
}

// A JSON value which may be either a single string or an array of strings.
type StringList []string

func (s StringList) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

func (s *StringList) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*s = StringList(list)
	return nil
}

// Expands a key identifier to an absolute DID URL, relative to the document DID. Accepts "#key-1", "key-1", or "did:example:123#key-1".
func (d *Document) AbsoluteID(id string) string {
	if strings.HasPrefix(id, "did:") {
		return id
	}
	return d.ID.WithFragment(id)
}

// Looks up a verification method by key identifier, including methods embedded in verification relationships. Relative and absolute identifiers are both accepted.
func (d *Document) FindVerificationMethod(kid string) (*VerificationMethod, bool) {
	if kid == "" {
		return nil, false
	}
	target := d.AbsoluteID(kid)
	for i := range d.VerificationMethod {
		if d.AbsoluteID(d.VerificationMethod[i].ID) == target {
			return &d.VerificationMethod[i], true
		}
	}
	for _, section := range [][]VerificationRelationship{d.Authentication, d.AssertionMethod} {
		for _, rel := range section {
			if rel.Embedded != nil && d.AbsoluteID(rel.Embedded.ID) == target {
				return rel.Embedded, true
			}
		}
	}
	return nil, false
}
