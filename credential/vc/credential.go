// Package vc issues and validates the cohort access credentials.
package vc

import (
	"fmt"
	"time"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/credential/common/jsonmap"
	"github.com/pilacorp/go-fedtrust/credential/common/jwt"
)

const (
	// TypeVerifiableCredential is the base type every credential carries.
	TypeVerifiableCredential = "VerifiableCredential"

	// DefaultClaimType is the claim type of a cohort access credential.
	DefaultClaimType = "FederatedLearningAccess"
	// DefaultCohortName is the name attribute of a cohort access credential.
	DefaultCohortName = "FederatedLearningCohort"

	jwtClaimKey = "vc"
)

// Format selects how an issued credential is serialized.
type Format int

const (
	// FormatEmbedded is a JSON document with an embedded data integrity proof.
	FormatEmbedded Format = iota
	// FormatJWT is a compact ES256K JWS carrying the document in its "vc" claim.
	FormatJWT
)

func (f Format) String() string {
	switch f {
	case FormatEmbedded:
		return "embedded"
	case FormatJWT:
		return "jwt"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Subject represents the credentialSubject field.
type Subject struct {
	ID           string                 // Subject identifier
	CustomFields map[string]interface{} // Additional subject data
}

// Contents represents the structured contents of a Credential.
type Contents struct {
	Context        []string  // JSON-LD contexts
	ID             string    // Credential identifier
	Types          []string  // Credential types
	Issuer         string    // Issuer identifier
	IssuanceDate   time.Time // Issuance date
	ExpirationDate time.Time // Expiration date, zero when the credential never expires
	Subject        Subject   // Credential subject
}

// Credential is a parsed credential together with its serialized form.
type Credential struct {
	Contents
	Format Format

	raw []byte
	doc jsonmap.JSONMap
}

// Raw returns the serialized credential exactly as it was issued or received.
func (c *Credential) Raw() []byte {
	return c.raw
}

// Document returns the credential's JSON document, without the JWT envelope.
func (c *Credential) Document() jsonmap.JSONMap {
	return c.doc
}

// Parse parses a credential in either format without checking its signature.
// Structural problems are reported as a Malformed ValidationError.
func Parse(raw []byte) (*Credential, error) {
	if len(raw) == 0 {
		return nil, fedtrust.NewValidationError(fedtrust.Malformed, "credential is empty")
	}

	format := FormatEmbedded
	var (
		doc jsonmap.JSONMap
		err error
	)
	if jwt.IsJWT(raw) {
		format = FormatJWT
		doc, err = jwt.GetDocumentFromJWT(string(raw), jwtClaimKey)
	} else {
		doc, err = jsonmap.Parse(raw)
	}
	if err != nil {
		return nil, fedtrust.NewValidationError(fedtrust.Malformed, "failed to parse credential: %w", err)
	}

	return fromDocument(doc, raw, format)
}

func fromDocument(doc jsonmap.JSONMap, raw []byte, format Format) (*Credential, error) {
	if err := credentialSchema.Validate(doc); err != nil {
		return nil, fedtrust.NewValidationError(fedtrust.Malformed, "%w", err)
	}

	contents, err := parseContents(doc)
	if err != nil {
		return nil, fedtrust.NewValidationError(fedtrust.Malformed, "%w", err)
	}

	return &Credential{Contents: *contents, Format: format, raw: raw, doc: doc}, nil
}
