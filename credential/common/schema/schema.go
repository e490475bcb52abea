package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const didPattern = "^did:[a-z0-9]+:[A-Za-z0-9._:%-]+$"

const proofSchema = `{
	"type": "object",
	"required": ["type", "created", "verificationMethod", "proofPurpose", "proofValue"],
	"properties": {
		"type": {"type": "string", "minLength": 1},
		"created": {"type": "string", "minLength": 1},
		"verificationMethod": {"type": "string", "pattern": "^did:[^#]+#.+$"},
		"proofPurpose": {"type": "string", "enum": ["assertionMethod", "authentication"]},
		"proofValue": {"type": "string", "pattern": "^[0-9a-f]{130}$"},
		"challenge": {"type": "string"},
		"expires": {"type": "string"}
	}
}`

// CredentialSchema describes the structure every credential must have. The proof is
// optional here because JWT credentials carry their signature outside the document.
var CredentialSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["@context", "id", "type", "issuer", "issuanceDate", "credentialSubject"],
	"properties": {
		"@context": {"type": "array", "minItems": 1, "items": {"type": "string"}},
		"id": {"type": "string", "minLength": 1},
		"type": {
			"type": "array",
			"minItems": 1,
			"contains": {"const": "VerifiableCredential"},
			"items": {"type": "string"}
		},
		"issuer": {"type": "string", "pattern": "` + didPattern + `"},
		"issuanceDate": {"type": "string", "minLength": 1},
		"expirationDate": {"type": "string", "minLength": 1},
		"credentialSubject": {
			"type": "object",
			"required": ["id"],
			"properties": {"id": {"type": "string", "pattern": "` + didPattern + `"}}
		},
		"proof": ` + proofSchema + `
	}
}`

// PresentationSchema describes the structure of an embedded presentation. The credential
// count is deliberately left open; callers report multiple credentials separately.
var PresentationSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["@context", "type", "holder", "verifiableCredential", "proof"],
	"properties": {
		"@context": {"type": "array", "minItems": 1, "items": {"type": "string"}},
		"type": {
			"type": "array",
			"minItems": 1,
			"contains": {"const": "VerifiablePresentation"},
			"items": {"type": "string"}
		},
		"holder": {"type": "string", "pattern": "` + didPattern + `"},
		"verifiableCredential": {"type": "array", "minItems": 1},
		"proof": ` + proofSchema + `
	}
}`

// Validator validates decoded JSON documents against a compiled JSON schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles a JSON schema.
func NewValidator(jsonSchema string) (*Validator, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(jsonSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	return &Validator{schema: s}, nil
}

// MustValidator is NewValidator for schemas compiled into the binary.
func MustValidator(jsonSchema string) *Validator {
	v, err := NewValidator(jsonSchema)
	if err != nil {
		panic(err)
	}

	return v
}

// Validate checks doc against the schema and reports every violation in one error.
func (v *Validator) Validate(doc map[string]interface{}) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate schema: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}

		return fmt.Errorf("document validation failed: %s", strings.Join(msgs, "; "))
	}

	return nil
}
