package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCredential() map[string]interface{} {
	return map[string]interface{}{
		"@context":     []interface{}{"https://w3id.org/fedtrust/v1"},
		"id":           "urn:uuid:1234",
		"type":         []interface{}{"VerifiableCredential", "FederatedLearningAccess"},
		"issuer":       "did:fed:0x1111111111111111111111111111111111111111",
		"issuanceDate": "2025-08-05T10:00:00Z",
		"credentialSubject": map[string]interface{}{
			"id": "did:fed:0x2222222222222222222222222222222222222222",
		},
		"proof": map[string]interface{}{
			"type":               "DataIntegrityProof",
			"created":            "2025-08-05T10:00:00Z",
			"verificationMethod": "did:fed:0x1111111111111111111111111111111111111111#issuerKey",
			"proofPurpose":       "assertionMethod",
			"proofValue":         strings.Repeat("ab", 65),
		},
	}
}

func TestCredentialSchema(t *testing.T) {
	v := MustValidator(CredentialSchema)

	tests := []struct {
		name     string
		mutate   func(m map[string]interface{})
		errorMsg string
	}{
		{name: "valid", mutate: func(map[string]interface{}) {}},
		{
			name:     "missing issuer",
			mutate:   func(m map[string]interface{}) { delete(m, "issuer") },
			errorMsg: "issuer is required",
		},
		{
			name: "subject is not a DID",
			mutate: func(m map[string]interface{}) {
				m["credentialSubject"] = map[string]interface{}{"id": "alice"}
			},
			errorMsg: "credentialSubject.id",
		},
		{
			name:     "no VerifiableCredential type",
			mutate:   func(m map[string]interface{}) { m["type"] = []interface{}{"Other"} },
			errorMsg: "type",
		},
		{
			name: "short proof value",
			mutate: func(m map[string]interface{}) {
				m["proof"].(map[string]interface{})["proofValue"] = "abcd"
			},
			errorMsg: "proof.proofValue",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validCredential()
			tt.mutate(doc)

			err := v.Validate(doc)
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestPresentationSchema(t *testing.T) {
	v := MustValidator(PresentationSchema)

	doc := map[string]interface{}{
		"@context":             []interface{}{"https://w3id.org/fedtrust/v1"},
		"type":                 []interface{}{"VerifiablePresentation"},
		"holder":               "did:fed:0x2222222222222222222222222222222222222222",
		"verifiableCredential": []interface{}{validCredential(), validCredential()},
		"proof":                validCredential()["proof"],
	}
	doc["proof"].(map[string]interface{})["proofPurpose"] = "authentication"

	assert.NoError(t, v.Validate(doc))

	doc["verifiableCredential"] = []interface{}{}
	assert.Error(t, v.Validate(doc))
}

func TestNewValidatorInvalidSchema(t *testing.T) {
	_, err := NewValidator(`{"type": `)
	assert.Error(t, err)
}
