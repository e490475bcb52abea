package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() map[string]interface{} {
	return map[string]interface{}{
		"@context": []interface{}{ContextURL},
		"id":       "urn:uuid:5f0c8f1e-1111-4a3a-9c1e-3f7f5b3f9a01",
		"type":     []interface{}{"VerifiableCredential", "FederatedLearningAccess"},
		"issuer":   "did:fed:0x1111111111111111111111111111111111111111",
		"credentialSubject": map[string]interface{}{
			"id":    "did:fed:0x2222222222222222222222222222222222222222",
			"name":  "FederatedLearningCohort",
			"round": 3,
		},
	}
}

func TestCanonicalizeDocumentIsDeterministic(t *testing.T) {
	first, err := CanonicalizeDocument(sampleDoc())
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := CanonicalizeDocument(sampleDoc())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, string(first), VocabURL+"issuer")
}

func TestCanonicalizeDocumentCoversValues(t *testing.T) {
	base, err := CanonicalizeDocument(sampleDoc())
	require.NoError(t, err)

	changed := sampleDoc()
	changed["credentialSubject"].(map[string]interface{})["name"] = "OtherCohort"

	other, err := CanonicalizeDocument(changed)
	require.NoError(t, err)

	assert.NotEqual(t, base, other)
}

func TestCanonicalizeDocumentRejectsRemoteContext(t *testing.T) {
	doc := sampleDoc()
	doc["credentialSubject"].(map[string]interface{})["@context"] = "https://example.org/remote"

	// nested contexts are stripped, so the document still canonicalizes offline
	_, err := CanonicalizeDocument(doc)
	assert.NoError(t, err)

	_, err = offlineLoader{}.LoadDocument("https://example.org/remote")
	assert.Error(t, err)
}

func TestCanonicalizeDocumentNil(t *testing.T) {
	_, err := CanonicalizeDocument(nil)
	assert.EqualError(t, err, "failed to canonicalize document: document is nil")
}

func TestComputeDigest(t *testing.T) {
	digest, err := ComputeDigest([]byte("abc"))
	require.NoError(t, err)
	assert.Len(t, digest, 32)

	_, err = ComputeDigest(nil)
	assert.Error(t, err)
}
