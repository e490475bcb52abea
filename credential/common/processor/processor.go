package processor

import (
	"crypto/sha256"
	"fmt"

	"github.com/piprate/json-gold/ld"
)

// ContextURL is the JSON-LD context every document handled by this module carries.
const ContextURL = "https://w3id.org/fedtrust/v1"

// VocabURL is the vocabulary every term of ContextURL expands into.
const VocabURL = "https://w3id.org/fedtrust/vocab#"

var fedtrustContext = map[string]interface{}{
	"@context": map[string]interface{}{
		"@vocab": VocabURL,
		"id":     "@id",
		"type":   "@type",
	},
}

// offlineLoader serves ContextURL from memory and refuses every other remote context,
// so canonicalization never touches the network.
type offlineLoader struct{}

func (offlineLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	if u != ContextURL {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, fmt.Sprintf("context %q is not available offline", u))
	}

	return &ld.RemoteDocument{DocumentURL: u, Document: fedtrustContext}, nil
}

var defaultDocumentLoader ld.DocumentLoader = offlineLoader{}

// CanonicalizeDocument canonicalizes a document into URDNA2015 N-Quads.
func CanonicalizeDocument(doc map[string]interface{}) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("failed to canonicalize document: document is nil")
	}
	processor := ld.NewJsonLdProcessor()
	jsonldOptions := ld.NewJsonLdOptions("")
	jsonldOptions.Format = "application/n-quads"
	jsonldOptions.Algorithm = ld.AlgorithmURDNA2015
	jsonldOptions.DocumentLoader = defaultDocumentLoader

	standardizedDoc, err := standardizeToJSONLD(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to standardize to JSON-LD: %w", err)
	}

	canonicalized, err := processor.Normalize(standardizedDoc, jsonldOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize document: %w", err)
	}

	nquads, ok := canonicalized.(string)
	if !ok {
		return nil, fmt.Errorf("failed to normalize document: unexpected result %T", canonicalized)
	}

	return []byte(nquads), nil
}

// ComputeDigest computes the SHA-256 digest of the input data.
func ComputeDigest(data []byte) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("failed to compute digest: input data is nil")
	}
	hash := sha256.Sum256(data)
	return hash[:], nil
}

// standardizeToJSONLD forces the document onto the offline context and converts scalar
// values into JSON-LD compatible literals.
func standardizeToJSONLD(input map[string]interface{}) (map[string]interface{}, error) {
	if input == nil {
		return nil, fmt.Errorf("failed to standardize to JSON-LD: input is nil")
	}
	result := make(map[string]interface{}, len(input)+1)
	for key, value := range input {
		if key == "@context" {
			continue
		}
		result[key] = convertToJSONLDCompatible(value)
	}
	result["@context"] = ContextURL
	return result, nil
}

// convertToJSONLDCompatible converts a value to a JSON-LD-compatible format, forcing numeric values to strings.
func convertToJSONLDCompatible(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return v
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, val := range v {
			if key == "@context" {
				continue
			}
			result[key] = convertToJSONLDCompatible(val)
		}
		return result
	case []string:
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = val
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = convertToJSONLDCompatible(val)
		}
		return result
	case bool:
		return map[string]interface{}{
			"@value": fmt.Sprintf("%v", v),
			"@type":  "http://www.w3.org/2001/XMLSchema#boolean",
		}
	case nil:
		return nil
	default:
		return map[string]interface{}{
			"@value": fmt.Sprintf("%v", v),
			"@type":  "http://www.w3.org/2001/XMLSchema#string",
		}
	}
}
