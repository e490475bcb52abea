package util

import (
	"fmt"

	"github.com/pilacorp/go-fedtrust/credential/common/dto"
)

// JSONMap represents a JSON object as a map.
type JSONMap = map[string]interface{}

// SerializeTypes converts a slice of type strings to a JSON-LD compatible format.
func SerializeTypes(types []string) []interface{} {
	return MapSlice(types, func(t string) interface{} { return t })
}

// MapSlice transforms a slice of type T to a slice of type U using a mapping function.
func MapSlice[T any, U any](slice []T, mapFn func(T) U) []U {
	result := make([]U, 0, len(slice))
	for _, v := range slice {
		result = append(result, mapFn(v))
	}
	return result
}

// StringSlice reads a JSON array (or a single string) of strings.
func StringSlice(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case string:
		return []string{v}, true
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// SerializeProof converts a Proof struct to a JSON-LD compatible map, leaving out empty fields.
func SerializeProof(proof dto.Proof) JSONMap {
	proofMap := make(JSONMap)
	set := func(key, value string) {
		if value != "" {
			proofMap[key] = value
		}
	}
	set("type", proof.Type)
	set("cryptosuite", proof.Cryptosuite)
	set("created", proof.Created)
	set("verificationMethod", proof.VerificationMethod)
	set("proofPurpose", proof.ProofPurpose)
	set("challenge", proof.Challenge)
	set("expires", proof.Expires)
	set("proofValue", proof.ProofValue)
	return proofMap
}

// ParseProof converts a single proof map into a Proof struct.
func ParseProof(raw interface{}) (dto.Proof, error) {
	proof, ok := raw.(map[string]interface{})
	if !ok {
		return dto.Proof{}, fmt.Errorf("failed to parse proof: expected object, got %T", raw)
	}

	var result dto.Proof
	if t, ok := proof["type"].(string); ok && t != "" {
		result.Type = t
	} else {
		return dto.Proof{}, fmt.Errorf("failed to parse proof: invalid or missing type field")
	}
	if created, ok := proof["created"].(string); ok && created != "" {
		result.Created = created
	} else {
		return dto.Proof{}, fmt.Errorf("failed to parse proof: invalid or missing created field")
	}
	if vm, ok := proof["verificationMethod"].(string); ok && vm != "" {
		result.VerificationMethod = vm
	} else {
		return dto.Proof{}, fmt.Errorf("failed to parse proof: invalid or missing verificationMethod field")
	}
	if pp, ok := proof["proofPurpose"].(string); ok && pp != "" {
		result.ProofPurpose = pp
	} else {
		return dto.Proof{}, fmt.Errorf("failed to parse proof: invalid or missing proofPurpose field")
	}
	if pv, ok := proof["proofValue"].(string); ok && pv != "" {
		result.ProofValue = pv
	} else {
		return dto.Proof{}, fmt.Errorf("failed to parse proof: invalid or missing proofValue field")
	}
	if cs, ok := proof["cryptosuite"].(string); ok {
		result.Cryptosuite = cs
	}
	if ch, ok := proof["challenge"].(string); ok {
		result.Challenge = ch
	}
	if exp, ok := proof["expires"].(string); ok {
		result.Expires = exp
	}
	return result, nil
}
