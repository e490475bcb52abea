package jsonmap

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/credential/common/crypto"
	"github.com/pilacorp/go-fedtrust/credential/common/dto"
	"github.com/pilacorp/go-fedtrust/credential/common/processor"
	"github.com/pilacorp/go-fedtrust/credential/common/util"
	"github.com/pilacorp/go-fedtrust/did"
)

// JSONMap represents a JSON object as a map.
type JSONMap map[string]interface{}

// ProofOptions carries the per-proof parameters of AddProof.
type ProofOptions struct {
	Purpose   string
	Challenge string
	Expires   time.Time
	Created   time.Time
}

// Parse decodes raw JSON into a JSONMap.
func Parse(raw []byte) (JSONMap, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("JSON string is empty")
	}

	var m JSONMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("JSON document is null")
	}

	return m, nil
}

// ToJSON serializes the JSONMap to JSON.
func (m JSONMap) ToJSON() ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("JSONMap is nil")
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSONMap: %w", err)
	}

	return data, nil
}

// Canonicalize returns the digest of the canonical form of the JSONMap, excluding the proof field.
func (m JSONMap) Canonicalize() ([]byte, error) {
	mCopy := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k != "proof" {
			mCopy[k] = v
		}
	}

	return canonicalDigest(mCopy)
}

func canonicalDigest(doc map[string]interface{}) ([]byte, error) {
	// round trip through JSON so typed Go values become plain JSON values
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	var plain map[string]interface{}
	if err := json.Unmarshal(encoded, &plain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	canonicalDoc, err := processor.CanonicalizeDocument(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize document: %w", err)
	}

	return processor.ComputeDigest(canonicalDoc)
}

// SigningInput returns digest(canonical proof configuration) || digest(canonical document).
// The proof configuration is the proof without its proofValue.
func (m JSONMap) SigningInput(proof dto.Proof) ([]byte, error) {
	docDigest, err := m.Canonicalize()
	if err != nil {
		return nil, err
	}

	return ProofSigningInput(proof, docDigest)
}

// ProofSigningInput prefixes a payload digest with the digest of the proof configuration.
func ProofSigningInput(proof dto.Proof, payloadDigest []byte) ([]byte, error) {
	proof.ProofValue = ""
	config := util.SerializeProof(proof)

	configDigest, err := canonicalDigest(config)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize proof configuration: %w", err)
	}

	return append(configDigest, payloadDigest...), nil
}

// NewProof builds an unsigned proof for signer's key.
func NewProof(signer did.Signer, opts ProofOptions) dto.Proof {
	created := opts.Created
	if created.IsZero() {
		created = time.Now()
	}

	proof := dto.Proof{
		Type:               dto.ProofTypeDataIntegrity,
		Cryptosuite:        dto.Cryptosuite,
		Created:            created.UTC().Format(time.RFC3339),
		VerificationMethod: signer.DID() + "#" + signer.KeyFragment(),
		ProofPurpose:       opts.Purpose,
		Challenge:          opts.Challenge,
	}
	if !opts.Expires.IsZero() {
		proof.Expires = opts.Expires.UTC().Format(time.RFC3339)
	}

	return proof
}

// SignProof fills proof.ProofValue with signer's signature over input.
func SignProof(ctx context.Context, signer did.Signer, proof *dto.Proof, input []byte) error {
	signature, err := signer.Sign(ctx, signer.KeyFragment(), input)
	if err != nil {
		return err
	}
	proof.ProofValue = hex.EncodeToString(signature)

	return nil
}

// AddProof signs the JSONMap with signer's default key and attaches the proof.
func (m JSONMap) AddProof(ctx context.Context, signer did.Signer, opts ProofOptions) error {
	if m == nil {
		return fmt.Errorf("JSONMap is nil")
	}
	if opts.Purpose == "" {
		return fmt.Errorf("proof purpose is required")
	}

	proof := NewProof(signer, opts)

	signData, err := m.SigningInput(proof)
	if err != nil {
		return fmt.Errorf("failed to build signing input: %w", err)
	}

	if err := SignProof(ctx, signer, &proof, signData); err != nil {
		return err
	}

	m["proof"] = util.SerializeProof(proof)

	return nil
}

// Proof returns the single proof attached to the JSONMap.
func (m JSONMap) Proof() (dto.Proof, error) {
	raw, ok := m["proof"]
	if !ok {
		return dto.Proof{}, fedtrust.NewValidationError(fedtrust.Malformed, "document has no proof")
	}

	proof, err := util.ParseProof(raw)
	if err != nil {
		return dto.Proof{}, fedtrust.NewValidationError(fedtrust.Malformed, "%w", err)
	}

	return proof, nil
}

// VerifyProof checks the JSONMap's proof against the key the document controller published.
func (m JSONMap) VerifyProof(doc *did.Document) (dto.Proof, error) {
	proof, err := m.Proof()
	if err != nil {
		return dto.Proof{}, err
	}

	signData, err := m.SigningInput(proof)
	if err != nil {
		return dto.Proof{}, fedtrust.NewValidationError(fedtrust.Malformed, "failed to build signing input: %w", err)
	}

	if err := VerifyProofValue(doc, proof, signData); err != nil {
		return dto.Proof{}, err
	}

	return proof, nil
}

// VerifyProofValue checks proof.ProofValue over input against the verification method of
// doc named by the proof. The method must be listed under the relationship matching the
// proof purpose.
func VerifyProofValue(doc *did.Document, proof dto.Proof, input []byte) error {
	if doc == nil {
		return fedtrust.NewValidationError(fedtrust.BadSignature, "no DID document to verify against")
	}

	controller, _, err := did.SplitVerificationMethod(proof.VerificationMethod)
	if err != nil {
		return fedtrust.NewValidationError(fedtrust.Malformed, "%w", err)
	}
	if controller != doc.ID {
		return fedtrust.NewValidationError(fedtrust.BadSignature,
			"proof signed by %s, expected %s", controller, doc.ID)
	}

	var relationship []string
	switch proof.ProofPurpose {
	case dto.PurposeAssertion:
		relationship = doc.AssertionMethod
	case dto.PurposeAuthentication:
		relationship = doc.Authentication
	default:
		return fedtrust.NewValidationError(fedtrust.Malformed, "unsupported proof purpose %q", proof.ProofPurpose)
	}
	if !slices.Contains(relationship, proof.VerificationMethod) {
		return fedtrust.NewValidationError(fedtrust.BadSignature,
			"%s is not authorized for %s", proof.VerificationMethod, proof.ProofPurpose)
	}

	publicKey, err := doc.PublicKey(proof.VerificationMethod)
	if err != nil {
		return fedtrust.NewValidationError(fedtrust.BadSignature, "%w", err)
	}

	signature, err := hex.DecodeString(proof.ProofValue)
	if err != nil {
		return fedtrust.NewValidationError(fedtrust.Malformed, "proof value is not hex: %w", err)
	}

	if !crypto.VerifySignature(publicKey, input, signature) {
		return fedtrust.NewValidationError(fedtrust.BadSignature, "signature does not match %s", proof.VerificationMethod)
	}

	return nil
}
