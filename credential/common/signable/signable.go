// Package signable wraps arbitrary string payloads with a data integrity proof.
//
// A payload starts as Unsigned and only becomes verifiable after Sign turns it into a
// Signed value, so an unsigned payload can never be passed where a signed one is expected.
package signable

import (
	"context"
	"encoding/json"
	"fmt"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/credential/common/crypto"
	"github.com/pilacorp/go-fedtrust/credential/common/dto"
	"github.com/pilacorp/go-fedtrust/credential/common/jsonmap"
	"github.com/pilacorp/go-fedtrust/credential/common/util"
	"github.com/pilacorp/go-fedtrust/did"
)

// Unsigned is a payload awaiting a signature.
type Unsigned struct {
	Data string
}

// New returns an unsigned payload.
func New(data string) Unsigned {
	return Unsigned{Data: data}
}

// Sign signs the payload with signer's default key.
func (u Unsigned) Sign(ctx context.Context, signer did.Signer) (*Signed, error) {
	proof := jsonmap.NewProof(signer, jsonmap.ProofOptions{Purpose: dto.PurposeAssertion})

	input, err := jsonmap.ProofSigningInput(proof, crypto.Digest([]byte(u.Data)))
	if err != nil {
		return nil, fmt.Errorf("failed to build signing input: %w", err)
	}

	if err := jsonmap.SignProof(ctx, signer, &proof, input); err != nil {
		return nil, err
	}

	return &Signed{Data: u.Data, Proof: proof}, nil
}

// Signed is a payload with its proof.
type Signed struct {
	Data  string    `json:"data"`
	Proof dto.Proof `json:"proof"`
}

// Parse decodes a Signed value. Structural problems are reported as Malformed.
func Parse(raw []byte) (*Signed, error) {
	var wire struct {
		Data  *string     `json:"data"`
		Proof interface{} `json:"proof"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fedtrust.NewValidationError(fedtrust.Malformed, "failed to unmarshal signed payload: %w", err)
	}
	if wire.Data == nil {
		return nil, fedtrust.NewValidationError(fedtrust.Malformed, "signed payload has no data")
	}

	proof, err := util.ParseProof(wire.Proof)
	if err != nil {
		return nil, fedtrust.NewValidationError(fedtrust.Malformed, "%w", err)
	}

	return &Signed{Data: *wire.Data, Proof: proof}, nil
}

// Marshal encodes the signed payload as {"data": ..., "proof": {...}}.
func (s *Signed) Marshal() ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signed payload: %w", err)
	}

	return raw, nil
}

// Signer returns the DID whose key produced the proof.
func (s *Signed) Signer() (string, error) {
	controller, _, err := did.SplitVerificationMethod(s.Proof.VerificationMethod)
	if err != nil {
		return "", fedtrust.NewValidationError(fedtrust.Malformed, "%w", err)
	}

	return controller, nil
}

// Verify checks the proof against doc.
func (s *Signed) Verify(doc *did.Document) error {
	input, err := jsonmap.ProofSigningInput(s.Proof, crypto.Digest([]byte(s.Data)))
	if err != nil {
		return fedtrust.NewValidationError(fedtrust.Malformed, "failed to build signing input: %w", err)
	}

	return jsonmap.VerifyProofValue(doc, s.Proof, input)
}
