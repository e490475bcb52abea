package dto

// Proof represents a data integrity proof attached to a credential, a presentation or a
// signable payload.
type Proof struct {
	Type               string `json:"type"`
	Cryptosuite        string `json:"cryptosuite,omitempty"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	Challenge          string `json:"challenge,omitempty"`
	Expires            string `json:"expires,omitempty"`
	ProofValue         string `json:"proofValue,omitempty"`
}

const (
	ProofTypeDataIntegrity = "DataIntegrityProof"
	Cryptosuite            = "ecdsa-secp256k1-fedtrust"

	PurposeAssertion      = "assertionMethod"
	PurposeAuthentication = "authentication"
)
