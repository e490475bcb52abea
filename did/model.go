package did

import (
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/pilacorp/go-fedtrust/credential/common/crypto"
)

const (
	// DefaultMethod is the DID method used for identities created by this module.
	DefaultMethod = "did:fed"

	// VerificationKeyType is the verification method type of every key this module issues.
	VerificationKeyType = "EcdsaSecp256k1VerificationKey2019"

	// IssuerKeyFragment names the key a cohort issuer signs credentials with.
	IssuerKeyFragment = "issuerKey"
	// HolderKeyFragment names the key a participant signs presentations and contributions with.
	HolderKeyFragment = "key-1"
)

// KeyPair represents the generated wallet and DID identifier
type KeyPair struct {
	Address    string `json:"address"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
	Identifier string `json:"identifier"`
}

// Document is a resolved DID document.
type Document struct {
	Context            []string               `json:"@context"`
	ID                 string                 `json:"id"`
	Controller         string                 `json:"controller"`
	VerificationMethod []VerificationMethod   `json:"verificationMethod"`
	Authentication     []string               `json:"authentication"`
	AssertionMethod    []string               `json:"assertionMethod"`
	DocumentMetadata   map[string]interface{} `json:"didDocumentMetadata,omitempty"`
}

type VerificationMethod struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Controller   string `json:"controller"`
	PublicKeyHex string `json:"publicKeyHex,omitempty"`
}

// PublicKey returns the compressed public key of the verification method with the given
// id, which may be a full DID URL or a bare fragment.
func (d *Document) PublicKey(verificationMethod string) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("DID document is nil")
	}

	id := verificationMethod
	if !strings.Contains(id, "#") {
		id = d.ID + "#" + strings.TrimPrefix(id, "#")
	}

	for _, vm := range d.VerificationMethod {
		if vm.ID != id {
			continue
		}

		raw, err := crypto.KeyToBytes(vm.PublicKeyHex)
		if err != nil {
			return nil, fmt.Errorf("verification method '%s' has invalid key: %w", id, err)
		}

		pub, err := secp256k1.ParsePubKey(raw)
		if err != nil {
			return nil, fmt.Errorf("verification method '%s' has invalid key: %w", id, err)
		}

		return pub.SerializeCompressed(), nil
	}

	return nil, fmt.Errorf("verification method '%s' not found in DID document", id)
}

// Validate checks that the document is well formed and that every key parses.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("DID document is nil")
	}
	if _, _, err := Parse(d.ID); err != nil {
		return err
	}
	if len(d.VerificationMethod) == 0 {
		return fmt.Errorf("DID document '%s' has no verification method", d.ID)
	}

	for _, vm := range d.VerificationMethod {
		if !strings.HasPrefix(vm.ID, d.ID+"#") {
			return fmt.Errorf("verification method '%s' does not belong to '%s'", vm.ID, d.ID)
		}
		if _, err := d.PublicKey(vm.ID); err != nil {
			return err
		}
	}

	return nil
}
