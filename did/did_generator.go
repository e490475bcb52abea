package did

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	fcrypto "github.com/pilacorp/go-fedtrust/credential/common/crypto"
)

// DIDGenerator creates key pairs and DID documents for a DID method.
type DIDGenerator struct {
	didMethod string
}

// NewDIDGenerator returns a generator for method, e.g. "did:fed".
func NewDIDGenerator(method string) *DIDGenerator {
	if method == "" {
		method = DefaultMethod
	}

	return &DIDGenerator{
		didMethod: method,
	}
}

// GenerateKeyPair creates a fresh secp256k1 key pair and its DID.
func (d *DIDGenerator) GenerateKeyPair() (*KeyPair, *ecdsa.PrivateKey, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	return d.keyPair(privateKey), privateKey, nil
}

func (d *DIDGenerator) keyPair(privateKey *ecdsa.PrivateKey) *KeyPair {
	address := strings.ToLower(crypto.PubkeyToAddress(privateKey.PublicKey).Hex())

	return &KeyPair{
		Address:    address,
		PublicKey:  fcrypto.CompressedPublicKeyHex(&privateKey.PublicKey),
		PrivateKey: fmt.Sprintf("0x%x", crypto.FromECDSA(privateKey)),
		// ${method}:${address}
		Identifier: strings.ToLower(fmt.Sprintf("%s:%s", d.didMethod, address)),
	}
}

// GenerateDIDDocument builds the document publishing the key pair under fragment.
func (d *DIDGenerator) GenerateDIDDocument(kp *KeyPair, fragment string) *Document {
	keyID := kp.Identifier + "#" + fragment

	return &Document{
		Context: []string{"https://www.w3.org/ns/did/v1",
			"https://w3id.org/security/v1"},
		ID:         kp.Identifier,
		Controller: kp.Identifier,
		VerificationMethod: []VerificationMethod{{
			ID:           keyID,
			Type:         VerificationKeyType,
			Controller:   kp.Identifier,
			PublicKeyHex: kp.PublicKey,
		}},
		Authentication:  []string{keyID},
		AssertionMethod: []string{keyID},
	}
}
