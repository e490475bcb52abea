package jwt

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"

	fcrypto "github.com/pilacorp/go-fedtrust/credential/common/crypto"
	"github.com/pilacorp/go-fedtrust/did"
)

// SigningMethodES256K implements ES256K signing on top of a did.Signer.
type SigningMethodES256K struct{}

// SigningKey is the key argument SigningMethodES256K.Sign expects.
type SigningKey struct {
	Ctx    context.Context
	Signer did.Signer
}

// Alg returns the algorithm name
func (m *SigningMethodES256K) Alg() string {
	return "ES256K"
}

// Sign signs a string with the signer's default key.
func (m *SigningMethodES256K) Sign(signingString string, key interface{}) ([]byte, error) {
	k, ok := key.(SigningKey)
	if !ok || k.Signer == nil {
		return nil, fmt.Errorf("invalid key type %T", key)
	}

	sig, err := k.Signer.Sign(k.Ctx, k.Signer.KeyFragment(), []byte(signingString))
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}

	if len(sig) != fcrypto.SignatureLength {
		return nil, fmt.Errorf("invalid signature length %d", len(sig))
	}

	return sig[:64], nil // R and S, the recovery id is not part of JWS
}

// Verify verifies a signature against a 33-byte compressed public key.
func (m *SigningMethodES256K) Verify(signingString string, signature []byte, key interface{}) error {
	publicKey, ok := key.([]byte)
	if !ok {
		return fmt.Errorf("invalid key type %T", key)
	}

	if len(signature) != 64 {
		return fmt.Errorf("invalid signature length")
	}

	if !crypto.VerifySignature(publicKey, fcrypto.Digest([]byte(signingString)), signature) {
		return fmt.Errorf("signature verification failed")
	}

	return nil
}

// ES256K is the ES256K signing method instance
var ES256K = &SigningMethodES256K{}

func init() {
	jwt.RegisterSigningMethod(ES256K.Alg(), func() jwt.SigningMethod {
		return ES256K
	})
}
