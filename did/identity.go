package did

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	fedtrust "github.com/pilacorp/go-fedtrust"
	fcrypto "github.com/pilacorp/go-fedtrust/credential/common/crypto"
)

// Signer is the identity-provider capability: it owns a DID and signs on its behalf.
type Signer interface {
	// DID returns the identifier the signer acts for.
	DID() string
	// Document returns the DID document published for the signer.
	Document() *Document
	// KeyFragment returns the fragment of the signer's default key.
	KeyFragment() string
	// Sign signs data with the key named by fragment. Signatures are 65-byte
	// recoverable secp256k1 signatures over SHA-256(data).
	Sign(ctx context.Context, fragment string, data []byte) ([]byte, error)
}

// Identity is a Signer backed by a private key held in memory.
type Identity struct {
	doc      *Document
	key      *ecdsa.PrivateKey
	fragment string
}

// NewIdentity generates a key pair and publishes it under method#fragment.
func NewIdentity(method, fragment string) (*Identity, error) {
	gen := NewDIDGenerator(method)

	_, key, err := gen.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	return IdentityFromKey(method, fragment, key), nil
}

// IdentityFromKey rebuilds an identity for an existing private key.
func IdentityFromKey(method, fragment string, key *ecdsa.PrivateKey) *Identity {
	gen := NewDIDGenerator(method)
	kp := gen.keyPair(key)

	return &Identity{
		doc:      gen.GenerateDIDDocument(kp, fragment),
		key:      key,
		fragment: fragment,
	}
}

func (i *Identity) DID() string { return i.doc.ID }

func (i *Identity) Document() *Document { return i.doc }

func (i *Identity) KeyFragment() string { return i.fragment }

// VerificationMethod returns the full DID URL of the default key.
func (i *Identity) VerificationMethod() string { return i.doc.ID + "#" + i.fragment }

func (i *Identity) Sign(ctx context.Context, fragment string, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", fedtrust.ErrSigning, err)
	}
	if fragment != i.fragment {
		return nil, fmt.Errorf("%w: key '%s' not held for %s", fedtrust.ErrSigning, fragment, i.doc.ID)
	}

	sig, err := fcrypto.SignMessage(i.key, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fedtrust.ErrSigning, err)
	}

	return sig, nil
}
