package did

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

type identityFile struct {
	DID      string          `json:"did"`
	Fragment string          `json:"fragment"`
	Key      json.RawMessage `json:"key"`
}

// SaveIdentity writes the identity to path, with the private key sealed in an
// Ethereum keystore envelope under passphrase.
func SaveIdentity(path string, id *Identity, passphrase string) error {
	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(id.key.PublicKey),
		PrivateKey: id.key,
	}

	sealed, err := keystore.EncryptKey(key, passphrase, keystore.LightScryptN, keystore.LightScryptP)
	if err != nil {
		return fmt.Errorf("failed to encrypt identity key: %w", err)
	}

	data, err := json.MarshalIndent(identityFile{DID: id.DID(), Fragment: id.fragment, Key: sealed}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write identity: %w", err)
	}

	return nil
}

// LoadIdentity reads an identity written by SaveIdentity.
func LoadIdentity(path, passphrase string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity: %w", err)
	}

	var f identityFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity: %w", err)
	}

	method, _, err := Parse(f.DID)
	if err != nil {
		return nil, err
	}

	key, err := keystore.DecryptKey(f.Key, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt identity key: %w", err)
	}

	id := IdentityFromKey("did:"+method, f.Fragment, key.PrivateKey)
	if id.DID() != f.DID {
		return nil, fmt.Errorf("identity key does not match %s", f.DID)
	}

	return id, nil
}
