package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the length of a recoverable [R || S || V] secp256k1 signature.
const SignatureLength = 65

// KeyToBytes converts a hex string with prefix 0x to a byte array.
func KeyToBytes(key string) ([]byte, error) {
	if !strings.HasPrefix(key, "0x") {
		return nil, errors.New("key is not in hex format")
	}

	return hex.DecodeString(key[2:])
}

// Digest returns the SHA-256 digest of data.
func Digest(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// DigestHex returns the lower-case hex SHA-256 digest of data.
func DigestHex(data []byte) string {
	return hex.EncodeToString(Digest(data))
}

// SignMessage signs the SHA-256 digest of message with secp256k1,
// producing a 65-byte [R || S || V] signature.
func SignMessage(privKey *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	if privKey == nil {
		return nil, errors.New("private key is nil")
	}

	signature, err := crypto.Sign(Digest(message), privKey)
	if err != nil {
		return nil, fmt.Errorf("ecdsa: sign error: %w", err)
	}

	if len(signature) != SignatureLength {
		return nil, fmt.Errorf("ecdsa: invalid signature length, expected %d bytes", SignatureLength)
	}

	return signature, nil
}

// ParsePrivateKey parses a private key of type secp256k1 from bytes
// The length of the private key is 32 bytes.
func ParsePrivateKey(privateKeyBytes []byte) (*ecdsa.PrivateKey, error) {
	if len(privateKeyBytes) != 32 {
		return nil, errors.New("private key must be 32 bytes")
	}

	return crypto.ToECDSA(privateKeyBytes)
}

// ParsePublicKeyHex parses a hex encoded secp256k1 public key (with or without 0x prefix,
// compressed or uncompressed) and returns it in compressed form.
func ParsePublicKeyHex(publicKeyHex string) ([]byte, error) {
	pubKeyBytes, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}

	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return pubKey.SerializeCompressed(), nil
}

// CompressedPublicKeyHex renders the public half of a key pair as 0x-prefixed compressed hex.
func CompressedPublicKeyHex(pub *ecdsa.PublicKey) string {
	return "0x" + hex.EncodeToString(crypto.CompressPubkey(pub))
}

// VerifySignature verifies a 65-byte secp256k1 signature over the SHA-256 digest of message
// against a 33-byte compressed public key.
func VerifySignature(publicKey, message, signature []byte) bool {
	if len(signature) != SignatureLength || len(publicKey) != 33 || len(message) == 0 {
		return false
	}

	hash := Digest(message)

	recoveredPubKey, err := crypto.SigToPub(hash, signature)
	if err != nil {
		return false
	}

	if !bytes.Equal(crypto.CompressPubkey(recoveredPubKey), publicKey) {
		return false
	}

	// Rejects malleable high-S signatures that Ecrecover would still accept.
	return crypto.VerifySignature(publicKey, hash, signature[:64])
}
