// Package crypto provides secp256k1 key generation, signing, and address
// derivation for ledger accounts and validators.
package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidPrivateKey is returned when a hex-encoded private key cannot be parsed.
var ErrInvalidPrivateKey = errors.New("crypto: invalid private key")

// ErrInvalidPublicKey is returned when a hex-encoded public key cannot be parsed.
var ErrInvalidPublicKey = errors.New("crypto: invalid public key")

// KeyPair wraps a secp256k1 key pair.
type KeyPair struct {
	private *ecdsa.PrivateKey
}

// GenerateKeyPair creates a new random secp256k1 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := gethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &KeyPair{private: priv}, nil
}

// NewKeyPairFromHex reconstructs a key pair from a hex-encoded private key.
func NewKeyPairFromHex(privateKeyHex string) (*KeyPair, error) {
	priv, err := gethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPrivateKey, err)
	}
	return &KeyPair{private: priv}, nil
}

// PrivateKeyHex returns the hex-encoded private key scalar.
func (k *KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(gethcrypto.FromECDSA(k.private))
}

// PublicKeyHex returns the hex-encoded public key as the 64-byte x||y
// point, without the 0x04 uncompressed-form prefix.
func (k *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(gethcrypto.FromECDSAPub(&k.private.PublicKey)[1:])
}

// Address derives the ledger address for this key pair's public key.
func (k *KeyPair) Address() string {
	return AddressFromPublicKeyHex(k.PublicKeyHex())
}

// AddressFromPublicKeyHex derives a ledger address from a hex-encoded public
// key: "0x" followed by the last 20 bytes of SHA-256(pubkey bytes).
//
// This intentionally does not use go-ethereum's Keccak/RLP address scheme —
// the ledger's address format is SHA-256 based.
func AddressFromPublicKeyHex(publicKeyHex string) string {
	pubBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return ""
	}
	digest := sha256.Sum256(pubBytes)
	return "0x" + hex.EncodeToString(digest[len(digest)-20:])
}

// Sign hashes the message with SHA-256 and produces a fixed-width r||s
// signature (128 hex chars, no recovery byte).
func (k *KeyPair) Sign(message []byte) (string, error) {
	return SignMessage(message, k.PrivateKeyHex())
}

// SignMessage signs an arbitrary message with a hex-encoded private key.
func SignMessage(message []byte, privateKeyHex string) (string, error) {
	priv, err := gethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPrivateKey, err)
	}
	digest := sha256.Sum256(message)
	sig, err := gethcrypto.Sign(digest[:], priv)
	if err != nil {
		return "", fmt.Errorf("crypto: sign: %w", err)
	}
	// go-ethereum's Sign appends a 1-byte recovery ID; the wire format is
	// fixed-width r||s, so it is dropped here.
	return hex.EncodeToString(sig[:64]), nil
}

// VerifySignature checks a signature over message against a hex-encoded
// public key. Malformed input of any kind reports false; it never panics
// or returns an error.
func VerifySignature(message []byte, signatureHex, publicKeyHex string) bool {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != 64 {
		return false
	}
	pubBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false
	}
	// go-ethereum expects the uncompressed point with its 0x04 prefix; the
	// ledger's key format is the bare 64-byte x||y.
	if len(pubBytes) == 64 {
		pubBytes = append([]byte{0x04}, pubBytes...)
	}
	digest := sha256.Sum256(message)
	return gethcrypto.VerifySignature(pubBytes, digest[:], sig)
}

// HashData returns the hex-encoded SHA-256 digest of data.
func HashData(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// HashString is a convenience wrapper around HashData for string input.
func HashString(s string) string {
	return HashData([]byte(s))
}

// GenerateValidatorKeys creates n fresh key pairs, convenient for bootstrapping
// a genesis validator set in tests and the genesis document loader.
func GenerateValidatorKeys(n int) ([]*KeyPair, error) {
	keys := make([]*KeyPair, 0, n)
	for i := 0; i < n; i++ {
		kp, err := GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		keys = append(keys, kp)
	}
	return keys, nil
}
