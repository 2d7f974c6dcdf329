// Package crypto holds the primitives shared by the chain and its clients:
// ed25519 account keys, the SHA-256 ids of blocks and transactions, the
// legacy Keccak-256 used by board commitments, and passphrase sealing.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrBadSignature is returned by Verify when the signature does not match.
var ErrBadSignature = errors.New("signature verification failed")

// PrivateKey wraps ed25519 private key bytes.
type PrivateKey []byte

// PublicKey wraps ed25519 public key bytes. Its hex form is the account
// identifier on chain.
type PublicKey []byte

// GenerateKeyPair draws a new ed25519 key pair from crypto/rand.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	return GenerateKeyPairFrom(rand.Reader)
}

// GenerateKeyPairFrom draws a key pair from r. Tests pass a seeded reader
// to get reproducible accounts.
func GenerateKeyPairFrom(r io.Reader) (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return PrivateKey(priv), PublicKey(pub), nil
}

// Address is the short display form of pub: 0x followed by the last 20
// bytes of its Keccak-256 digest.
func (pub PublicKey) Address() string {
	return "0x" + hex.EncodeToString(Keccak256(pub)[12:])
}

func (pub PublicKey) Hex() string { return hex.EncodeToString(pub) }

func (priv PrivateKey) Hex() string { return hex.EncodeToString(priv) }

// Public derives the ed25519 public key from the private key.
func (priv PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
}

// Sign returns the hex-encoded signature of data.
func (priv PrivateKey) Sign(data []byte) string {
	return hex.EncodeToString(ed25519.Sign(ed25519.PrivateKey(priv), data))
}

// Verify checks a hex-encoded signature of data.
func (pub PublicKey) Verify(data []byte, sigHex string) error {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize || !ed25519.Verify(ed25519.PublicKey(pub), data, sig) {
		return ErrBadSignature
	}
	return nil
}

// PubKeyFromHex decodes an account identifier.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := decodeKey(s, ed25519.PublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey: %w", err)
	}
	return PublicKey(b), nil
}

// PrivKeyFromHex decodes a private key exported with Hex.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := decodeKey(s, ed25519.PrivateKeySize)
	if err != nil {
		return nil, fmt.Errorf("invalid privkey: %w", err)
	}
	return PrivateKey(b), nil
}

func decodeKey(s string, size int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("want %d bytes, got %d", size, len(b))
	}
	return b, nil
}
