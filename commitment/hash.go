// Package commitment implements the board commit-reveal scheme: seeded
// keccak256 leaves, a sorted-pair Merkle tree with single-cell proofs, and
// the ships-placement hash.
package commitment

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tolelom/battlechain/crypto"
)

// Hash is a 32-byte keccak256 digest.
type Hash [32]byte

// Keccak returns the keccak256 digest of the concatenated parts.
func Keccak(parts ...[]byte) Hash {
	var h Hash
	copy(h[:], crypto.Keccak256(parts...))
	return h
}

// HashFromHex parses a 0x-prefixed (or bare) 64-digit hex string.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return h, fmt.Errorf("hash hex: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Hex returns the 0x-prefixed lowercase hex form.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// Less orders hashes bytewise.
func (h Hash) Less(o Hash) bool { return bytes.Compare(h[:], o[:]) < 0 }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := HashFromHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
