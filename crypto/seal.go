package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	sealSaltSize   = 16
	sealIterations = 210_000
)

// ErrWrongPassphrase is returned when a sealed box cannot be opened.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted data")

// SealedBox is AES-256-GCM ciphertext whose key is derived from a passphrase
// with PBKDF2-SHA256. All fields are hex so the box can be stored as JSON.
type SealedBox struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipher_text"`
}

// Seal encrypts plaintext under passphrase.
func Seal(passphrase string, plaintext []byte) (*SealedBox, error) {
	salt := make([]byte, sealSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return &SealedBox{
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	}, nil
}

// Open decrypts the box with passphrase.
func (b *SealedBox) Open(passphrase string) ([]byte, error) {
	salt, err := hex.DecodeString(b.Salt)
	if err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	nonce, err := hex.DecodeString(b.Nonce)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	cipherText, err := hex.DecodeString(b.CipherText)
	if err != nil {
		return nil, fmt.Errorf("cipher text: %w", err)
	}
	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, ErrWrongPassphrase
	}
	plain, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, sealIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
