// Package wallet provides key management and transaction signing helpers.
package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tolelom/battlechain/crypto"
)

type keystoreFile struct {
	PubKey string `json:"pub_key"`
	crypto.SealedBox
}

// SaveKey encrypts priv with password and writes it to path.
func SaveKey(path, password string, priv crypto.PrivateKey) error {
	box, err := crypto.Seal(password, priv)
	if err != nil {
		return err
	}
	ks := keystoreFile{PubKey: priv.Public().Hex(), SealedBox: *box}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKey decrypts the keystore at path using password.
func LoadKey(path, password string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}
	privBytes, err := ks.Open(password)
	if err != nil {
		if errors.Is(err, crypto.ErrWrongPassphrase) {
			return nil, errors.New("wrong password or corrupted keystore")
		}
		return nil, err
	}
	priv := crypto.PrivateKey(privBytes)
	if priv.Public().Hex() != ks.PubKey {
		return nil, errors.New("keystore public key does not match private key")
	}
	return priv, nil
}
