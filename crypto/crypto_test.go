package crypto_test

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/battlechain/crypto"
)

func TestKeyPairAndAddress(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	assert.Len(t, pub.Hex(), 64)
	assert.Equal(t, pub.Hex(), priv.Public().Hex())

	addr := pub.Address()
	assert.True(t, strings.HasPrefix(addr, "0x"))
	assert.Len(t, addr, 42)
	assert.Equal(t, "0x"+hex.EncodeToString(crypto.Keccak256(pub)[12:]), addr)
}

func TestSeededKeysAreReproducible(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a, _, err := crypto.GenerateKeyPairFrom(bytes.NewReader(seed))
	require.NoError(t, err)
	b, _, err := crypto.GenerateKeyPairFrom(bytes.NewReader(seed))
	require.NoError(t, err)
	assert.Equal(t, a.Hex(), b.Hex())

	back, err := crypto.PrivKeyFromHex(a.Hex())
	require.NoError(t, err)
	assert.Equal(t, a, back)
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	sig := priv.Sign([]byte("fire at 3,4"))

	assert.NoError(t, pub.Verify([]byte("fire at 3,4"), sig))
	assert.ErrorIs(t, pub.Verify([]byte("fire at 4,3"), sig), crypto.ErrBadSignature)
	assert.Error(t, pub.Verify([]byte("fire at 3,4"), "zz"))

	_, other, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	assert.ErrorIs(t, other.Verify([]byte("fire at 3,4"), sig), crypto.ErrBadSignature)
}

func TestKeyFromHexRejects(t *testing.T) {
	_, err := crypto.PubKeyFromHex("not hex")
	assert.Error(t, err)
	_, err = crypto.PubKeyFromHex("abcd")
	assert.ErrorContains(t, err, "want 32 bytes")
	_, err = crypto.PrivKeyFromHex(strings.Repeat("ab", 32))
	assert.ErrorContains(t, err, "want 64 bytes")
}

func TestKeccak256(t *testing.T) {
	assert.Equal(t,
		"c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		hex.EncodeToString(crypto.Keccak256()))
	assert.Equal(t, crypto.Keccak256([]byte("ab")), crypto.Keccak256([]byte("a"), []byte("b")))
}

func TestSealOpen(t *testing.T) {
	box, err := crypto.Seal("hunter2", []byte("seeds"))
	require.NoError(t, err)

	plain, err := box.Open("hunter2")
	require.NoError(t, err)
	assert.Equal(t, []byte("seeds"), plain)

	_, err = box.Open("hunter3")
	assert.ErrorIs(t, err, crypto.ErrWrongPassphrase)
}
