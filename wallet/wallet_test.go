package wallet_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/wallet"
)

func TestGenerateFromIsDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{3}, 32)
	a, err := wallet.GenerateFrom(bytes.NewReader(seed))
	require.NoError(t, err)
	b, err := wallet.GenerateFrom(bytes.NewReader(seed))
	require.NoError(t, err)
	assert.Equal(t, a.PubKey(), b.PubKey())
	assert.Len(t, a.Address(), 42)
}

func TestOpeningMoveCarriesEmptyProof(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	tx, err := w.LaunchTorpedo("c", core.LaunchTorpedoPayload{GameID: 1, Row: 2, Col: 3}, 0, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Verify())
	assert.Equal(t, core.TxLaunchTorpedo, tx.Type)
	assert.Equal(t, w.PubKey(), tx.From)

	var p map[string]any
	require.NoError(t, json.Unmarshal(tx.Payload, &p))
	assert.Equal(t, []any{}, p["proof"])
}

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, wallet.SaveKey(path, "pw", w.PrivKey()))

	priv, err := wallet.LoadKey(path, "pw")
	require.NoError(t, err)
	assert.Equal(t, w.PubKey(), wallet.New(priv).PubKey())

	_, err = wallet.LoadKey(path, "nope")
	assert.ErrorContains(t, err, "wrong password")
}
