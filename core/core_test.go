package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/crypto"
	"github.com/tolelom/battlechain/internal/testutil"
	"github.com/tolelom/battlechain/wallet"
)

const chainID = "core-test"

func transfer(t *testing.T, w *wallet.Wallet, nonce uint64) *core.Transaction {
	t.Helper()
	tx, err := w.Transfer(chainID, "aa", 1, nonce, 0)
	require.NoError(t, err)
	return tx
}

func TestTransactionSignVerify(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	tx := transfer(t, w, 0)

	assert.Equal(t, tx.Hash(), tx.ID)
	require.NoError(t, tx.Verify())

	tx.Fee = 999
	assert.ErrorIs(t, tx.Verify(), crypto.ErrBadSignature)

	tx.From = ""
	assert.Error(t, tx.Verify())
}

func TestTxRoot(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	a, b, c := transfer(t, w, 0), transfer(t, w, 1), transfer(t, w, 2)

	assert.Equal(t, crypto.Hash(nil), core.ComputeTxRoot(nil))
	assert.Equal(t, a.ID, core.ComputeTxRoot([]*core.Transaction{a}))
	assert.Equal(t,
		crypto.Hash([]byte(crypto.Hash([]byte(a.ID+b.ID))+c.ID)),
		core.ComputeTxRoot([]*core.Transaction{a, b, c}))
	assert.NotEqual(t,
		core.ComputeTxRoot([]*core.Transaction{a, b}),
		core.ComputeTxRoot([]*core.Transaction{b, a}))
}

func TestBlockIntegrity(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	block := core.NewBlock(chainID, 1, "0000", w.PubKey(), []*core.Transaction{transfer(t, w, 0)})
	block.Sign(w.PrivKey())

	require.NoError(t, block.CheckIntegrity())
	require.NoError(t, block.Verify(w.PrivKey().Public()))
	assert.Equal(t, []string{block.Transactions[0].ID}, block.TxIDs())

	block.Transactions = append(block.Transactions, transfer(t, w, 1))
	assert.ErrorIs(t, block.CheckIntegrity(), core.ErrBlockTxRoot)

	block.Transactions = block.Transactions[:1]
	block.Header.Height = 2
	assert.ErrorIs(t, block.CheckIntegrity(), core.ErrBlockHash)
}

func TestBlockchainLinksBlocks(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	store := testutil.NewMemBlockStore()
	bc := core.NewBlockchain(store)
	require.NoError(t, bc.Init())
	assert.Nil(t, bc.Tip())

	genesis := core.NewBlock(chainID, 0, "0000", w.PubKey(), nil)
	genesis.Sign(w.PrivKey())
	require.NoError(t, bc.AddBlock(genesis))

	sign := func(b *core.Block) *core.Block { b.Sign(w.PrivKey()); return b }

	assert.ErrorContains(t, bc.AddBlock(sign(core.NewBlock("other", 1, genesis.Hash, w.PubKey(), nil))), "chain id")
	assert.ErrorContains(t, bc.AddBlock(sign(core.NewBlock(chainID, 2, genesis.Hash, w.PubKey(), nil))), "does not follow")
	assert.ErrorContains(t, bc.AddBlock(sign(core.NewBlock(chainID, 1, "beef", w.PubKey(), nil))), "prev_hash")

	next := sign(core.NewBlock(chainID, 1, genesis.Hash, w.PubKey(), nil))
	require.NoError(t, bc.AddBlock(next))
	assert.Equal(t, int64(1), bc.Height())

	reloaded := core.NewBlockchain(store)
	require.NoError(t, reloaded.Init())
	assert.Equal(t, next.Hash, reloaded.Tip().Hash)
	byHeight, err := reloaded.GetBlockByHeight(0)
	require.NoError(t, err)
	assert.Equal(t, genesis.Hash, byHeight.Hash)
	_, err = reloaded.GetBlockByHeight(5)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMempool(t *testing.T) {
	mp := core.NewMempool()
	w, err := wallet.Generate()
	require.NoError(t, err)

	tx := transfer(t, w, 0)
	require.NoError(t, mp.Add(tx))
	assert.ErrorIs(t, mp.Add(tx), core.ErrTxKnown)
	assert.Equal(t, 1, mp.Size())

	mp.Remove([]string{tx.ID, "unknown"})
	assert.Zero(t, mp.Size())
	assert.Empty(t, mp.Pending(10))
}

func TestMempoolOrdersEachSenderByNonce(t *testing.T) {
	mp := core.NewMempool()
	alice, err := wallet.Generate()
	require.NoError(t, err)
	bob, err := wallet.Generate()
	require.NoError(t, err)

	a1, b0, a0 := transfer(t, alice, 1), transfer(t, bob, 0), transfer(t, alice, 0)
	for _, tx := range []*core.Transaction{a1, b0, a0} {
		require.NoError(t, mp.Add(tx))
	}

	got := mp.Pending(10)
	require.Len(t, got, 3)
	assert.Equal(t, []string{a0.ID, b0.ID, a1.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Len(t, mp.Pending(2), 2)
}

func TestMempoolRejects(t *testing.T) {
	mp := core.NewMempool()
	w, err := wallet.Generate()
	require.NoError(t, err)

	stale := transfer(t, w, 0)
	stale.Timestamp = time.Now().Add(-2 * time.Hour).UnixNano()
	stale.Sign(w.PrivKey())
	assert.ErrorIs(t, mp.Add(stale), core.ErrTxOutsideClock)

	early := transfer(t, w, 0)
	early.Timestamp = time.Now().Add(time.Hour).UnixNano()
	early.Sign(w.PrivKey())
	assert.ErrorIs(t, mp.Add(early), core.ErrTxOutsideClock)

	forged := transfer(t, w, 0)
	forged.Fee = 5
	assert.Error(t, mp.Add(forged))

	var last error
	for n := uint64(0); n < 65; n++ {
		last = mp.Add(transfer(t, w, n))
	}
	assert.ErrorIs(t, last, core.ErrSenderBacklog)
	assert.Equal(t, 64, mp.Size())
}
