package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/battlechain/board"
	"github.com/tolelom/battlechain/client"
	"github.com/tolelom/battlechain/events"
	"github.com/tolelom/battlechain/game"
	"github.com/tolelom/battlechain/internal/testnode"
	"github.com/tolelom/battlechain/rpc"
	"github.com/tolelom/battlechain/secrets"
	"github.com/tolelom/battlechain/wallet"
)

func setup(t *testing.T) (*testnode.Node, *client.Client, *wallet.Wallet) {
	t.Helper()
	w, err := wallet.Generate()
	require.NoError(t, err)
	n := testnode.Start(t, testnode.Options{Funded: []*wallet.Wallet{w}, Funds: 1000})
	return n, client.New(n.URL, client.WithPollInterval(20*time.Millisecond)), w
}

func timeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestTransferRoundTrip(t *testing.T) {
	_, c, w := setup(t)
	ctx := timeout(t)

	params, err := c.Params(ctx)
	require.NoError(t, err)
	assert.Equal(t, testnode.ChainID, params.ChainID)

	tx, err := w.Transfer(params.ChainID, "ab", 250, 0, 0)
	require.NoError(t, err)
	r, err := c.SubmitAndWait(ctx, tx)
	require.NoError(t, err)
	assert.True(t, r.OK())
	assert.Positive(t, r.BlockHeight)

	bal, err := c.Balance(ctx, w.PubKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(750), bal.Balance)
	assert.Equal(t, uint64(1), bal.Nonce)

	b, err := c.Block(ctx, r.BlockHeight)
	require.NoError(t, err)
	require.Len(t, b.Transactions, 1)
	assert.Equal(t, tx.ID, b.Transactions[0].ID)
}

func TestFailedTxSurfacesReason(t *testing.T) {
	_, c, w := setup(t)
	ctx := timeout(t)

	tx, err := w.QuitGame(testnode.ChainID, 42, 0, 0)
	require.NoError(t, err)
	r, err := c.SubmitAndWait(ctx, tx)
	require.Error(t, err)
	require.NotNil(t, r)
	assert.False(t, r.OK())

	var txErr *client.TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, tx.ID, txErr.TxID)
	assert.ErrorIs(t, err, game.ErrGameNotFound)
}

func TestNotFound(t *testing.T) {
	_, c, _ := setup(t)
	ctx := timeout(t)

	_, err := c.Receipt(ctx, "missing")
	assert.ErrorIs(t, err, client.ErrNotFound)
	_, err = c.Game(ctx, 99)
	assert.ErrorIs(t, err, client.ErrNotFound)

	var rerr *rpc.Error
	err = c.Call(ctx, "noSuchMethod", nil, nil)
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rpc.CodeMethodNotFound, rerr.Code)
}

func TestWaitReceiptHonoursContext(t *testing.T) {
	_, c, _ := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.WaitReceipt(ctx, "never")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscribeFollowsGameLog(t *testing.T) {
	_, c, w := setup(t)
	ctx := timeout(t)

	p, err := board.ParsePlacement("H005H104H203H303H402")
	require.NoError(t, err)
	s, err := secrets.Generate(w.PubKey(), p, nil)
	require.NoError(t, err)
	tx, err := w.CreateGame(testnode.ChainID, s.Commitment(), 100, 0, 0)
	require.NoError(t, err)
	_, err = c.SubmitAndWait(ctx, tx)
	require.NoError(t, err)

	open, err := c.OpenGames(ctx, "")
	require.NoError(t, err)
	require.Len(t, open, 1)
	id := open[0].GameID

	ids, err := c.GamesByPlayer(ctx, w.PubKey())
	require.NoError(t, err)
	assert.Equal(t, []uint64{id}, ids)

	var got []rpc.StreamMessage
	subscribed := make(chan error, 1)
	go func() {
		subscribed <- c.Subscribe(ctx, id, 0, func(msg rpc.StreamMessage) error {
			got = append(got, msg)
			if msg.Event.Type == events.EventGamePaid {
				return client.ErrStop
			}
			return nil
		})
	}()

	closeTx, err := w.CloseGame(testnode.ChainID, id, 1, 0)
	require.NoError(t, err)
	_, err = c.SubmitAndWait(ctx, closeTx)
	require.NoError(t, err)

	select {
	case err := <-subscribed:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("subscription did not finish")
	}
	require.Len(t, got, 3)
	assert.Equal(t, events.EventGameCreated, got[0].Event.Type)
	assert.Equal(t, events.EventGameFinished, got[1].Event.Type)
	for i, msg := range got {
		assert.EqualValues(t, i, msg.Seq)
	}

	log, err := c.GameEvents(ctx, id, 1)
	require.NoError(t, err)
	assert.Len(t, log, 2)
}

func TestSubscribeStopsOnCallbackError(t *testing.T) {
	n, c, _ := setup(t)
	ctx := timeout(t)
	boom := errors.New("boom")

	n.Emitter.Emit(events.New(events.EventGameCreated, 5, events.GameCreated{GameID: 5}))
	err := c.Subscribe(ctx, 5, 0, func(rpc.StreamMessage) error { return boom })
	assert.ErrorIs(t, err, boom)
}
