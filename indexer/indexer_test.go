package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/events"
	"github.com/tolelom/battlechain/internal/testutil"
)

func newIndexer(t *testing.T) (*Indexer, *events.Emitter) {
	t.Helper()
	em := events.NewEmitter()
	return New(testutil.NewMemDB(), em), em
}

func TestGameLogKeepsEmissionOrder(t *testing.T) {
	idx, em := newIndexer(t)
	em.Emit(events.New(events.EventGameCreated, 1, events.GameCreated{GameID: 1, Challenger: "a", BetAmount: 5}))
	em.Emit(events.New(events.EventGameCreated, 2, events.GameCreated{GameID: 2, Challenger: "c", BetAmount: 5}))
	em.Emit(events.New(events.EventGameJoined, 1, events.GameJoined{GameID: 1, Challenger: "a", Opponent: "b", BetAmount: 5}))
	for i := 0; i < 12; i++ {
		em.Emit(events.New(events.EventTorpedoLaunched, 1, events.TorpedoLaunched{GameID: 1, NMove: uint64(i)}))
	}

	log, err := idx.GameEvents(1)
	require.NoError(t, err)
	require.Len(t, log, 14)
	assert.Equal(t, events.EventGameCreated, log[0].Type)
	assert.Equal(t, events.EventGameJoined, log[1].Type)
	for i, ev := range log[2:] {
		var p events.TorpedoLaunched
		require.NoError(t, ev.Decode(&p))
		assert.Equal(t, uint64(i), p.NMove)
	}

	other, err := idx.GameEvents(2)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestOpenGamesTracksLifecycle(t *testing.T) {
	idx, em := newIndexer(t)
	em.Emit(events.New(events.EventGameCreated, 1, events.GameCreated{GameID: 1, Challenger: "a", BetAmount: 5}))
	em.Emit(events.New(events.EventGameCreated, 2, events.GameCreated{GameID: 2, Challenger: "b", BetAmount: 7}))
	em.Emit(events.New(events.EventGameCreated, 3, events.GameCreated{GameID: 3, Challenger: "c", BetAmount: 9}))

	open, err := idx.OpenGames()
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, uint64(1), open[0].GameID)

	em.Emit(events.New(events.EventGameJoined, 1, events.GameJoined{GameID: 1, Challenger: "a", Opponent: "d"}))
	em.Emit(events.New(events.EventGameFinished, 3, events.GameFinished{GameID: 3, WinningCond: "CHALLENGER_CLOSED"}))

	open, err = idx.OpenGames()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, uint64(2), open[0].GameID)
	assert.Equal(t, uint64(7), open[0].BetAmount)
}

func TestGamesByPlayer(t *testing.T) {
	idx, em := newIndexer(t)
	em.Emit(events.New(events.EventGameCreated, 2, events.GameCreated{GameID: 2, Challenger: "a"}))
	em.Emit(events.New(events.EventGameCreated, 1, events.GameCreated{GameID: 1, Challenger: "b"}))
	em.Emit(events.New(events.EventGameJoined, 1, events.GameJoined{GameID: 1, Challenger: "b", Opponent: "a"}))

	ids, err := idx.GamesByPlayer("a")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, ids)

	ids, err = idx.GamesByPlayer("nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestReceipts(t *testing.T) {
	idx, em := newIndexer(t)
	logs := []events.Event{events.New(events.EventGameCreated, 1, events.GameCreated{GameID: 1})}
	ok := events.New(events.EventTxExecuted, 0, events.TxExecuted{Type: "create_game", From: "a", Logs: logs})
	ok.TxID, ok.BlockHeight = "tx1", 4
	em.Emit(ok)
	bad := events.New(events.EventTxFailed, 0, events.TxFailed{Type: "launch_torpedo", From: "b", Reason: "out of turn"})
	bad.TxID, bad.BlockHeight = "tx2", 4
	em.Emit(bad)

	r, err := idx.Receipt("tx1")
	require.NoError(t, err)
	assert.True(t, r.OK())
	assert.Equal(t, core.TxCreateGame, r.Type)
	assert.Equal(t, int64(4), r.BlockHeight)
	require.Len(t, r.Logs, 1)

	r, err = idx.Receipt("tx2")
	require.NoError(t, err)
	assert.False(t, r.OK())
	assert.Equal(t, "out of turn", r.Reason)

	_, err = idx.Receipt("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestWatchDeliversNewEntries(t *testing.T) {
	idx, em := newIndexer(t)
	em.Emit(events.New(events.EventGameCreated, 1, events.GameCreated{GameID: 1, Challenger: "a"}))

	ch, cancel := idx.Watch(1)
	em.Emit(events.New(events.EventGameJoined, 1, events.GameJoined{GameID: 1, Opponent: "b"}))
	em.Emit(events.New(events.EventGameCreated, 2, events.GameCreated{GameID: 2, Challenger: "c"}))

	e := <-ch
	assert.Equal(t, uint64(1), e.Seq)
	assert.Equal(t, events.EventGameJoined, e.Event.Type)
	assert.Empty(t, ch)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestWatchDropsSlowConsumer(t *testing.T) {
	idx, em := newIndexer(t)
	ch, cancel := idx.Watch(1)
	defer cancel()
	for i := 0; i <= watchBuffer; i++ {
		em.Emit(events.New(events.EventTorpedoLaunched, 1, events.TorpedoLaunched{GameID: 1, NMove: uint64(i)}))
	}
	n := 0
	for range ch {
		n++
	}
	assert.Equal(t, watchBuffer, n)
}
