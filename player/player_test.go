package player_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/battlechain/board"
	"github.com/tolelom/battlechain/client"
	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/game"
	"github.com/tolelom/battlechain/internal/testnode"
	"github.com/tolelom/battlechain/internal/testutil"
	"github.com/tolelom/battlechain/player"
	"github.com/tolelom/battlechain/projector"
	"github.com/tolelom/battlechain/secrets"
	"github.com/tolelom/battlechain/wallet"
)

const (
	fleet = testutil.Fleet
	bet   = 100
	funds = 1000
)

type table struct {
	node         *testnode.Node
	client       *client.Client
	alice, bob   *player.Player
	aliceW, bobW *wallet.Wallet
}

func newTable(t *testing.T, gap int64) *table {
	t.Helper()
	aw, err := wallet.Generate()
	require.NoError(t, err)
	bw, err := wallet.Generate()
	require.NoError(t, err)
	n := testnode.Start(t, testnode.Options{
		Funded:            []*wallet.Wallet{aw, bw},
		Funds:             funds,
		InactivityTimeGap: gap,
		BlockInterval:     20 * time.Millisecond,
	})
	c := client.New(n.URL, client.WithPollInterval(10*time.Millisecond))
	tb := &table{node: n, client: c, aliceW: aw, bobW: bw}
	tb.alice = newPlayer(t, aw, c, 1)
	tb.bob = newPlayer(t, bw, c, 2)
	return tb
}

func newPlayer(t *testing.T, w *wallet.Wallet, c *client.Client, seed int64) *player.Player {
	t.Helper()
	store, err := secrets.NewMemLevelStore("pass")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	p, err := player.New(testCtx(t), w, c, store, player.WithRand(rand.New(rand.NewSource(seed))))
	require.NoError(t, err)
	return p
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (tb *table) balance(t *testing.T, w *wallet.Wallet) uint64 {
	t.Helper()
	b, err := tb.client.Balance(testCtx(t), w.PubKey())
	require.NoError(t, err)
	return b.Balance
}

// start has alice create and bob join a game, both with the same fleet.
func (tb *table) start(t *testing.T) uint64 {
	t.Helper()
	ctx := testCtx(t)
	as, err := tb.alice.NewSecrets(fleet)
	require.NoError(t, err)
	id, err := tb.alice.CreateGame(ctx, as, bet)
	require.NoError(t, err)

	open, err := tb.bob.OpenGames(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, id, open[0].GameID)

	mine, err := tb.alice.OpenGames(ctx)
	require.NoError(t, err)
	assert.Empty(t, mine, "own games are not offered")

	bs, err := tb.bob.NewSecrets(fleet)
	require.NoError(t, err)
	require.NoError(t, tb.bob.JoinGame(ctx, id, bs, bet))
	return id
}

func shipCells(t *testing.T) []int {
	p, err := board.ParsePlacement(fleet)
	require.NoError(t, err)
	occ, err := p.Occupancy()
	require.NoError(t, err)
	return occ.Cells()
}

func TestNewSecretsRejectsBadFleet(t *testing.T) {
	tb := newTable(t, 3)
	_, err := tb.alice.NewSecrets("H005H104H203H303H403")
	assert.ErrorIs(t, err, game.ErrInvalidPlacement)
}

func TestFullGameLegitWin(t *testing.T) {
	tb := newTable(t, 100)
	ctx := testCtx(t)
	id := tb.start(t)

	// bob opens and only aims at ships; alice only aims at empty rows.
	targets := shipCells(t)
	misses := make([]int, 0, len(targets))
	for cell := 5 * board.Size; len(misses) < len(targets); cell++ {
		misses = append(misses, cell)
	}

	for i, cell := range targets {
		row, col := board.RowCol(cell)
		v, err := tb.bob.LaunchTorpedo(ctx, id, row, col)
		require.NoError(t, err, "bob move %d", i)
		assert.Equal(t, tb.alice.Address(), v.InTurn)

		row, col = board.RowCol(misses[i])
		v, err = tb.alice.LaunchTorpedo(ctx, id, row, col)
		require.NoError(t, err, "alice move %d", i)
		if i < len(targets)-1 {
			assert.Equal(t, game.StatusInProgress, v.Status)
		}
	}

	v, err := tb.alice.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, game.StatusAwaitingWinValidation, v.Status)
	assert.Equal(t, tb.bob.Address(), v.Winner)
	assert.Len(t, v.Sunk(), len(board.Fleet))

	// only the presumptive winner may confirm
	_, err = tb.alice.ConfirmLegitWin(ctx, id)
	assert.ErrorIs(t, err, game.ErrInvalidGameState)

	v, err = tb.bob.ConfirmLegitWin(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, game.StatusPaid, v.Status)
	assert.Equal(t, game.CondLegitWin, v.Cond)
	assert.True(t, v.Settled())

	assert.Equal(t, uint64(funds+bet), tb.balance(t, tb.bobW))
	assert.Equal(t, uint64(funds-bet), tb.balance(t, tb.aliceW))

	av, err := tb.alice.View(ctx, id)
	require.NoError(t, err)
	require.Len(t, av.Foe.Fleet, 5, "winner's fleet is revealed to the loser")

	// attackers strictly alternate starting with the joiner
	for i, mv := range av.Moves {
		want := tb.bob.Address()
		if i%2 == 1 {
			want = tb.alice.Address()
		}
		assert.Equal(t, want, mv.Attacker, "move %d", i)
	}
}

func TestTurnOrderAndDuplicates(t *testing.T) {
	tb := newTable(t, 100)
	ctx := testCtx(t)
	id := tb.start(t)

	_, err := tb.alice.LaunchTorpedo(ctx, id, 0, 0)
	assert.ErrorIs(t, err, game.ErrOutOfTurn)

	_, err = tb.bob.LaunchTorpedo(ctx, id, 0, 0)
	require.NoError(t, err)
	_, err = tb.alice.LaunchTorpedo(ctx, id, 5, 5)
	require.NoError(t, err)
	_, err = tb.bob.LaunchTorpedo(ctx, id, 0, 0)
	assert.ErrorIs(t, err, game.ErrStaleOrDuplicateMove)
	_, err = tb.bob.LaunchTorpedo(ctx, id, 8, 0)
	assert.ErrorIs(t, err, game.ErrOutOfBounds)

	v, err := tb.bob.View(ctx, id)
	require.NoError(t, err)
	assert.True(t, v.MyTurn())
	assert.Equal(t, projector.Hit, v.Foe.Marks[0])
}

func TestLyingRevealLosesTheGame(t *testing.T) {
	tb := newTable(t, 100)
	ctx := testCtx(t)
	id := tb.start(t)

	_, err := tb.bob.LaunchTorpedo(ctx, id, 0, 0)
	require.NoError(t, err)

	// alice claims a miss on (0,0) with a proof for a miss leaf.
	acc, err := tb.client.Balance(ctx, tb.aliceW.PubKey())
	require.NoError(t, err)
	s := testutil.Secrets(t, tb.alice.Address(), fleet, 1)
	proof, _, seed := s.Reveal(0)
	tx, err := tb.aliceW.LaunchTorpedo(tb.node.Params.ChainID, core.LaunchTorpedoPayload{
		GameID: id, Proof: proof, PrevMoveResult: 0, Seed: seed, Row: 5, Col: 5,
	}, acc.Nonce, 0)
	require.NoError(t, err)
	_, err = tb.client.SubmitAndWait(ctx, tx)
	require.NoError(t, err, "a failed proof settles the game instead of rejecting the call")

	v, err := tb.bob.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, game.CondOpponentMoveCheat, v.Cond)
	assert.Equal(t, tb.bob.Address(), v.Winner)
	assert.Equal(t, uint64(funds+bet), tb.balance(t, tb.bobW))
}

func TestQuitBeforeStartRefunds(t *testing.T) {
	tb := newTable(t, 100)
	ctx := testCtx(t)
	id := tb.start(t)

	v, err := tb.alice.QuitGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, game.CondPlayerQuitBeforeStart, v.Cond)
	assert.Empty(t, v.Winner)
	assert.Len(t, v.Payouts, 2)
	assert.Equal(t, uint64(funds), tb.balance(t, tb.aliceW))
	assert.Equal(t, uint64(funds), tb.balance(t, tb.bobW))
}

func TestInactivityClaim(t *testing.T) {
	const gap = 25
	tb := newTable(t, gap)
	ctx := testCtx(t)
	id := tb.start(t)

	_, err := tb.bob.LaunchTorpedo(ctx, id, 0, 0)
	require.NoError(t, err)
	g, err := tb.client.Game(ctx, id)
	require.NoError(t, err)

	_, err = tb.bob.QuitGame(ctx, id)
	require.ErrorIs(t, err, game.ErrInactivityNotYetExpired)

	require.Eventually(t, func() bool {
		h, err := tb.client.BlockHeight(ctx)
		return err == nil && h > g.LastMoveBlock+gap
	}, 10*time.Second, 20*time.Millisecond)

	v, err := tb.bob.QuitGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, game.CondTimeExpiredClaimed, v.Cond)
	assert.Equal(t, tb.bob.Address(), v.Winner)
}

func TestCloseUnjoinedGame(t *testing.T) {
	tb := newTable(t, 3)
	ctx := testCtx(t)
	s, err := tb.alice.NewSecrets(fleet)
	require.NoError(t, err)
	id, err := tb.alice.CreateGame(ctx, s, bet)
	require.NoError(t, err)
	assert.Equal(t, uint64(funds-bet), tb.balance(t, tb.aliceW))

	_, err = tb.bob.CloseGame(ctx, id)
	assert.ErrorIs(t, err, game.ErrNotParticipant)

	v, err := tb.alice.CloseGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, game.CondChallengerClosed, v.Cond)
	assert.Equal(t, uint64(funds), tb.balance(t, tb.aliceW))

	ids, err := tb.alice.Games(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{id}, ids)
}

func TestFollowStreamsTheGame(t *testing.T) {
	tb := newTable(t, 100)
	ctx := testCtx(t)
	id := tb.start(t)

	var last *projector.View
	done := make(chan error, 1)
	go func() {
		done <- tb.alice.Follow(ctx, id, func(v *projector.View) error {
			last = v
			return nil
		})
	}()

	_, err := tb.bob.LaunchTorpedo(ctx, id, 3, 3)
	require.NoError(t, err)
	_, err = tb.alice.QuitGame(ctx, id)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("follow did not finish")
	}
	require.NotNil(t, last)
	assert.Equal(t, game.CondPlayerForfeit, last.Cond)
	assert.Equal(t, tb.bob.Address(), last.Winner)
	assert.True(t, last.Settled())
}
