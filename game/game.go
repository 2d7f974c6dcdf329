// Package game holds the battle protocol: the per-game record, the turn
// state machine that validates every call, and payout resolution. Storage,
// balances, and event delivery are injected so the machine runs the same on
// the ledger and in unit tests.
package game

import (
	"math/bits"

	"github.com/tolelom/battlechain/board"
	"github.com/tolelom/battlechain/commitment"
)

// Status is a game's lifecycle position.
type Status string

const (
	StatusAwaitingOpponent      Status = "awaiting_opponent"
	StatusAwaitingFirstMove     Status = "awaiting_first_move"
	StatusInProgress            Status = "in_progress"
	StatusAwaitingWinValidation Status = "awaiting_win_validation"
	StatusFinished              Status = "finished"
	StatusPaid                  Status = "paid"
)

// Cond is the winning condition attached to GameFinished and GamePaid.
type Cond string

const (
	CondToCheckWin            Cond = "TO_CHECK_WIN"
	CondLegitWin              Cond = "LEGIT_WIN"
	CondOpponentMoveCheat     Cond = "OPPONENT_MOVE_CHEAT"
	CondPlayerForfeit         Cond = "PLAYER_FORFEIT"
	CondTimeExpiredClaimed    Cond = "TIME_EXPIRED_CLAIMED"
	CondPlayerQuitBeforeStart Cond = "PLAYER_QUIT_BEFORE_START"
	CondOpponentLiedBoard     Cond = "OPPONENT_LIED_BOARD"
	CondOpponentLiedShips     Cond = "OPPONENT_LIED_SHIPS"
	CondChallengerClosed      Cond = "CHALLENGER_CLOSED"
)

// Refund reports whether cond returns each stake to its owner instead of
// paying the pot to a winner.
func (c Cond) Refund() bool {
	return c == CondPlayerQuitBeforeStart || c == CondChallengerClosed
}

// Bitboard is a set of cell indices.
type Bitboard uint64

func (b Bitboard) Has(cell int) bool { return b&(1<<uint(cell)) != 0 }

func (b *Bitboard) Set(cell int) { *b |= 1 << uint(cell) }

func (b Bitboard) Count() int { return bits.OnesCount64(uint64(b)) }

// Side is one player's half of a game.
type Side struct {
	Address    string                `json:"address"`
	Bet        uint64                `json:"bet"`
	Commitment commitment.Commitment `json:"commitment"`
	// Targeted holds the cells this player has fired at.
	Targeted Bitboard `json:"targeted"`
	// Revealed and Hits hold cells of this player's own board proven so far.
	Revealed Bitboard `json:"revealed"`
	Hits     Bitboard `json:"hits"`
	// Seeds records the seed revealed for each proven cell.
	Seeds map[int]uint8 `json:"seeds,omitempty"`
}

// Shot is a launch waiting for its defender to reveal the result.
type Shot struct {
	Attacker string `json:"attacker"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	NMove    uint64 `json:"n_move"`
}

// Cell returns the shot's board index.
func (s Shot) Cell() int { return board.Index(s.Row, s.Col) }

// Game is the authoritative record kept in the game table.
type Game struct {
	ID            uint64 `json:"id"`
	Challenger    Side   `json:"challenger"`
	Opponent      Side   `json:"opponent"`
	Bet           uint64 `json:"bet"`
	Pot           uint64 `json:"pot"`
	Status        Status `json:"status"`
	NMove         uint64 `json:"n_move"`
	CreatedBlock  int64  `json:"created_block"`
	LastMoveBlock int64  `json:"last_move_block"`
	InTurn        string `json:"in_turn,omitempty"`
	// Pending is the one launch whose result has not been revealed. It is
	// nil before the opening launch and after the game stops accepting moves.
	Pending *Shot  `json:"pending,omitempty"`
	Winner  string `json:"winner,omitempty"`
	Loser   string `json:"loser,omitempty"`
	Cond    Cond   `json:"cond,omitempty"`
	// Verdict explains a failed win confirmation.
	Verdict string `json:"verdict,omitempty"`
}

// sides returns the caller's side and the other one.
func (g *Game) sides(addr string) (me, foe *Side, ok bool) {
	switch {
	case addr == "":
		return nil, nil, false
	case addr == g.Challenger.Address:
		return &g.Challenger, &g.Opponent, true
	case addr == g.Opponent.Address:
		return &g.Opponent, &g.Challenger, true
	}
	return nil, nil, false
}

// Side returns the side owned by addr.
func (g *Game) Side(addr string) (*Side, bool) {
	me, _, ok := g.sides(addr)
	return me, ok
}

// IsParticipant reports whether addr plays in g.
func (g *Game) IsParticipant(addr string) bool {
	_, _, ok := g.sides(addr)
	return ok
}

// Playing reports whether the game still accepts launches.
func (g *Game) Playing() bool {
	return g.Status == StatusAwaitingFirstMove || g.Status == StatusInProgress
}

// InactivityExpired reports whether more than gap blocks passed since the
// last move.
func (g *Game) InactivityExpired(block, gap int64) bool {
	return block-g.LastMoveBlock > gap
}
