// Package projector folds a game's ordered event log into one player's view
// of the game. The fold is pure: replaying the same prefix always yields the
// same view, and a log that starts mid-game still projects the current turn.
package projector

import (
	"errors"
	"fmt"

	"github.com/tolelom/battlechain/board"
	"github.com/tolelom/battlechain/events"
	"github.com/tolelom/battlechain/game"
	"github.com/tolelom/battlechain/secrets"
)

// ErrViewUnavailable means the view cannot be built from the local secrets
// or the log; the caller should replay from the ledger.
var ErrViewUnavailable = errors.New("view unavailable, replay from log")

// Mark is what a player knows about one cell of a board.
type Mark uint8

const (
	Unknown Mark = iota
	// Pending is a cell fired at whose result is not yet revealed.
	Pending
	Miss
	Hit
)

func (m Mark) String() string {
	switch m {
	case Pending:
		return "pending"
	case Miss:
		return "miss"
	case Hit:
		return "hit"
	}
	return "unknown"
}

// Board is one side's grid as seen by the viewer. Fleet is nil while the
// ships are hidden.
type Board struct {
	Fleet board.Placement   `json:"fleet,omitempty"`
	Marks [board.Cells]Mark `json:"marks"`
}

// Sunk returns the ships whose every cell is marked as hit.
func (b *Board) Sunk() []board.Ship {
	var out []board.Ship
	for _, s := range b.Fleet {
		sunk := true
		for _, c := range s.Cells() {
			if b.Marks[c] != Hit {
				sunk = false
				break
			}
		}
		if sunk {
			out = append(out, s)
		}
	}
	return out
}

// Move is one launch in log order.
type Move struct {
	NMove    uint64 `json:"n_move"`
	Attacker string `json:"attacker"`
	Defender string `json:"defender"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	Result   Mark   `json:"result"`
}

// View is a player's projection of a game.
type View struct {
	GameID     uint64      `json:"game_id"`
	Viewer     string      `json:"viewer"`
	Challenger string      `json:"challenger,omitempty"`
	Opponent   string      `json:"opponent,omitempty"`
	Bet        uint64      `json:"bet"`
	Status     game.Status `json:"status,omitempty"`

	// Own is the viewer's board under the opponent's fire; Foe is the
	// opponent's board under the viewer's fire.
	Own   Board  `json:"own"`
	Foe   Board  `json:"foe"`
	Moves []Move `json:"moves"`

	InTurn string `json:"in_turn,omitempty"`
	// FirstMove is set when the viewer is in turn with no shot to reveal.
	FirstMove bool `json:"first_move"`
	// PendingCell is the opponent's unrevealed shot at the viewer, or -1.
	PendingCell int `json:"pending_cell"`

	Winner  string            `json:"winner,omitempty"`
	Loser   string            `json:"loser,omitempty"`
	Cond    game.Cond         `json:"cond,omitempty"`
	Payouts []events.GamePaid `json:"payouts,omitempty"`
}

// MyTurn reports whether the viewer is expected to launch next.
func (v *View) MyTurn() bool {
	return v.InTurn == v.Viewer && (v.Status == game.StatusAwaitingFirstMove || v.Status == game.StatusInProgress)
}

// Settled reports whether the whole pot has been paid out.
func (v *View) Settled() bool {
	if v.Status != game.StatusPaid {
		return false
	}
	pot := v.Bet
	if v.Opponent != "" {
		pot *= 2
	}
	var paid uint64
	for _, p := range v.Payouts {
		paid += p.Amount
	}
	return paid >= pot
}

// Sunk returns the viewer's ships sunk so far.
func (v *View) Sunk() []board.Ship { return v.Own.Sunk() }

// Projector applies events one at a time. The zero value is not usable;
// call New.
type Projector struct {
	view View
}

// New starts an empty projection for viewer. s must be the viewer's own
// secrets for the game.
func New(viewer string, s *secrets.Secrets) (*Projector, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: no local secrets", ErrViewUnavailable)
	}
	if s.Player != viewer {
		return nil, fmt.Errorf("%w: secrets belong to %s", ErrViewUnavailable, s.Player)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrViewUnavailable, err)
	}
	fleet, err := s.Ships()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrViewUnavailable, err)
	}
	return &Projector{view: View{
		GameID:      s.GameID,
		Viewer:      viewer,
		Own:         Board{Fleet: fleet},
		PendingCell: -1,
	}}, nil
}

// Project folds log into viewer's view.
func Project(log []events.Event, viewer string, s *secrets.Secrets) (*View, error) {
	p, err := New(viewer, s)
	if err != nil {
		return nil, err
	}
	for _, ev := range log {
		if err := p.Apply(ev); err != nil {
			return nil, err
		}
	}
	return p.View(), nil
}

// View returns a copy of the current projection.
func (p *Projector) View() *View {
	v := p.view
	v.Own.Fleet = append(board.Placement(nil), p.view.Own.Fleet...)
	v.Foe.Fleet = append(board.Placement(nil), p.view.Foe.Fleet...)
	v.Moves = append([]Move(nil), p.view.Moves...)
	v.Payouts = append([]events.GamePaid(nil), p.view.Payouts...)
	return &v
}

// Apply folds one event into the view. Events that are not part of a game
// log are ignored.
func (p *Projector) Apply(ev events.Event) error {
	if !events.IsGameEvent(ev.Type) {
		return nil
	}
	v := &p.view
	if v.GameID == 0 {
		v.GameID = ev.GameID
	} else if ev.GameID != v.GameID {
		return fmt.Errorf("%w: event of game %d in log of game %d", ErrViewUnavailable, ev.GameID, v.GameID)
	}

	var err error
	switch ev.Type {
	case events.EventGameCreated:
		err = p.created(ev)
	case events.EventGameJoined:
		err = p.joined(ev)
	case events.EventTorpedoLaunched:
		err = p.launched(ev)
	case events.EventTorpedoResult:
		err = p.result(ev)
	case events.EventGameFinished:
		err = p.finished(ev)
	case events.EventGamePaid:
		err = p.paid(ev)
	case events.EventBoardRevealed:
		err = p.revealed(ev)
	}
	return err
}

func decode(ev events.Event, v any) error {
	if err := ev.Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrViewUnavailable, ev.Type, err)
	}
	return nil
}

func (p *Projector) created(ev events.Event) error {
	var e events.GameCreated
	if err := decode(ev, &e); err != nil {
		return err
	}
	p.view.Challenger = e.Challenger
	p.view.Bet = e.BetAmount
	p.view.Status = game.StatusAwaitingOpponent
	return nil
}

func (p *Projector) joined(ev events.Event) error {
	var e events.GameJoined
	if err := decode(ev, &e); err != nil {
		return err
	}
	v := &p.view
	v.Challenger, v.Opponent, v.Bet = e.Challenger, e.Opponent, e.BetAmount
	v.Status = game.StatusAwaitingFirstMove
	// the joiner opens
	v.InTurn = e.Opponent
	v.FirstMove = e.Opponent == v.Viewer
	v.PendingCell = -1
	return nil
}

// board returns the grid a shot by attacker at defender lands on.
func (p *Projector) board(attacker, defender string) (*Board, error) {
	switch p.view.Viewer {
	case defender:
		return &p.view.Own, nil
	case attacker:
		return &p.view.Foe, nil
	}
	return nil, fmt.Errorf("%w: %s plays neither side", ErrViewUnavailable, p.view.Viewer)
}

func (p *Projector) launched(ev events.Event) error {
	var e events.TorpedoLaunched
	if err := decode(ev, &e); err != nil {
		return err
	}
	if !board.InBounds(e.Row, e.Col) {
		return fmt.Errorf("%w: launch at (%d,%d)", ErrViewUnavailable, e.Row, e.Col)
	}
	b, err := p.board(e.Attacker, e.Defender)
	if err != nil {
		return err
	}
	cell := board.Index(e.Row, e.Col)
	b.Marks[cell] = Pending

	v := &p.view
	v.Moves = append(v.Moves, Move{
		NMove:    e.NMove,
		Attacker: e.Attacker,
		Defender: e.Defender,
		Row:      e.Row,
		Col:      e.Col,
		Result:   Pending,
	})
	v.Status = game.StatusInProgress
	v.InTurn = e.Defender
	v.FirstMove = false
	v.PendingCell = -1
	if e.Defender == v.Viewer {
		v.PendingCell = cell
	}
	return nil
}

func (p *Projector) result(ev events.Event) error {
	var e events.TorpedoResult
	if err := decode(ev, &e); err != nil {
		return err
	}
	if !board.InBounds(e.Row, e.Col) {
		return fmt.Errorf("%w: result at (%d,%d)", ErrViewUnavailable, e.Row, e.Col)
	}
	b, err := p.board(e.Attacker, e.Defender)
	if err != nil {
		return err
	}
	mark := Miss
	if e.Result == 1 {
		mark = Hit
	}
	cell := board.Index(e.Row, e.Col)
	b.Marks[cell] = mark

	v := &p.view
	for i := len(v.Moves) - 1; i >= 0; i-- {
		if v.Moves[i].NMove == e.NMove {
			v.Moves[i].Result = mark
			break
		}
	}
	if e.Defender == v.Viewer && v.PendingCell == cell {
		v.PendingCell = -1
	}
	// a launch in the same call already moved the turn here; a bare
	// reveal hands it back to the attacker
	v.InTurn = e.Attacker
	return nil
}

func (p *Projector) finished(ev events.Event) error {
	var e events.GameFinished
	if err := decode(ev, &e); err != nil {
		return err
	}
	v := &p.view
	v.Cond = game.Cond(e.WinningCond)
	v.Winner, v.Loser = e.Winner, e.Loser
	v.PendingCell = -1
	v.FirstMove = false
	p.dropUnrevealed()
	if v.Cond == game.CondToCheckWin {
		v.Status = game.StatusAwaitingWinValidation
		v.InTurn = e.Winner
		return nil
	}
	v.Status = game.StatusFinished
	v.InTurn = ""
	return nil
}

// dropUnrevealed forgets shots that will never be answered.
func (p *Projector) dropUnrevealed() {
	v := &p.view
	for _, b := range []*Board{&v.Own, &v.Foe} {
		for i, m := range b.Marks {
			if m == Pending {
				b.Marks[i] = Unknown
			}
		}
	}
	for i := range v.Moves {
		if v.Moves[i].Result == Pending {
			v.Moves[i].Result = Unknown
		}
	}
}

func (p *Projector) paid(ev events.Event) error {
	var e events.GamePaid
	if err := decode(ev, &e); err != nil {
		return err
	}
	v := &p.view
	v.Payouts = append(v.Payouts, e)
	v.Status = game.StatusPaid
	v.InTurn = ""
	v.PendingCell = -1
	v.Cond = game.Cond(e.Cond)
	if !v.Cond.Refund() {
		// a failed confirmation pays the other side
		v.Winner = e.Receiver
		v.Loser = p.other(e.Receiver)
	}
	return nil
}

func (p *Projector) other(addr string) string {
	switch addr {
	case p.view.Challenger:
		return p.view.Opponent
	case p.view.Opponent:
		return p.view.Challenger
	}
	if p.view.Winner == addr {
		return p.view.Loser
	}
	return p.view.Winner
}

func (p *Projector) revealed(ev events.Event) error {
	var e events.BoardRevealed
	if err := decode(ev, &e); err != nil {
		return err
	}
	if e.Player == p.view.Viewer {
		return nil
	}
	fleet, err := board.ParsePlacement(e.ShipsPositions)
	if err != nil {
		return fmt.Errorf("%w: revealed fleet: %v", ErrViewUnavailable, err)
	}
	p.view.Foe.Fleet = fleet
	return nil
}
