package game

import (
	"fmt"

	"github.com/tolelom/battlechain/board"
	"github.com/tolelom/battlechain/commitment"
	"github.com/tolelom/battlechain/events"
)

// Move is a launchTorpedo call. Proof, Claim, and Seed reveal the caller's
// cell targeted by the pending shot; they are ignored when nothing is pending.
type Move struct {
	Proof commitment.Proof
	Claim int
	Seed  int
	Row   int
	Col   int
}

func (mv Move) checkReveal() error {
	if len(mv.Proof) != commitment.Depth {
		return fmt.Errorf("%w: proof has %d siblings, want %d", ErrInvalidProof, len(mv.Proof), commitment.Depth)
	}
	if mv.Claim != 0 && mv.Claim != 1 {
		return fmt.Errorf("%w: claim must be 0 or 1, got %d", ErrInvalidProof, mv.Claim)
	}
	if mv.Seed < 0 || mv.Seed > commitment.MaxSeed {
		return fmt.Errorf("%w: seed %d out of range", ErrInvalidProof, mv.Seed)
	}
	return nil
}

// LaunchTorpedo reveals the result of the opponent's pending shot against
// the caller's board and fires a new shot at (Row, Col).
//
// A reveal whose proof does not match the caller's committed root ends the
// game in the opponent's favour. When the reveal brings the caller's proven
// hits to a full fleet, the previous attacker becomes the presumptive winner
// and must confirm with ConfirmLegitWin. A fully revealed board short of a
// fleet ends the game as a cheat by its owner. Row and Col are ignored when
// the reveal ends the game or the caller has no untargeted cell left.
func (m *Machine) LaunchTorpedo(env Env, id uint64, mv Move) (*Game, error) {
	g, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if !g.Playing() {
		return nil, fmt.Errorf("%w: game %d is %s", ErrInvalidGameState, id, g.Status)
	}
	me, foe, ok := g.sides(env.Caller)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotParticipant, env.Caller)
	}
	if g.InTurn != me.Address {
		return nil, fmt.Errorf("%w: game %d waits for %s", ErrOutOfTurn, id, g.InTurn)
	}

	prev := g.Pending
	if prev != nil && prev.Attacker != foe.Address {
		return nil, fmt.Errorf("%w: pending shot belongs to %s", ErrInvalidGameState, prev.Attacker)
	}
	// a reveal that completes the fleet or proves the last cell ends the
	// game one way or the other, so it fires nothing
	exhausted := me.Targeted.Count() == board.Cells
	completes := prev != nil && mv.Claim == 1 && me.Hits.Count()+1 >= board.FleetCells
	lastCell := prev != nil && me.Revealed.Count()+1 == board.Cells
	fire := !exhausted && !completes && !lastCell
	if prev == nil && !fire {
		return nil, fmt.Errorf("%w: nothing left to fire or reveal in game %d", ErrInvalidGameState, id)
	}
	target := -1
	if fire {
		if !board.InBounds(mv.Row, mv.Col) {
			return nil, fmt.Errorf("%w: (%d,%d)", ErrOutOfBounds, mv.Row, mv.Col)
		}
		target = board.Index(mv.Row, mv.Col)
		if me.Targeted.Has(target) {
			return nil, fmt.Errorf("%w: (%d,%d) already targeted", ErrStaleOrDuplicateMove, mv.Row, mv.Col)
		}
	}

	c := m.begin(env)
	if prev != nil {
		if err := mv.checkReveal(); err != nil {
			return nil, err
		}
		leaf := commitment.LeafHash(mv.Claim, mv.Seed)
		if !commitment.VerifyProof(me.Commitment.MerkleRoot, leaf, mv.Proof) {
			return c.cheated(g, foe, me)
		}
		cell := prev.Cell()
		me.Revealed.Set(cell)
		if mv.Claim == 1 {
			me.Hits.Set(cell)
		}
		if me.Seeds == nil {
			me.Seeds = make(map[int]uint8)
		}
		me.Seeds[cell] = uint8(mv.Seed)
	}
	// every cell is proven and the fleet is still short
	exposed := me.Revealed.Count() == board.Cells && me.Hits.Count() < board.FleetCells

	g.LastMoveBlock = env.Block
	nMove := g.NMove
	if fire {
		me.Targeted.Set(target)
		g.NMove++
		c.publish(events.EventTorpedoLaunched, id, events.TorpedoLaunched{
			GameID:   id,
			Attacker: me.Address,
			Defender: foe.Address,
			Row:      mv.Row,
			Col:      mv.Col,
			NMove:    nMove,
		})
	}
	if prev != nil {
		c.publish(events.EventTorpedoResult, id, events.TorpedoResult{
			GameID:   id,
			Attacker: prev.Attacker,
			Defender: me.Address,
			Row:      prev.Row,
			Col:      prev.Col,
			Result:   mv.Claim,
			NMove:    prev.NMove,
		})
	}

	switch {
	case me.Hits.Count() >= board.FleetCells:
		g.Status = StatusAwaitingWinValidation
		g.Pending = nil
		g.Winner, g.Loser, g.Cond = foe.Address, me.Address, CondToCheckWin
		g.InTurn = foe.Address
		c.publish(events.EventGameFinished, id, events.GameFinished{
			GameID:      id,
			Winner:      foe.Address,
			Loser:       me.Address,
			WinningCond: string(CondToCheckWin),
		})
	case exposed:
		return c.cheated(g, foe, me)
	case fire:
		g.Status = StatusInProgress
		g.Pending = &Shot{Attacker: me.Address, Row: mv.Row, Col: mv.Col, NMove: nMove}
		g.InTurn = foe.Address
	default:
		g.Status = StatusInProgress
		g.Pending = nil
		g.InTurn = foe.Address
	}
	if err := c.commit(g); err != nil {
		return nil, err
	}
	return g, nil
}

func (c *call) cheated(g *Game, honest, cheat *Side) (*Game, error) {
	if err := c.finish(g, honest.Address, cheat.Address, CondOpponentMoveCheat); err != nil {
		return nil, err
	}
	if err := c.commit(g); err != nil {
		return nil, err
	}
	return g, nil
}
