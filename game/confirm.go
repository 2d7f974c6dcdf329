package game

import (
	"fmt"

	"github.com/tolelom/battlechain/board"
	"github.com/tolelom/battlechain/commitment"
	"github.com/tolelom/battlechain/events"
)

// Reveal is the full secret a presumptive winner discloses.
type Reveal struct {
	Board          []int
	Seeds          []int
	ShipsPositions string
	ShipSeed       string
}

// audit checks r against the side's commitments and the reveals made during
// play. It returns CondLegitWin when everything matches and the lie
// condition otherwise, along with whether both commitments held.
func audit(s *Side, occ board.Occupancy, seeds commitment.Seeds, r Reveal) (cond Cond, committed bool, reason string) {
	rootOK := commitment.BuildTree(occ, seeds).Root() == s.Commitment.MerkleRoot
	shipsOK := commitment.CommitShipsString(r.ShipsPositions, r.ShipSeed) == s.Commitment.ShipsHash
	committed = rootOK && shipsOK
	if !rootOK {
		return CondOpponentLiedBoard, committed, "board does not match merkle root"
	}
	if !shipsOK {
		return CondOpponentLiedShips, committed, "placement does not match ships hash"
	}
	placement, err := board.ParsePlacement(r.ShipsPositions)
	if err != nil {
		return CondOpponentLiedShips, committed, err.Error()
	}
	want, err := placement.Occupancy()
	if err != nil {
		return CondOpponentLiedShips, committed, err.Error()
	}
	if want != occ {
		return CondOpponentLiedBoard, committed, "board does not match placement"
	}
	for cell := 0; cell < board.Cells; cell++ {
		if !s.Revealed.Has(cell) {
			continue
		}
		hit := s.Hits.Has(cell)
		if (occ[cell] == 1) != hit {
			return CondOpponentLiedBoard, committed, fmt.Sprintf("cell %d contradicts revealed result", cell)
		}
		if seed, ok := s.Seeds[cell]; ok && seed != seeds[cell] {
			return CondOpponentLiedBoard, committed, fmt.Sprintf("cell %d contradicts revealed seed", cell)
		}
	}
	return CondLegitWin, committed, ""
}

// ConfirmLegitWin lets the presumptive winner reveal their whole board and
// placement. A reveal consistent with both commitments and with every result
// proven during play pays them the pot as LEGIT_WIN; any inconsistency pays
// the opponent instead.
func (m *Machine) ConfirmLegitWin(env Env, id uint64, r Reveal) (*Game, error) {
	g, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if g.Status != StatusAwaitingWinValidation {
		return nil, fmt.Errorf("%w: game %d is %s", ErrInvalidGameState, id, g.Status)
	}
	me, foe, ok := g.sides(env.Caller)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotParticipant, env.Caller)
	}
	if g.Winner != me.Address {
		return nil, fmt.Errorf("%w: only the presumptive winner can confirm", ErrInvalidGameState)
	}
	occ, err := board.FromCells(r.Board)
	if err != nil {
		return nil, err
	}
	seeds, err := commitment.SeedsFromInts(r.Seeds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlacement, err)
	}

	cond, committed, verdict := audit(me, occ, seeds, r)

	c := m.begin(env)
	if committed {
		c.publish(events.EventBoardRevealed, id, events.BoardRevealed{
			GameID:         id,
			Player:         me.Address,
			Board:          occ.String(),
			ShipsPositions: r.ShipsPositions,
		})
	}
	g.Status = StatusFinished
	g.InTurn = ""
	g.Cond = cond
	g.Verdict = verdict
	if cond != CondLegitWin {
		g.Winner, g.Loser = foe.Address, me.Address
	}
	if err := c.pay(g); err != nil {
		return nil, err
	}
	if err := c.commit(g); err != nil {
		return nil, err
	}
	return g, nil
}
