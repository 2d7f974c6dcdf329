package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/tolelom/battlechain/board"
	"github.com/tolelom/battlechain/game"
	"github.com/tolelom/battlechain/projector"
)

// cell glyphs
const (
	glyphEmpty   = '.'
	glyphShip    = '#'
	glyphHit     = 'X'
	glyphMiss    = 'o'
	glyphPending = '?'
)

func glyph(b *projector.Board, ships board.Occupancy, cell int) byte {
	switch b.Marks[cell] {
	case projector.Hit:
		return glyphHit
	case projector.Miss:
		return glyphMiss
	case projector.Pending:
		return glyphPending
	}
	if ships[cell] == 1 {
		return glyphShip
	}
	return glyphEmpty
}

func occupancy(fleet board.Placement) board.Occupancy {
	var occ board.Occupancy
	for _, s := range fleet {
		for _, c := range s.Cells() {
			if c >= 0 && c < board.Cells {
				occ[c] = 1
			}
		}
	}
	return occ
}

// grid draws the two boards side by side.
func grid(v *projector.View) string {
	own, foe := occupancy(v.Own.Fleet), occupancy(v.Foe.Fleet)
	var sb strings.Builder
	sb.WriteString("   you               opponent\n")
	sb.WriteString("   01234567          01234567\n")
	for r := 0; r < board.Size; r++ {
		fmt.Fprintf(&sb, "%d  ", r)
		for c := 0; c < board.Size; c++ {
			sb.WriteByte(glyph(&v.Own, own, board.Index(r, c)))
		}
		fmt.Fprintf(&sb, "       %d  ", r)
		for c := 0; c < board.Size; c++ {
			sb.WriteByte(glyph(&v.Foe, foe, board.Index(r, c)))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func status(v *projector.View) string {
	switch v.Status {
	case "":
		return "no events yet"
	case game.StatusAwaitingOpponent:
		return "waiting for an opponent"
	case game.StatusAwaitingFirstMove, game.StatusInProgress:
		switch {
		case v.MyTurn() && v.FirstMove:
			return "your turn, opening shot"
		case v.MyTurn() && v.PendingCell >= 0:
			r, c := board.RowCol(v.PendingCell)
			return fmt.Sprintf("your turn, opponent fired at (%d,%d)", r, c)
		case v.MyTurn():
			return "your turn"
		default:
			return "opponent's turn"
		}
	case game.StatusAwaitingWinValidation:
		if v.Winner == v.Viewer {
			return "all ships hit, run confirm to claim the pot"
		}
		return "your fleet is sunk, waiting for the winner to confirm"
	}
	switch {
	case v.Winner == "":
		return fmt.Sprintf("finished (%s), stakes refunded", v.Cond)
	case v.Winner == v.Viewer:
		return fmt.Sprintf("you won (%s)", v.Cond)
	default:
		return fmt.Sprintf("you lost (%s)", v.Cond)
	}
}

func render(w io.Writer, v *projector.View) error {
	_, err := fmt.Fprintf(w, "game %d  bet %d  moves %d  sunk %d/%d\n%s%s\n",
		v.GameID, v.Bet, len(v.Moves), len(v.Sunk()), len(board.Fleet), grid(v), status(v))
	return err
}
