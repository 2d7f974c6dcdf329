package game

import (
	"fmt"

	"github.com/tolelom/battlechain/events"
)

// Payout is one transfer out of the pot.
type Payout struct {
	Receiver string `json:"receiver"`
	Amount   uint64 `json:"amount"`
}

// Payouts maps a finished game's condition to the distribution of its pot.
// Refund conditions return each stake to its owner; every other condition
// pays the whole pot to the winner. The amounts always sum to the pot.
func Payouts(g *Game) ([]Payout, error) {
	if g.Status != StatusFinished {
		return nil, fmt.Errorf("%w: cannot pay game %d in status %s", ErrInvalidGameState, g.ID, g.Status)
	}
	var out []Payout
	switch {
	case g.Cond.Refund():
		for _, s := range []Side{g.Challenger, g.Opponent} {
			if s.Address != "" && s.Bet > 0 {
				out = append(out, Payout{Receiver: s.Address, Amount: s.Bet})
			}
		}
	case g.Cond == CondToCheckWin || g.Cond == "":
		return nil, fmt.Errorf("%w: game %d has no final outcome", ErrInvalidGameState, g.ID)
	default:
		if !g.IsParticipant(g.Winner) {
			return nil, fmt.Errorf("%w: winner %q of game %d is not a player", ErrInvalidGameState, g.Winner, g.ID)
		}
		out = append(out, Payout{Receiver: g.Winner, Amount: g.Pot})
	}
	var total uint64
	for _, p := range out {
		total += p.Amount
	}
	if total != g.Pot {
		return nil, fmt.Errorf("%w: payouts %d do not match pot %d", ErrInvalidGameState, total, g.Pot)
	}
	return out, nil
}

// pay credits every payout, emits one GamePaid per receiver, and archives
// the game.
func (c *call) pay(g *Game) error {
	payouts, err := Payouts(g)
	if err != nil {
		return err
	}
	for _, p := range payouts {
		if err := c.m.bank.Credit(p.Receiver, p.Amount); err != nil {
			return fmt.Errorf("credit %s: %w", p.Receiver, err)
		}
		c.publish(events.EventGamePaid, g.ID, events.GamePaid{
			GameID:   g.ID,
			Receiver: p.Receiver,
			Amount:   p.Amount,
			Cond:     string(g.Cond),
		})
	}
	g.Pot = 0
	g.Status = StatusPaid
	return nil
}
