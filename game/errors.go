package game

import (
	"errors"
	"strings"

	"github.com/tolelom/battlechain/board"
)

// Every rejection wraps exactly one of these. The messages are stable so a
// client can map a failure receipt back with ErrorFromReason.
var (
	ErrInvalidGameState        = errors.New("invalid game state")
	ErrInvalidProof            = errors.New("invalid proof")
	ErrStaleOrDuplicateMove    = errors.New("stale or duplicate move")
	ErrOutOfBounds             = errors.New("out of bounds")
	ErrOutOfTurn               = errors.New("out of turn")
	ErrBetMismatch             = errors.New("bet mismatch")
	ErrInvalidPlacement        = board.ErrInvalidPlacement
	ErrCommitmentMismatch      = errors.New("commitment mismatch")
	ErrInactivityNotYetExpired = errors.New("inactivity not yet expired")
	ErrNotParticipant          = errors.New("not a participant")
	ErrGameNotFound            = errors.New("game not found")
	ErrInvalidBet              = errors.New("invalid bet")
)

var sentinels = []error{
	ErrInvalidGameState,
	ErrInvalidProof,
	ErrStaleOrDuplicateMove,
	ErrOutOfBounds,
	ErrOutOfTurn,
	ErrBetMismatch,
	ErrInvalidPlacement,
	ErrCommitmentMismatch,
	ErrInactivityNotYetExpired,
	ErrNotParticipant,
	ErrGameNotFound,
	ErrInvalidBet,
}

// ErrorFromReason returns the sentinel whose message appears in reason, or
// nil when none does.
func ErrorFromReason(reason string) error {
	for _, s := range sentinels {
		if strings.Contains(reason, s.Error()) {
			return s
		}
	}
	return nil
}
