package commitment

import (
	"fmt"
	"io"

	"github.com/tolelom/battlechain/board"
)

// ShipSeedLen is the length of a generated ships seed.
const ShipSeedLen = 32

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Commitment is what a player publishes when creating or joining a game.
type Commitment struct {
	MerkleRoot Hash `json:"merkle_root"`
	ShipsHash  Hash `json:"ships_hash"`
}

// IsZero reports whether either half of the commitment is missing.
func (c Commitment) IsZero() bool { return c.MerkleRoot.IsZero() || c.ShipsHash.IsZero() }

// CommitShips hashes the placement wire string followed by seed.
func CommitShips(p board.Placement, seed string) Hash {
	return CommitShipsString(p.String(), seed)
}

// CommitShipsString is CommitShips over an already serialised placement,
// which need not be well formed.
func CommitShipsString(placement, seed string) Hash {
	return Keccak([]byte(placement + seed))
}

// Commit builds both halves of a commitment. The placement must already be
// legal and consistent with occ.
func Commit(occ board.Occupancy, seeds Seeds, p board.Placement, shipSeed string) Commitment {
	return Commitment{
		MerkleRoot: BuildTree(occ, seeds).Root(),
		ShipsHash:  CommitShips(p, shipSeed),
	}
}

// NewSeeds draws one seed in [0, MaxSeed-1] per cell from r.
func NewSeeds(r io.Reader) (Seeds, error) {
	var s Seeds
	buf := make([]byte, 1)
	for i := 0; i < len(s); {
		if _, err := io.ReadFull(r, buf); err != nil {
			return s, fmt.Errorf("read seed: %w", err)
		}
		if buf[0] == MaxSeed {
			continue
		}
		s[i] = buf[0]
		i++
	}
	return s, nil
}

// NewShipSeed draws ShipSeedLen alphanumeric characters from r.
func NewShipSeed(r io.Reader) (string, error) {
	// reject bytes past the largest multiple of len(alphanumeric) to stay uniform
	limit := byte(256 - 256%len(alphanumeric))
	out := make([]byte, 0, ShipSeedLen)
	buf := make([]byte, 1)
	for len(out) < ShipSeedLen {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read ship seed: %w", err)
		}
		if buf[0] >= limit {
			continue
		}
		out = append(out, alphanumeric[int(buf[0])%len(alphanumeric)])
	}
	return string(out), nil
}
