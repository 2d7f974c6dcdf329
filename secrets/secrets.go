// Package secrets keeps a player's hidden board material: the placement,
// the per-cell seeds, and the ships seed. Everything a player needs to
// answer shots and confirm a win is derived from a Secrets value, and
// stores keep it sealed under a passphrase.
package secrets

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tolelom/battlechain/board"
	"github.com/tolelom/battlechain/commitment"
	"github.com/tolelom/battlechain/crypto"
)

// ErrNotFound is returned by stores for unknown (player, game) pairs.
var ErrNotFound = errors.New("secrets not found")

// Secrets is one player's hidden state for one game.
type Secrets struct {
	GameID    uint64           `json:"game_id"`
	Player    string           `json:"player"`
	Placement string           `json:"placement"`
	Occupancy board.Occupancy  `json:"occupancy"`
	Seeds     commitment.Seeds `json:"seeds"`
	ShipSeed  string           `json:"ship_seed"`

	tree *commitment.Tree
}

// Generate draws fresh seeds for placement from r (crypto/rand if nil).
func Generate(player string, p board.Placement, r io.Reader) (*Secrets, error) {
	if r == nil {
		r = rand.Reader
	}
	occ, err := p.Occupancy()
	if err != nil {
		return nil, err
	}
	seeds, err := commitment.NewSeeds(r)
	if err != nil {
		return nil, err
	}
	shipSeed, err := commitment.NewShipSeed(r)
	if err != nil {
		return nil, err
	}
	return &Secrets{
		Player:    player,
		Placement: p.String(),
		Occupancy: occ,
		Seeds:     seeds,
		ShipSeed:  shipSeed,
	}, nil
}

// Validate checks that the placement is legal and matches the occupancy.
func (s *Secrets) Validate() error {
	p, err := board.ParsePlacement(s.Placement)
	if err != nil {
		return err
	}
	occ, err := p.Occupancy()
	if err != nil {
		return err
	}
	if occ != s.Occupancy {
		return fmt.Errorf("%w: occupancy does not match placement", board.ErrInvalidPlacement)
	}
	for i, seed := range s.Seeds {
		if int(seed) >= commitment.MaxSeed {
			return fmt.Errorf("seed %d of cell %d out of range", seed, i)
		}
	}
	return nil
}

// Tree returns the Merkle tree over the board, building it on first use.
func (s *Secrets) Tree() *commitment.Tree {
	if s.tree == nil {
		s.tree = commitment.BuildTree(s.Occupancy, s.Seeds)
	}
	return s.tree
}

// Commitment returns what the player publishes for this board.
func (s *Secrets) Commitment() commitment.Commitment {
	return commitment.Commitment{
		MerkleRoot: s.Tree().Root(),
		ShipsHash:  commitment.CommitShipsString(s.Placement, s.ShipSeed),
	}
}

// Reveal returns the proof, occupancy, and seed answering a shot at cell.
func (s *Secrets) Reveal(cell int) (commitment.Proof, int, int) {
	return s.Tree().Proof(cell), int(s.Occupancy[cell]), int(s.Seeds[cell])
}

// Ships returns the parsed placement.
func (s *Secrets) Ships() (board.Placement, error) {
	return board.ParsePlacement(s.Placement)
}

// Store persists Secrets per (player, game).
type Store interface {
	Save(ctx context.Context, s *Secrets) error
	// Load returns ErrNotFound when nothing is stored.
	Load(ctx context.Context, player string, gameID uint64) (*Secrets, error)
	Delete(ctx context.Context, player string, gameID uint64) error
	// Games lists the game IDs with stored secrets for player, ascending.
	Games(ctx context.Context, player string) ([]uint64, error)
	Close() error
}

func key(prefix, player string, gameID uint64) string {
	return fmt.Sprintf("%s%s:%020d", prefix, player, gameID)
}

func seal(passphrase string, s *Secrets) ([]byte, error) {
	if s.GameID == 0 {
		return nil, errors.New("secrets have no game id")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	plain, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	box, err := crypto.Seal(passphrase, plain)
	if err != nil {
		return nil, fmt.Errorf("seal secrets: %w", err)
	}
	return json.Marshal(box)
}

func open(passphrase string, data []byte) (*Secrets, error) {
	var box crypto.SealedBox
	if err := json.Unmarshal(data, &box); err != nil {
		return nil, fmt.Errorf("decode sealed secrets: %w", err)
	}
	plain, err := box.Open(passphrase)
	if err != nil {
		return nil, err
	}
	var s Secrets
	if err := json.Unmarshal(plain, &s); err != nil {
		return nil, fmt.Errorf("decode secrets: %w", err)
	}
	return &s, nil
}
