package core

import "github.com/tolelom/battlechain/game"

// Account is a balance and the nonce that orders its transactions.
// Address is the hex ed25519 public key.
type Account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Params are the chain-wide constants every handler sees. They are fixed
// at genesis.
type Params struct {
	ChainID string      `json:"chain_id"`
	Game    game.Params `json:"game"`
}

// State is the world state transactions execute against: accounts and
// the game table, behind a write buffer that can be rolled back to a
// snapshot when a transaction fails.
type State interface {
	// GetAccount never fails for an unknown address; it returns a zero
	// account.
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// GetGame returns ErrNotFound for unknown IDs.
	GetGame(id uint64) (*game.Game, error)
	SetGame(g *game.Game) error
	// NextGameID bumps and returns the game counter. IDs start at 1.
	NextGameID() (uint64, error)

	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot hashes the state including unflushed writes. The block
	// producer signs it into the header before calling Commit.
	ComputeRoot() string
	Commit() error
}
