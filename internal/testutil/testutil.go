// Package testutil builds throwaway stores and game fixtures for tests
// across the module. Never import this in production code.
package testutil

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tolelom/battlechain/board"
	"github.com/tolelom/battlechain/secrets"
	"github.com/tolelom/battlechain/storage"
)

// Fleet places the five ships on rows 0..4, each starting at column 0.
const Fleet = "H005H104H203H303H402"

// NewMemDB opens a LevelDB on memory storage. It panics if the engine
// cannot start, which only happens on a broken build.
func NewMemDB() *storage.LevelDB {
	db, err := storage.NewMemLevelDB()
	if err != nil {
		panic(err)
	}
	return db
}

// NewMemBlockStore returns a block store over a fresh NewMemDB.
func NewMemBlockStore() *storage.LevelBlockStore {
	return storage.NewLevelBlockStore(NewMemDB())
}

// NewStateDB returns a storage.StateDB over a fresh NewMemDB.
func NewStateDB() *storage.StateDB {
	return storage.NewStateDB(NewMemDB())
}

// Secrets generates a validated board secret for player laid out as
// placement, drawing seeds from a generator fixed by seed.
func Secrets(t testing.TB, player, placement string, seed int64) *secrets.Secrets {
	t.Helper()
	p, err := board.ParsePlacement(placement)
	require.NoError(t, err)
	s, err := secrets.Generate(player, p, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	return s
}
