package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// BlockStore persists blocks for Blockchain. Implementations live in the
// storage package.
type BlockStore interface {
	GetBlock(hash string) (*Block, error)
	GetBlockByHeight(height int64) (*Block, error)
	// GetTip returns the current tip hash, or ("", nil) for a fresh chain.
	GetTip() (string, error)
	// CommitBlock writes the block, its height index entry and the new tip
	// atomically.
	CommitBlock(block *Block) error
}

// Blockchain is the canonical chain. Block height is the clock game
// timeouts are measured against, so Height is read on every query.
type Blockchain struct {
	mu     sync.RWMutex
	store  BlockStore
	tip    *Block
	height int64
}

// NewBlockchain returns a Blockchain backed by store.
// Call Init() to load an existing chain tip from storage.
func NewBlockchain(store BlockStore) *Blockchain {
	return &Blockchain{store: store}
}

// Init loads the persisted tip from the block store.
func (bc *Blockchain) Init() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	tipHash, err := bc.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if tipHash == "" {
		return nil // fresh chain
	}
	tip, err := bc.store.GetBlock(tipHash)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	bc.tip = tip
	bc.height = tip.Header.Height
	return nil
}

// AddBlock checks the block's integrity and its linkage to the tip, then
// persists it and advances the tip. The first block after genesis fixes
// the chain ID every later block must carry.
func (bc *Blockchain) AddBlock(block *Block) error {
	if err := block.CheckIntegrity(); err != nil {
		return err
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	if tip := bc.tip; tip != nil {
		switch {
		case block.Header.ChainID != tip.Header.ChainID:
			return fmt.Errorf("chain id %q does not match %q", block.Header.ChainID, tip.Header.ChainID)
		case block.Header.Height != bc.height+1:
			return fmt.Errorf("block height %d does not follow tip %d", block.Header.Height, bc.height)
		case block.Header.PrevHash != tip.Hash:
			return fmt.Errorf("prev_hash mismatch: got %s want %s", block.Header.PrevHash, tip.Hash)
		}
	}

	if err := bc.store.CommitBlock(block); err != nil {
		return fmt.Errorf("commit block %d: %w", block.Header.Height, err)
	}
	bc.tip = block
	bc.height = block.Header.Height
	return nil
}

// GetBlock returns a block by its hash. Stores are safe for concurrent
// reads, so lookups do not take the chain lock.
func (bc *Blockchain) GetBlock(hash string) (*Block, error) { return bc.store.GetBlock(hash) }

// GetBlockByHeight returns the canonical block at height.
func (bc *Blockchain) GetBlockByHeight(height int64) (*Block, error) {
	return bc.store.GetBlockByHeight(height)
}

// Tip returns the current chain tip, or nil for a fresh chain.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// Height returns the height of the tip, 0 for a fresh chain.
func (bc *Blockchain) Height() int64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.height
}
