package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/crypto"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock funds the Alloc accounts, commits them, and returns the
// signed block #0. The chain ID is part of the header, so nodes on
// different chains never share a genesis hash.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	addrs := make([]string, 0, len(cfg.Genesis.Alloc))
	for addr := range cfg.Genesis.Alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	for _, addr := range addrs {
		if _, err := crypto.PubKeyFromHex(addr); err != nil {
			return nil, fmt.Errorf("genesis alloc %q: %w", addr, err)
		}
		acc := &core.Account{Address: addr, Balance: cfg.Genesis.Alloc[addr]}
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(cfg.Genesis.ChainID, 0, GenesisHash, proposerPriv.Public().Hex(), nil)
	block.Header.StateRoot = stateRoot
	block.Sign(proposerPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}
