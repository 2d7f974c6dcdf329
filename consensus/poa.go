// Package consensus produces blocks under Proof-of-Authority. Validators
// take turns by height; each block is signed by its proposer and checked
// against the validator list before it is accepted. Blocks are produced
// on a fixed interval even when empty, since the block height is the
// clock game timeouts are measured against.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tolelom/battlechain/config"
	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/crypto"
	"github.com/tolelom/battlechain/events"
	"github.com/tolelom/battlechain/vm"
)

const defaultMaxBlockTxs = 500

var ErrNotProposer = errors.New("not the proposer for this height")

// PoA is the Proof-of-Authority engine for one validator key.
type PoA struct {
	validators []string
	maxTxs     int
	chainID    string

	bc      *core.Blockchain
	state   core.State
	mempool *core.Mempool
	exec    *vm.Executor
	emitter *events.Emitter
	priv    crypto.PrivateKey
	self    string
	log     *slog.Logger
}

// New creates a PoA engine for the local validator identified by priv.
// The chain ID stamped on blocks is the executor's.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	priv crypto.PrivateKey,
) *PoA {
	maxTxs := cfg.MaxBlockTxs
	if maxTxs <= 0 {
		maxTxs = defaultMaxBlockTxs
	}
	return &PoA{
		validators: cfg.Validators,
		maxTxs:     maxTxs,
		chainID:    exec.Params().ChainID,
		bc:         bc,
		state:      state,
		mempool:    mempool,
		exec:       exec,
		emitter:    emitter,
		priv:       priv,
		self:       priv.Public().Hex(),
		log:        slog.Default().With("component", "consensus"),
	}
}

func (p *PoA) proposerAt(height int64) (string, error) {
	if len(p.validators) == 0 {
		return "", errors.New("no validators configured")
	}
	return p.validators[int(height)%len(p.validators)], nil
}

// IsProposer reports whether this node proposes the next block.
func (p *PoA) IsProposer() bool {
	v, err := p.proposerAt(p.bc.Height() + 1)
	return err == nil && v == p.self
}

// ProduceBlock executes pending transactions into the next block, signs
// it and commits it together with the state it produced.
func (p *PoA) ProduceBlock() (*core.Block, error) {
	if !p.IsProposer() {
		return nil, ErrNotProposer
	}

	prevHash, height := config.GenesisHash, int64(1)
	if tip := p.bc.Tip(); tip != nil {
		prevHash, height = tip.Hash, tip.Header.Height+1
	}

	pending := p.mempool.Pending(p.maxTxs)
	block := core.NewBlock(p.chainID, height, prevHash, p.self, nil)

	// A failed transaction is reverted and left out; its tx_failed event
	// is the sender's receipt.
	for _, tx := range pending {
		if err := p.exec.ExecuteTx(block, tx); err != nil {
			p.log.Info("dropped tx", "tx", tx.ID, "type", tx.Type, "err", err)
			continue
		}
		block.Transactions = append(block.Transactions, tx)
	}
	block.Header.TxRoot = core.ComputeTxRoot(block.Transactions)

	// The root comes from the write buffer; nothing is flushed until the
	// block is stored, so a failed AddBlock leaves disk state untouched.
	block.Header.StateRoot = p.state.ComputeRoot()
	block.Sign(p.priv)
	if err := p.ValidateBlock(block); err != nil {
		return nil, fmt.Errorf("self-check: %w", err)
	}
	if err := p.bc.AddBlock(block); err != nil {
		return nil, fmt.Errorf("add block: %w", err)
	}
	if err := p.state.Commit(); err != nil {
		return nil, fmt.Errorf("block %d stored but state commit failed: %w", height, err)
	}

	commit := events.New(events.EventBlockCommit, 0, events.BlockCommit{
		Hash: block.Hash,
		Txs:  len(block.Transactions),
	})
	commit.BlockHeight = height
	p.emitter.Emit(commit)

	ids := make([]string, len(pending))
	for i, tx := range pending {
		ids[i] = tx.ID
	}
	p.mempool.Remove(ids)

	p.log.Debug("block committed", "height", height, "txs", len(block.Transactions), "dropped", len(pending)-len(block.Transactions))
	return block, nil
}

// ValidateBlock checks that block extends the tip on this chain and was
// signed by the validator whose turn it is.
func (p *PoA) ValidateBlock(block *core.Block) error {
	h := block.Header
	expected, err := p.proposerAt(h.Height)
	if err != nil {
		return err
	}
	if h.Proposer != expected {
		return fmt.Errorf("wrong proposer: got %s want %s", h.Proposer, expected)
	}
	if h.ChainID != p.chainID {
		return fmt.Errorf("chain id %q, want %q", h.ChainID, p.chainID)
	}
	pub, err := crypto.PubKeyFromHex(h.Proposer)
	if err != nil {
		return fmt.Errorf("invalid proposer: %w", err)
	}
	if err := block.Verify(pub); err != nil {
		return fmt.Errorf("block signature: %w", err)
	}
	if err := block.CheckIntegrity(); err != nil {
		return err
	}

	tip := p.bc.Tip()
	switch {
	case tip == nil && !config.IsGenesisHash(h.PrevHash):
		return errors.New("first block must reference genesis prev-hash")
	case tip == nil:
		return nil
	case h.PrevHash != tip.Hash:
		return fmt.Errorf("prev_hash mismatch: got %s want %s", h.PrevHash, tip.Hash)
	case h.Height != tip.Header.Height+1:
		return fmt.Errorf("height mismatch: got %d want %d", h.Height, tip.Header.Height+1)
	}
	return nil
}

// Run produces a block every interval until ctx is cancelled.
func (p *PoA) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.IsProposer() {
				continue
			}
			if _, err := p.ProduceBlock(); err != nil {
				p.log.Error("produce block", "err", err)
			}
		}
	}
}
