// Package testnode runs a complete single-validator node in-process for
// tests: in-memory storage, executor with every module, PoA, indexer and the
// RPC server on a random port. Never import this in production code.
package testnode

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tolelom/battlechain/config"
	"github.com/tolelom/battlechain/consensus"
	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/events"
	"github.com/tolelom/battlechain/indexer"
	"github.com/tolelom/battlechain/internal/metrics"
	"github.com/tolelom/battlechain/internal/testutil"
	"github.com/tolelom/battlechain/rpc"
	"github.com/tolelom/battlechain/storage"
	"github.com/tolelom/battlechain/vm"
	"github.com/tolelom/battlechain/wallet"

	_ "github.com/tolelom/battlechain/vm/modules/battleship"
	_ "github.com/tolelom/battlechain/vm/modules/economy"
)

const ChainID = "test-chain"

// Options tune the node. Zero values get test-friendly defaults.
type Options struct {
	// Funded wallets receive Funds at genesis.
	Funded []*wallet.Wallet
	Funds  uint64
	// InactivityTimeGap in blocks; default 3.
	InactivityTimeGap int64
	// BlockInterval; default 50ms. Negative disables the production loop so
	// tests drive blocks with Produce.
	BlockInterval time.Duration
}

// Node is a running test node.
type Node struct {
	URL       string
	WSURL     string
	Validator *wallet.Wallet
	State     *storage.StateDB
	Chain     *core.Blockchain
	Mempool   *core.Mempool
	Indexer   *indexer.Indexer
	Emitter   *events.Emitter
	Metrics   *metrics.Metrics
	PoA       *consensus.PoA
	Params    core.Params
}

// Start boots a node and registers its shutdown with t.Cleanup.
func Start(t testing.TB, opts Options) *Node {
	t.Helper()
	if opts.Funds == 0 {
		opts.Funds = 1_000_000
	}
	if opts.InactivityTimeGap == 0 {
		opts.InactivityTimeGap = 3
	}
	if opts.BlockInterval == 0 {
		opts.BlockInterval = 50 * time.Millisecond
	}

	validator, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.Validators = []string{validator.PubKey()}
	cfg.InactivityTimeGap = opts.InactivityTimeGap
	cfg.Genesis.ChainID = ChainID
	for _, w := range opts.Funded {
		cfg.Genesis.Alloc[w.PubKey()] = opts.Funds
	}

	db := testutil.NewMemDB()
	state := storage.NewStateDB(db)
	t.Cleanup(func() { db.Close() })
	bc := core.NewBlockchain(storage.NewLevelBlockStore(db))
	if err := bc.Init(); err != nil {
		t.Fatal(err)
	}
	genesis, err := config.CreateGenesisBlock(cfg, state, validator.PrivKey())
	if err != nil {
		t.Fatal(err)
	}
	if err := bc.AddBlock(genesis); err != nil {
		t.Fatal(err)
	}

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	mempool := core.NewMempool()
	params := cfg.Params()
	exec := vm.NewExecutor(state, emitter, params)
	poa := consensus.New(cfg, bc, state, mempool, exec, emitter, validator.PrivKey())
	m := metrics.New(mempool.Size)
	m.Observe(emitter)

	srv := rpc.NewServer("127.0.0.1:0", rpc.NewHandler(bc, mempool, state, idx, params), "")
	srv.Handle("/metrics", m.Handler())
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	if opts.BlockInterval > 0 {
		go func() {
			defer close(done)
			poa.Run(ctx, opts.BlockInterval)
		}()
	} else {
		close(done)
	}
	t.Cleanup(func() {
		cancel()
		<-done
		_ = srv.Stop()
	})

	return &Node{
		URL:       fmt.Sprintf("http://%s/", srv.Addr()),
		WSURL:     fmt.Sprintf("ws://%s/ws", srv.Addr()),
		Validator: validator,
		State:     state,
		Chain:     bc,
		Mempool:   mempool,
		Indexer:   idx,
		Emitter:   emitter,
		Metrics:   m,
		PoA:       poa,
		Params:    params,
	}
}

// Produce commits one block. Only use it on nodes started with a negative
// BlockInterval.
func (n *Node) Produce(t testing.TB) *core.Block {
	t.Helper()
	b, err := n.PoA.ProduceBlock()
	if err != nil {
		t.Fatal(err)
	}
	return b
}
