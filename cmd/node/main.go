// Command node runs a battlechain ledger node: block production, the game
// state machine, the event indexer, and the JSON-RPC and websocket API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/tolelom/battlechain/config"
	"github.com/tolelom/battlechain/consensus"
	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/events"
	"github.com/tolelom/battlechain/indexer"
	"github.com/tolelom/battlechain/internal/logger"
	"github.com/tolelom/battlechain/internal/metrics"
	"github.com/tolelom/battlechain/rpc"
	"github.com/tolelom/battlechain/storage"
	"github.com/tolelom/battlechain/vm"
	"github.com/tolelom/battlechain/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/battlechain/vm/modules/battleship"
	_ "github.com/tolelom/battlechain/vm/modules/economy"
)

const envPassword = "BATTLECHAIN_PASSWORD"

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	envFile := flag.String("env", ".env", "optional .env file with overrides")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat == "json")
	log := logger.With("component", "node")

	// The keystore password comes from the environment; flags show up in ps.
	password := os.Getenv(envPassword)
	if password == "" {
		log.Warn("keystore password not set, using an empty password", "env", envPassword)
	}

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			logger.Fatal("generate key", "err", err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			logger.Fatal("save key", "err", err)
		}
		fmt.Printf("Generated key. Public key (validator address): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", "err", err)
	}

	// ---- load validator key ----
	privKey, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		logger.Fatal("load key", "path", *keyPath, "err", err)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatal("create data dir", "err", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		logger.Fatal("open db", "err", err)
	}
	defer db.Close()

	// state, blocks, and indexes share one DB under different key prefixes
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewLevelBlockStore(db))
	if err := bc.Init(); err != nil {
		logger.Fatal("blockchain init", "err", err)
	}

	// ---- genesis block (if fresh chain) ----
	if tip := bc.Tip(); tip != nil && tip.Header.ChainID != cfg.Genesis.ChainID {
		logger.Fatal("data dir belongs to another chain", "have", tip.Header.ChainID, "want", cfg.Genesis.ChainID)
	}
	if bc.Tip() == nil {
		genesis, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			logger.Fatal("genesis", "err", err)
		}
		if err := bc.AddBlock(genesis); err != nil {
			logger.Fatal("add genesis", "err", err)
		}
		log.Info("genesis block committed", "hash", genesis.Hash, "chain_id", cfg.Genesis.ChainID)
	}

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	mempool := core.NewMempool()
	params := cfg.Params()
	exec := vm.NewExecutor(state, emitter, params)
	poa := consensus.New(cfg, bc, state, mempool, exec, emitter, privKey)

	m := metrics.New(mempool.Size)
	m.Observe(emitter)

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcServer := rpc.NewServer(rpcAddr, rpc.NewHandler(bc, mempool, state, idx, params), cfg.RPCAuthToken)
	rpcServer.Handle("/metrics", m.Handler())
	if err := rpcServer.Start(); err != nil {
		logger.Fatal("rpc start", "addr", rpcAddr, "err", err)
	}
	defer rpcServer.Stop()
	log.Info("rpc listening", "addr", rpcServer.Addr(), "auth", cfg.RPCAuthToken != "")

	// ---- consensus loop ----
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poa.Run(ctx, cfg.Interval())
	}()
	log.Info("consensus running",
		"validator", privKey.Public().Hex(),
		"interval", cfg.Interval(),
		"inactivity_gap", cfg.InactivityTimeGap,
		"tx_types", vm.Types())

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	// 1. Stop consensus first (no new blocks written)
	cancel()
	wg.Wait()

	// 2. Deferred calls run in LIFO: rpcServer.Stop → db.Close
	log.Info("shutdown complete")
}

// loadConfig reads path, falling back to defaults when it does not exist,
// then applies environment overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = config.DefaultConfig()
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
