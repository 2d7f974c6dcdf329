package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/game"
)

// Environment variables that override the JSON config.
const (
	EnvDataDir           = "BATTLECHAIN_DATA_DIR"
	EnvRPCPort           = "BATTLECHAIN_RPC_PORT"
	EnvRPCAuthToken      = "BATTLECHAIN_RPC_TOKEN"
	EnvBlockInterval     = "BATTLECHAIN_BLOCK_INTERVAL"
	EnvInactivityTimeGap = "BATTLECHAIN_INACTIVITY_GAP"
	EnvChainID           = "BATTLECHAIN_CHAIN_ID"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogFormat         = "LOG_FORMAT"
)

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id"`
	Alloc   map[string]uint64 `json:"alloc"` // pubkey hex → initial balance
}

// Config holds all node configuration.
type Config struct {
	NodeID      string   `json:"node_id"`
	DataDir     string   `json:"data_dir"`
	RPCPort     int      `json:"rpc_port"`
	MaxBlockTxs int      `json:"max_block_txs"` // max transactions per block; 0 → 500
	Validators  []string `json:"validators"`    // authorised proposer pubkey hexes
	// BlockInterval is a Go duration string such as "2s".
	BlockInterval string `json:"block_interval"`
	// InactivityTimeGap is counted in blocks.
	InactivityTimeGap int64         `json:"inactivity_time_gap"`
	RPCAuthToken      string        `json:"rpc_auth_token,omitempty"`
	LogLevel          string        `json:"log_level"`
	LogFormat         string        `json:"log_format"` // text or json
	Genesis           GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:            "node0",
		DataDir:           "./data",
		RPCPort:           8545,
		MaxBlockTxs:       500,
		BlockInterval:     "2s",
		InactivityTimeGap: 30,
		LogLevel:          "info",
		LogFormat:         "text",
		Genesis: GenesisConfig{
			ChainID: "battlechain-dev",
			Alloc:   map[string]uint64{},
		},
	}
}

// Interval parses BlockInterval, falling back to two seconds.
func (c *Config) Interval() time.Duration {
	d, err := time.ParseDuration(c.BlockInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// Params returns the chain parameters derived from the config.
func (c *Config) Params() core.Params {
	return core.Params{
		ChainID: c.Genesis.ChainID,
		Game:    game.Params{InactivityTimeGap: c.InactivityTimeGap},
	}
}

// Validate rejects configurations the node cannot run with.
func (c *Config) Validate() error {
	if c.Genesis.ChainID == "" {
		return errors.New("genesis.chain_id is required")
	}
	if c.InactivityTimeGap <= 0 {
		return fmt.Errorf("inactivity_time_gap must be > 0, got %d", c.InactivityTimeGap)
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port out of range: %d", c.RPCPort)
	}
	if _, err := time.ParseDuration(c.BlockInterval); err != nil {
		return fmt.Errorf("block_interval: %w", err)
	}
	return nil
}

// Load reads a JSON config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv loads .env style files into the process environment. Missing files
// are skipped; variables already set are not overwritten.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg fields from the environment.
func ApplyEnv(cfg *Config) error {
	if v, ok := lookup(EnvDataDir); ok {
		cfg.DataDir = v
	}
	if v, ok := lookup(EnvRPCPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRPCPort, err)
		}
		cfg.RPCPort = port
	}
	if v, ok := lookup(EnvRPCAuthToken); ok {
		cfg.RPCAuthToken = v
	}
	if v, ok := lookup(EnvBlockInterval); ok {
		cfg.BlockInterval = v
	}
	if v, ok := lookup(EnvInactivityTimeGap); ok {
		gap, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvInactivityTimeGap, err)
		}
		cfg.InactivityTimeGap = gap
	}
	if v, ok := lookup(EnvChainID); ok {
		cfg.Genesis.ChainID = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup(EnvLogFormat); ok {
		cfg.LogFormat = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
