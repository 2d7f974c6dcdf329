package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/battlechain/commitment"
	"github.com/tolelom/battlechain/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer        TxType = "transfer"
	TxCreateGame      TxType = "create_game"
	TxJoinGame        TxType = "join_game"
	TxLaunchTorpedo   TxType = "launch_torpedo"
	TxConfirmLegitWin TxType = "confirm_legit_win"
	TxQuitGame        TxType = "quit_game"
	TxCloseGame       TxType = "close_game"
)

// Transaction is the atomic unit of work on the chain.
// From holds the sender's full hex-encoded ed25519 public key (64 chars).
// Signature covers all fields except ID and Signature.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = priv.Sign([]byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return pub.Verify([]byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload transfers native tokens.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// CreateGamePayload opens a game and escrows Bet from the sender.
type CreateGamePayload struct {
	Bet        uint64          `json:"bet"`
	MerkleRoot commitment.Hash `json:"merkle_root"`
	ShipsHash  commitment.Hash `json:"ships_hash"`
}

// JoinGamePayload joins an open game with a matching bet.
type JoinGamePayload struct {
	GameID     uint64          `json:"game_id"`
	Bet        uint64          `json:"bet"`
	MerkleRoot commitment.Hash `json:"merkle_root"`
	ShipsHash  commitment.Hash `json:"ships_hash"`
}

// LaunchTorpedoPayload reveals the previous shot against the sender and
// fires at (Row, Col). Proof, PrevMoveResult and Seed are placeholders on
// the opening launch.
type LaunchTorpedoPayload struct {
	GameID         uint64            `json:"game_id"`
	Proof          []commitment.Hash `json:"proof"`
	PrevMoveResult int               `json:"prev_move_result"`
	Seed           int               `json:"seed"`
	Row            int               `json:"row"`
	Col            int               `json:"col"`
}

// ConfirmLegitWinPayload reveals the presumptive winner's whole board.
type ConfirmLegitWinPayload struct {
	GameID            uint64 `json:"game_id"`
	Board             []int  `json:"board"`
	BoardSeeds        []int  `json:"board_seeds"`
	ShipsPositions    string `json:"ships_positions"`
	ShipsPositionSeed string `json:"ships_position_seed"`
}

// GameRefPayload names a game; used by quit_game and close_game.
type GameRefPayload struct {
	GameID uint64 `json:"game_id"`
}
