package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/battlechain/crypto"
)

// BlockHeader contains the block metadata that is hashed and signed.
type BlockHeader struct {
	ChainID   string `json:"chain_id"`
	Height    int64  `json:"height"`
	PrevHash  string `json:"prev_hash"`
	StateRoot string `json:"state_root"` // state after executing this block
	TxRoot    string `json:"tx_root"`    // binary hash tree over the tx ids
	Timestamp int64  `json:"timestamp"`
	Proposer  string `json:"proposer"` // pubkey hex
}

// Block is a collection of transactions with a signed header.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

var (
	ErrBlockHash   = errors.New("block hash does not match header")
	ErrBlockTxRoot = errors.New("tx root does not match transactions")
)

// ComputeHash returns the SHA-256 of the serialised header.
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign sets Hash and signs it with the proposer's key.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Hash = b.ComputeHash()
	b.Signature = priv.Sign([]byte(b.Hash))
}

// Verify checks the block signature against pub.
func (b *Block) Verify(pub crypto.PublicKey) error {
	return pub.Verify([]byte(b.Hash), b.Signature)
}

// CheckIntegrity reports whether Hash and TxRoot agree with the block's
// contents. It does not check the signature.
func (b *Block) CheckIntegrity() error {
	if b.Hash != b.ComputeHash() {
		return fmt.Errorf("block %d: %w", b.Header.Height, ErrBlockHash)
	}
	if b.Header.TxRoot != ComputeTxRoot(b.Transactions) {
		return fmt.Errorf("block %d: %w", b.Header.Height, ErrBlockTxRoot)
	}
	return nil
}

// TxIDs lists the ids of the block's transactions in order.
func (b *Block) TxIDs() []string {
	ids := make([]string, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.ID
	}
	return ids
}

// ComputeTxRoot hashes the transaction ids pairwise up to a single root.
// An odd node at any level is carried up unchanged; no transactions hash
// to the digest of the empty string.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash(nil)
	}
	level := make([]string, len(txs))
	for i, tx := range txs {
		level[i] = tx.ID
	}
	for len(level) > 1 {
		next := level[:0:0]
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, crypto.Hash([]byte(level[i]+level[i+1])))
		}
		level = next
	}
	return level[0]
}

// NewBlock creates an unsigned block on chainID.
func NewBlock(chainID string, height int64, prevHash, proposer string, txs []*Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			ChainID:   chainID,
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: time.Now().UnixNano(),
			Proposer:  proposer,
		},
		Transactions: txs,
	}
}
