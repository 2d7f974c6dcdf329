package core

import "github.com/tolelom/battlechain/events"

// ReceiptStatus is the outcome of a transaction.
type ReceiptStatus string

const (
	ReceiptOK     ReceiptStatus = "ok"
	ReceiptFailed ReceiptStatus = "failed"
)

// Receipt records what happened to a transaction. A failed transaction is
// not part of any block; BlockHeight is the block it was dropped from.
type Receipt struct {
	TxID        string         `json:"tx_id"`
	Type        TxType         `json:"type"`
	From        string         `json:"from"`
	Status      ReceiptStatus  `json:"status"`
	BlockHeight int64          `json:"block_height"`
	Reason      string         `json:"reason,omitempty"`
	Logs        []events.Event `json:"logs,omitempty"`
}

// OK reports whether the transaction was applied.
func (r *Receipt) OK() bool { return r.Status == ReceiptOK }
