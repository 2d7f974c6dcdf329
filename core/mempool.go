package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	maxMempoolSize = 10_000
	maxPerSender   = 64
	maxTxAge       = time.Hour
	maxTxFuture    = 5 * time.Minute
)

var (
	ErrTxKnown        = errors.New("tx already in pool")
	ErrMempoolFull    = errors.New("mempool full")
	ErrSenderBacklog  = errors.New("too many pending txs from sender")
	ErrTxOutsideClock = errors.New("tx timestamp outside accepted window")
)

// Mempool holds signed transactions waiting for a block. It is safe for
// concurrent use.
type Mempool struct {
	mu       sync.RWMutex
	txs      map[string]*Transaction
	ord      []string // arrival order
	bySender map[string]int
	now      func() time.Time
}

// NewMempool creates an empty mempool.
func NewMempool() *Mempool {
	return &Mempool{
		txs:      make(map[string]*Transaction),
		bySender: make(map[string]int),
		now:      time.Now,
	}
}

// Add verifies tx and queues it. A tx stamped more than an hour in the
// past or five minutes in the future is refused.
func (m *Mempool) Add(tx *Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("invalid tx signature: %w", err)
	}
	ts := time.Unix(0, tx.Timestamp)
	if now := m.now(); now.Sub(ts) > maxTxAge || ts.Sub(now) > maxTxFuture {
		return ErrTxOutsideClock
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.txs[tx.ID] != nil:
		return ErrTxKnown
	case len(m.txs) >= maxMempoolSize:
		return ErrMempoolFull
	case m.bySender[tx.From] >= maxPerSender:
		return ErrSenderBacklog
	}
	m.txs[tx.ID] = tx
	m.ord = append(m.ord, tx.ID)
	m.bySender[tx.From]++
	return nil
}

// Pending returns up to n transactions in arrival order, except that each
// sender's transactions are reordered by nonce among the slots they hold.
// A player who submits two moves back to back gets them executed in
// nonce order even if they arrived swapped.
func (m *Mempool) Pending(n int) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n > len(m.ord) {
		n = len(m.ord)
	}
	out := make([]*Transaction, 0, n)
	slots := make(map[string][]int)
	for _, id := range m.ord[:n] {
		tx := m.txs[id]
		slots[tx.From] = append(slots[tx.From], len(out))
		out = append(out, tx)
	}
	for _, idx := range slots {
		if len(idx) < 2 {
			continue
		}
		group := make([]*Transaction, len(idx))
		for i, j := range idx {
			group[i] = out[j]
		}
		sort.SliceStable(group, func(a, b int) bool { return group[a].Nonce < group[b].Nonce })
		for i, j := range idx {
			out[j] = group[i]
		}
	}
	return out
}

// Remove drops the given transactions, typically after a block commit.
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		tx, ok := m.txs[id]
		if !ok {
			continue
		}
		delete(m.txs, id)
		if m.bySender[tx.From]--; m.bySender[tx.From] <= 0 {
			delete(m.bySender, tx.From)
		}
	}
	kept := m.ord[:0]
	for _, id := range m.ord {
		if _, ok := m.txs[id]; ok {
			kept = append(kept, id)
		}
	}
	m.ord = kept
}

// Size returns the number of queued transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}
