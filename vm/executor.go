package vm

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/events"
)

// Context is passed to every Handler and provides access to the chain state,
// the current block, the triggering transaction, and the chain parameters.
// Handlers report events through Emit; they reach subscribers only if the
// transaction succeeds.
type Context struct {
	State  core.State
	Block  *core.Block
	Tx     *core.Transaction
	Params core.Params

	logs []events.Event
}

// Emit buffers ev, stamping it with the transaction ID and block height.
func (c *Context) Emit(ev events.Event) {
	ev.TxID = c.Tx.ID
	ev.BlockHeight = c.Block.Header.Height
	c.logs = append(c.logs, ev)
}

// Logs returns the events buffered so far.
func (c *Context) Logs() []events.Event { return c.logs }

// Executor applies transactions to the state using the global Handler registry.
type Executor struct {
	state   core.State
	emitter *events.Emitter
	params  core.Params
	log     *slog.Logger
}

// NewExecutor creates an Executor with the given state, event emitter and
// chain parameters. emitter may be nil.
func NewExecutor(state core.State, emitter *events.Emitter, params core.Params) *Executor {
	return &Executor{
		state:   state,
		emitter: emitter,
		params:  params,
		log:     slog.Default().With("component", "vm"),
	}
}

// Params returns the chain parameters handed to handlers.
func (e *Executor) Params() core.Params { return e.params }

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
// On success the handler's events are emitted followed by EventTxExecuted;
// on failure the state is reverted and EventTxFailed carries the reason.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	if err := e.executeTx(block, tx); err != nil {
		e.log.Debug("tx rejected", "tx", tx.ID, "type", tx.Type, "err", err)
		failed := events.New(events.EventTxFailed, 0, events.TxFailed{
			Type:   string(tx.Type),
			From:   tx.From,
			Reason: err.Error(),
		})
		failed.TxID = tx.ID
		failed.BlockHeight = block.Header.Height
		e.emit(failed)
		return err
	}
	return nil
}

func (e *Executor) executeTx(block *core.Block, tx *core.Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	ctx, err := e.applyTx(block, tx)
	if err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}

	for _, ev := range ctx.logs {
		e.emit(ev)
	}
	executed := events.New(events.EventTxExecuted, 0, events.TxExecuted{
		Type: string(tx.Type),
		From: tx.From,
		Logs: ctx.logs,
	})
	executed.TxID = tx.ID
	executed.BlockHeight = block.Header.Height
	e.emit(executed)
	return nil
}

func (e *Executor) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

// applyTx deducts the fee, increments the nonce, then dispatches to the handler.
func (e *Executor) applyTx(block *core.Block, tx *core.Transaction) (*Context, error) {
	if e.params.ChainID != "" && tx.ChainID != e.params.ChainID {
		return nil, fmt.Errorf("chain id mismatch: got %q want %q", tx.ChainID, e.params.ChainID)
	}
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return nil, fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Balance < tx.Fee {
		return nil, fmt.Errorf("insufficient balance for fee: have %d need %d", acc.Balance, tx.Fee)
	}
	if acc.Nonce == math.MaxUint64 {
		return nil, fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Balance -= tx.Fee
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return nil, err
	}

	ctx := &Context{
		State:  e.state,
		Block:  block,
		Tx:     tx,
		Params: e.params,
	}
	if err := globalRegistry.Execute(tx.Type, ctx, tx.Payload); err != nil {
		return nil, err
	}
	return ctx, nil
}
