// Package economy registers the native token transfer.
package economy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/events"
	"github.com/tolelom/battlechain/vm"
)

func init() {
	vm.Register(core.TxTransfer, transfer)
}

func transfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	switch {
	case p.Amount == 0:
		return errors.New("transfer amount must be > 0")
	case p.To == "":
		return errors.New("transfer recipient required")
	case p.To == ctx.Tx.From:
		return errors.New("cannot transfer to self")
	}
	if err := vm.Debit(ctx.State, ctx.Tx.From, p.Amount); err != nil {
		return err
	}
	if err := vm.Credit(ctx.State, p.To, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.New(events.EventTokenTransfer, 0, events.TokenTransfer{
		From:   ctx.Tx.From,
		To:     p.To,
		Amount: p.Amount,
	}))
	return nil
}
