// Package battleship registers the game transactions with the VM. Each
// handler decodes its payload and runs the call through a game.Machine bound
// to the transaction's state, so a rejected call rolls back with the
// transaction.
package battleship

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/battlechain/commitment"
	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/game"
	"github.com/tolelom/battlechain/vm"
)

func init() {
	vm.Register(core.TxCreateGame, handleCreateGame)
	vm.Register(core.TxJoinGame, handleJoinGame)
	vm.Register(core.TxLaunchTorpedo, handleLaunchTorpedo)
	vm.Register(core.TxConfirmLegitWin, handleConfirmLegitWin)
	vm.Register(core.TxQuitGame, handleQuitGame)
	vm.Register(core.TxCloseGame, handleCloseGame)
}

// ledger exposes the transaction's state as the game table and the bank.
type ledger struct {
	state core.State
}

func (l ledger) NextGameID() (uint64, error) { return l.state.NextGameID() }

func (l ledger) GetGame(id uint64) (*game.Game, error) {
	g, err := l.state.GetGame(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, game.ErrGameNotFound
	}
	return g, err
}

func (l ledger) SetGame(g *game.Game) error { return l.state.SetGame(g) }

func (l ledger) Debit(addr string, amount uint64) error { return vm.Debit(l.state, addr, amount) }
func (l ledger) Credit(addr string, amount uint64) error { return vm.Credit(l.state, addr, amount) }

func machine(ctx *vm.Context) (*game.Machine, game.Env) {
	l := ledger{state: ctx.State}
	env := game.Env{
		Caller: ctx.Tx.From,
		Block:  ctx.Block.Header.Height,
		TxID:   ctx.Tx.ID,
	}
	return game.NewMachine(l, l, ctx.Emit, ctx.Params.Game), env
}

func decode(payload json.RawMessage, v any, typ core.TxType) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", typ, err)
	}
	return nil
}

func handleCreateGame(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CreateGamePayload
	if err := decode(payload, &p, core.TxCreateGame); err != nil {
		return err
	}
	m, env := machine(ctx)
	_, err := m.CreateGame(env, p.Bet, commitment.Commitment{MerkleRoot: p.MerkleRoot, ShipsHash: p.ShipsHash})
	return err
}

func handleJoinGame(ctx *vm.Context, payload json.RawMessage) error {
	var p core.JoinGamePayload
	if err := decode(payload, &p, core.TxJoinGame); err != nil {
		return err
	}
	m, env := machine(ctx)
	_, err := m.JoinGame(env, p.GameID, p.Bet, commitment.Commitment{MerkleRoot: p.MerkleRoot, ShipsHash: p.ShipsHash})
	return err
}

func handleLaunchTorpedo(ctx *vm.Context, payload json.RawMessage) error {
	var p core.LaunchTorpedoPayload
	if err := decode(payload, &p, core.TxLaunchTorpedo); err != nil {
		return err
	}
	m, env := machine(ctx)
	_, err := m.LaunchTorpedo(env, p.GameID, game.Move{
		Proof: commitment.Proof(p.Proof),
		Claim: p.PrevMoveResult,
		Seed:  p.Seed,
		Row:   p.Row,
		Col:   p.Col,
	})
	return err
}

func handleConfirmLegitWin(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ConfirmLegitWinPayload
	if err := decode(payload, &p, core.TxConfirmLegitWin); err != nil {
		return err
	}
	m, env := machine(ctx)
	_, err := m.ConfirmLegitWin(env, p.GameID, game.Reveal{
		Board:          p.Board,
		Seeds:          p.BoardSeeds,
		ShipsPositions: p.ShipsPositions,
		ShipSeed:       p.ShipsPositionSeed,
	})
	return err
}

func handleQuitGame(ctx *vm.Context, payload json.RawMessage) error {
	var p core.GameRefPayload
	if err := decode(payload, &p, core.TxQuitGame); err != nil {
		return err
	}
	m, env := machine(ctx)
	_, err := m.QuitGame(env, p.GameID)
	return err
}

func handleCloseGame(ctx *vm.Context, payload json.RawMessage) error {
	var p core.GameRefPayload
	if err := decode(payload, &p, core.TxCloseGame); err != nil {
		return err
	}
	m, env := machine(ctx)
	_, err := m.CloseGame(env, p.GameID)
	return err
}
