// Package player drives one participant through games: it keeps the board
// secrets, builds reveals from the projected view, and submits signed calls
// to a node.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/tolelom/battlechain/board"
	"github.com/tolelom/battlechain/client"
	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/events"
	"github.com/tolelom/battlechain/game"
	"github.com/tolelom/battlechain/projector"
	"github.com/tolelom/battlechain/rpc"
	"github.com/tolelom/battlechain/secrets"
	"github.com/tolelom/battlechain/wallet"
)

// Player acts for a single wallet. Calls are serialised so nonces never
// collide.
type Player struct {
	wallet  *wallet.Wallet
	client  *client.Client
	store   secrets.Store
	chainID string
	fee     uint64
	rand    io.Reader
	log     *slog.Logger

	mu sync.Mutex
}

// Option configures a Player.
type Option func(*Player)

// WithFee sets the fee paid on every transaction. Default 0.
func WithFee(fee uint64) Option { return func(p *Player) { p.fee = fee } }

// WithRand sets the source of board seeds. Default crypto/rand.
func WithRand(r io.Reader) Option { return func(p *Player) { p.rand = r } }

// New returns a player for w on the node behind c. It asks the node for the
// chain ID so every transaction is bound to that chain.
func New(ctx context.Context, w *wallet.Wallet, c *client.Client, store secrets.Store, opts ...Option) (*Player, error) {
	params, err := c.Params(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain params: %w", err)
	}
	p := &Player{
		wallet:  w,
		client:  c,
		store:   store,
		chainID: params.ChainID,
	}
	for _, o := range opts {
		o(p)
	}
	p.log = slog.Default().With("component", "player", "address", w.Address())
	return p, nil
}

// Address is the player's on-chain identity.
func (p *Player) Address() string { return p.wallet.PubKey() }

// NewSecrets validates placement and draws fresh seeds for it.
func (p *Player) NewSecrets(placement string) (*secrets.Secrets, error) {
	ships, err := board.ParsePlacement(placement)
	if err != nil {
		return nil, err
	}
	if err := ships.Validate(); err != nil {
		return nil, err
	}
	return secrets.Generate(p.Address(), ships, p.rand)
}

// submit signs the transaction built for the account's next nonce, sends it,
// and waits for the receipt. Rejections unwrap to the game error sentinels.
func (p *Player) submit(ctx context.Context, build func(nonce uint64) (*core.Transaction, error)) (*core.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acc, err := p.client.Balance(ctx, p.Address())
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	tx, err := build(acc.Nonce)
	if err != nil {
		return nil, err
	}
	r, err := p.client.SubmitAndWait(ctx, tx)
	if err != nil {
		return r, err
	}
	p.log.Debug("tx included", "type", tx.Type, "tx", r.TxID, "height", r.BlockHeight)
	return r, nil
}

// CreateGame opens a game with bet behind s and stores s under the new
// game's ID.
func (p *Player) CreateGame(ctx context.Context, s *secrets.Secrets, bet uint64) (uint64, error) {
	r, err := p.submit(ctx, func(nonce uint64) (*core.Transaction, error) {
		return p.wallet.CreateGame(p.chainID, s.Commitment(), bet, nonce, p.fee)
	})
	if err != nil {
		return 0, err
	}
	id, err := createdID(r)
	if err != nil {
		return 0, err
	}
	s.GameID = id
	if err := p.store.Save(ctx, s); err != nil {
		return id, fmt.Errorf("save secrets of game %d: %w", id, err)
	}
	p.log.Info("game created", "game", id, "bet", bet)
	return id, nil
}

func createdID(r *core.Receipt) (uint64, error) {
	for _, ev := range r.Logs {
		if ev.Type != events.EventGameCreated {
			continue
		}
		var e events.GameCreated
		if err := ev.Decode(&e); err != nil {
			return 0, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		return e.GameID, nil
	}
	return 0, fmt.Errorf("receipt of %s has no %s event", r.TxID, events.EventGameCreated)
}

// JoinGame joins gameID with bet behind s. The secrets are stored before
// the call is sent and dropped again if it is rejected.
func (p *Player) JoinGame(ctx context.Context, gameID uint64, s *secrets.Secrets, bet uint64) error {
	s.GameID = gameID
	if err := p.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save secrets of game %d: %w", gameID, err)
	}
	_, err := p.submit(ctx, func(nonce uint64) (*core.Transaction, error) {
		return p.wallet.JoinGame(p.chainID, gameID, s.Commitment(), bet, nonce, p.fee)
	})
	if err != nil {
		if delErr := p.store.Delete(ctx, p.Address(), gameID); delErr != nil {
			p.log.Warn("drop secrets after failed join", "game", gameID, "err", delErr)
		}
		return err
	}
	p.log.Info("game joined", "game", gameID, "bet", bet)
	return nil
}

// View replays gameID's log from the node into the player's view.
func (p *Player) View(ctx context.Context, gameID uint64) (*projector.View, error) {
	s, err := p.store.Load(ctx, p.Address(), gameID)
	if err != nil && !errors.Is(err, secrets.ErrNotFound) {
		return nil, err
	}
	log, err := p.client.GameEvents(ctx, gameID, 0)
	if err != nil {
		return nil, err
	}
	return projector.Project(log, p.Address(), s)
}

// LaunchTorpedo fires at (row, col). The reveal of the opponent's pending
// shot is built from the stored secrets; the opening launch carries the
// placeholder reveal.
func (p *Player) LaunchTorpedo(ctx context.Context, gameID uint64, row, col int) (*projector.View, error) {
	s, err := p.store.Load(ctx, p.Address(), gameID)
	if err != nil {
		return nil, fmt.Errorf("load secrets of game %d: %w", gameID, err)
	}
	v, err := p.View(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !v.MyTurn() {
		return v, fmt.Errorf("%w: game %d waits for %s", game.ErrOutOfTurn, gameID, v.InTurn)
	}

	payload := core.LaunchTorpedoPayload{GameID: gameID, Row: row, Col: col}
	// with nothing pending, as on the opening move, the reveal fields stay
	// placeholders
	if !v.FirstMove && v.PendingCell >= 0 {
		proof, occ, seed := s.Reveal(v.PendingCell)
		payload.Proof = proof
		payload.PrevMoveResult = occ
		payload.Seed = seed
	}

	if _, err := p.submit(ctx, func(nonce uint64) (*core.Transaction, error) {
		return p.wallet.LaunchTorpedo(p.chainID, payload, nonce, p.fee)
	}); err != nil {
		return nil, err
	}
	return p.View(ctx, gameID)
}

// ConfirmLegitWin reveals the whole board as the presumptive winner.
func (p *Player) ConfirmLegitWin(ctx context.Context, gameID uint64) (*projector.View, error) {
	s, err := p.store.Load(ctx, p.Address(), gameID)
	if err != nil {
		return nil, fmt.Errorf("load secrets of game %d: %w", gameID, err)
	}
	cells := make([]int, board.Cells)
	for i, v := range s.Occupancy {
		cells[i] = int(v)
	}
	payload := core.ConfirmLegitWinPayload{
		GameID:            gameID,
		Board:             cells,
		BoardSeeds:        s.Seeds.Ints(),
		ShipsPositions:    s.Placement,
		ShipsPositionSeed: s.ShipSeed,
	}
	if _, err := p.submit(ctx, func(nonce uint64) (*core.Transaction, error) {
		return p.wallet.ConfirmLegitWin(p.chainID, payload, nonce, p.fee)
	}); err != nil {
		return nil, err
	}
	return p.View(ctx, gameID)
}

// QuitGame abandons gameID, or claims it when the opponent let the
// inactivity gap pass on their turn.
func (p *Player) QuitGame(ctx context.Context, gameID uint64) (*projector.View, error) {
	if _, err := p.submit(ctx, func(nonce uint64) (*core.Transaction, error) {
		return p.wallet.QuitGame(p.chainID, gameID, nonce, p.fee)
	}); err != nil {
		return nil, err
	}
	return p.View(ctx, gameID)
}

// CloseGame withdraws an unjoined game.
func (p *Player) CloseGame(ctx context.Context, gameID uint64) (*projector.View, error) {
	if _, err := p.submit(ctx, func(nonce uint64) (*core.Transaction, error) {
		return p.wallet.CloseGame(p.chainID, gameID, nonce, p.fee)
	}); err != nil {
		return nil, err
	}
	return p.View(ctx, gameID)
}

// OpenGames lists games waiting for an opponent, other than the player's own.
func (p *Player) OpenGames(ctx context.Context) ([]events.GameCreated, error) {
	return p.client.OpenGames(ctx, p.Address())
}

// Games lists the games the player holds secrets for.
func (p *Player) Games(ctx context.Context) ([]uint64, error) {
	return p.store.Games(ctx, p.Address())
}

// Follow streams gameID's log and calls fn with the view after every event,
// until ctx is done, fn returns an error, or the pot is paid out. It folds
// the stream with the same projector View uses for a full replay.
func (p *Player) Follow(ctx context.Context, gameID uint64, fn func(*projector.View) error) error {
	s, err := p.store.Load(ctx, p.Address(), gameID)
	if err != nil {
		return fmt.Errorf("load secrets of game %d: %w", gameID, err)
	}
	proj, err := projector.New(p.Address(), s)
	if err != nil {
		return err
	}
	return p.client.Subscribe(ctx, gameID, 0, func(msg rpc.StreamMessage) error {
		if err := proj.Apply(msg.Event); err != nil {
			return err
		}
		v := proj.View()
		if err := fn(v); err != nil {
			return err
		}
		if v.Settled() {
			return client.ErrStop
		}
		return nil
	})
}
