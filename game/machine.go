package game

import (
	"errors"
	"fmt"

	"github.com/tolelom/battlechain/commitment"
	"github.com/tolelom/battlechain/events"
)

// Registry is the game table keyed by game ID.
type Registry interface {
	// NextGameID allocates the next sequential ID, starting at 1.
	NextGameID() (uint64, error)
	// GetGame returns ErrGameNotFound for unknown IDs.
	GetGame(id uint64) (*Game, error)
	SetGame(g *Game) error
}

// Bank moves stakes between player balances and the escrow.
type Bank interface {
	Debit(addr string, amount uint64) error
	Credit(addr string, amount uint64) error
}

// EmitFunc receives every event in order.
type EmitFunc func(events.Event)

// Params are the chain-wide protocol constants.
type Params struct {
	// InactivityTimeGap is the number of blocks a player may stay idle on
	// their turn before the opponent can claim the pot.
	InactivityTimeGap int64 `json:"inactivity_time_gap"`
}

// Env describes the call being executed.
type Env struct {
	Caller string
	Block  int64
	TxID   string
}

// Machine validates and applies game calls. Every method either returns an
// error having mutated nothing, or applies the whole transition.
type Machine struct {
	games  Registry
	bank   Bank
	emit   EmitFunc
	params Params
}

// NewMachine wires a Machine to its collaborators. emit may be nil.
func NewMachine(games Registry, bank Bank, emit EmitFunc, params Params) *Machine {
	if emit == nil {
		emit = func(events.Event) {}
	}
	return &Machine{games: games, bank: bank, emit: emit, params: params}
}

// call buffers the events of one transition until it is stored.
type call struct {
	m   *Machine
	env Env
	out []events.Event
}

func (m *Machine) begin(env Env) *call { return &call{m: m, env: env} }

func (c *call) publish(typ events.EventType, gameID uint64, payload any) {
	ev := events.New(typ, gameID, payload)
	ev.TxID = c.env.TxID
	ev.BlockHeight = c.env.Block
	c.out = append(c.out, ev)
}

// commit stores g and releases the buffered events.
func (c *call) commit(g *Game) error {
	if err := c.m.games.SetGame(g); err != nil {
		return fmt.Errorf("store game %d: %w", g.ID, err)
	}
	for _, ev := range c.out {
		c.m.emit(ev)
	}
	c.out = nil
	return nil
}

func (m *Machine) load(id uint64) (*Game, error) {
	g, err := m.games.GetGame(id)
	if err != nil {
		if errors.Is(err, ErrGameNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrGameNotFound, id)
		}
		return nil, fmt.Errorf("load game %d: %w", id, err)
	}
	return g, nil
}

// CreateGame escrows bet and opens a game awaiting an opponent.
func (m *Machine) CreateGame(env Env, bet uint64, com commitment.Commitment) (*Game, error) {
	if bet == 0 {
		return nil, fmt.Errorf("%w: bet must be > 0", ErrInvalidBet)
	}
	if com.IsZero() {
		return nil, fmt.Errorf("%w: empty commitment", ErrCommitmentMismatch)
	}
	if err := m.bank.Debit(env.Caller, bet); err != nil {
		return nil, fmt.Errorf("escrow bet: %w", err)
	}
	id, err := m.games.NextGameID()
	if err != nil {
		return nil, fmt.Errorf("allocate game id: %w", err)
	}
	g := &Game{
		ID:            id,
		Challenger:    Side{Address: env.Caller, Bet: bet, Commitment: com},
		Bet:           bet,
		Pot:           bet,
		Status:        StatusAwaitingOpponent,
		CreatedBlock:  env.Block,
		LastMoveBlock: env.Block,
	}
	c := m.begin(env)
	c.publish(events.EventGameCreated, id, events.GameCreated{
		GameID:     id,
		Challenger: env.Caller,
		BetAmount:  bet,
	})
	if err := c.commit(g); err != nil {
		return nil, err
	}
	return g, nil
}

// JoinGame escrows the matching bet. The joiner fires first.
func (m *Machine) JoinGame(env Env, id, bet uint64, com commitment.Commitment) (*Game, error) {
	g, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if g.Status != StatusAwaitingOpponent {
		return nil, fmt.Errorf("%w: game %d is %s", ErrInvalidGameState, id, g.Status)
	}
	if env.Caller == "" || env.Caller == g.Challenger.Address {
		return nil, fmt.Errorf("%w: challenger cannot join own game", ErrInvalidGameState)
	}
	if bet != g.Bet {
		return nil, fmt.Errorf("%w: got %d want %d", ErrBetMismatch, bet, g.Bet)
	}
	if com.IsZero() {
		return nil, fmt.Errorf("%w: empty commitment", ErrCommitmentMismatch)
	}
	if err := m.bank.Debit(env.Caller, bet); err != nil {
		return nil, fmt.Errorf("escrow bet: %w", err)
	}
	g.Opponent = Side{Address: env.Caller, Bet: bet, Commitment: com}
	g.Pot += bet
	g.Status = StatusAwaitingFirstMove
	g.InTurn = env.Caller
	g.LastMoveBlock = env.Block
	c := m.begin(env)
	c.publish(events.EventGameJoined, id, events.GameJoined{
		GameID:     id,
		Challenger: g.Challenger.Address,
		Opponent:   env.Caller,
		BetAmount:  bet,
	})
	if err := c.commit(g); err != nil {
		return nil, err
	}
	return g, nil
}

// CloseGame refunds the challenger of a game nobody joined.
func (m *Machine) CloseGame(env Env, id uint64) (*Game, error) {
	g, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if g.Status != StatusAwaitingOpponent {
		return nil, fmt.Errorf("%w: game %d is %s", ErrInvalidGameState, id, g.Status)
	}
	if env.Caller != g.Challenger.Address {
		return nil, fmt.Errorf("%w: only the challenger can close", ErrNotParticipant)
	}
	c := m.begin(env)
	if err := c.finish(g, "", "", CondChallengerClosed); err != nil {
		return nil, err
	}
	if err := c.commit(g); err != nil {
		return nil, err
	}
	return g, nil
}

// QuitGame ends the game on the caller's request. Before the first launch
// every posted stake is refunded, the challenger's alone if nobody joined;
// afterwards the caller forfeits on their own turn
// and wins by timeout on the opponent's turn once the inactivity gap passed.
func (m *Machine) QuitGame(env Env, id uint64) (*Game, error) {
	g, err := m.load(id)
	if err != nil {
		return nil, err
	}
	switch g.Status {
	case StatusAwaitingOpponent, StatusAwaitingFirstMove, StatusInProgress, StatusAwaitingWinValidation:
	default:
		return nil, fmt.Errorf("%w: game %d is %s", ErrInvalidGameState, id, g.Status)
	}
	me, foe, ok := g.sides(env.Caller)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotParticipant, env.Caller)
	}

	var winner, loser string
	var cond Cond
	switch {
	case g.Status == StatusAwaitingOpponent, g.Status == StatusAwaitingFirstMove:
		cond = CondPlayerQuitBeforeStart
	case g.InTurn == me.Address:
		winner, loser, cond = foe.Address, me.Address, CondPlayerForfeit
	case g.InactivityExpired(env.Block, m.params.InactivityTimeGap):
		winner, loser, cond = me.Address, foe.Address, CondTimeExpiredClaimed
	default:
		return nil, fmt.Errorf("%w: last move at block %d, gap %d, now %d",
			ErrInactivityNotYetExpired, g.LastMoveBlock, m.params.InactivityTimeGap, env.Block)
	}
	c := m.begin(env)
	if err := c.finish(g, winner, loser, cond); err != nil {
		return nil, err
	}
	if err := c.commit(g); err != nil {
		return nil, err
	}
	return g, nil
}

// finish records the outcome, announces it, and pays out.
func (c *call) finish(g *Game, winner, loser string, cond Cond) error {
	g.Status = StatusFinished
	g.Winner, g.Loser, g.Cond = winner, loser, cond
	g.InTurn = ""
	g.Pending = nil
	c.publish(events.EventGameFinished, g.ID, events.GameFinished{
		GameID:      g.ID,
		Winner:      winner,
		Loser:       loser,
		WinningCond: string(cond),
	})
	return c.pay(g)
}
