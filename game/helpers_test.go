package game

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/battlechain/board"
	"github.com/tolelom/battlechain/commitment"
	"github.com/tolelom/battlechain/events"
)

const (
	rowsLayout  = "H005H104H203H303H402"
	startFunds  = 1_000
	defaultBet  = 100
	defaultGap  = 5
	challengerA = "challenger"
	opponentB   = "opponent"
)

// memTable stores games as JSON so every load returns a private copy.
type memTable struct {
	next  uint64
	games map[uint64][]byte
}

func newMemTable() *memTable { return &memTable{games: make(map[uint64][]byte)} }

func (t *memTable) NextGameID() (uint64, error) {
	t.next++
	return t.next, nil
}

func (t *memTable) GetGame(id uint64) (*Game, error) {
	data, ok := t.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	var g Game
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (t *memTable) SetGame(g *Game) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	t.games[g.ID] = data
	return nil
}

type memBank map[string]uint64

func (b memBank) Debit(addr string, amount uint64) error {
	if b[addr] < amount {
		return fmt.Errorf("insufficient balance: have %d need %d", b[addr], amount)
	}
	b[addr] -= amount
	return nil
}

func (b memBank) Credit(addr string, amount uint64) error {
	b[addr] += amount
	return nil
}

// fleet is a player's full secret.
type fleet struct {
	addr      string
	placement board.Placement
	occ       board.Occupancy
	seeds     commitment.Seeds
	shipSeed  string
	tree      *commitment.Tree
}

func newFleet(t *testing.T, addr, layout string, src int64) *fleet {
	t.Helper()
	p, err := board.ParsePlacement(layout)
	require.NoError(t, err)
	occ, err := p.Occupancy()
	require.NoError(t, err)
	r := rand.New(rand.NewSource(src))
	seeds, err := commitment.NewSeeds(r)
	require.NoError(t, err)
	shipSeed, err := commitment.NewShipSeed(r)
	require.NoError(t, err)
	return newFleetWithSeeds(addr, p, occ, seeds, shipSeed)
}

func newFleetWithSeeds(addr string, p board.Placement, occ board.Occupancy, seeds commitment.Seeds, shipSeed string) *fleet {
	return &fleet{
		addr:      addr,
		placement: p,
		occ:       occ,
		seeds:     seeds,
		shipSeed:  shipSeed,
		tree:      commitment.BuildTree(occ, seeds),
	}
}

func (f *fleet) commitment() commitment.Commitment {
	return commitment.Commit(f.occ, f.seeds, f.placement, f.shipSeed)
}

// honest returns a truthful reveal of cell.
func (f *fleet) honest(cell int) (commitment.Proof, int, int) {
	return f.tree.Proof(cell), int(f.occ[cell]), int(f.seeds[cell])
}

func (f *fleet) fullReveal() Reveal {
	return Reveal{
		Board:          f.occ.Cells(),
		Seeds:          f.seeds.Ints(),
		ShipsPositions: f.placement.String(),
		ShipSeed:       f.shipSeed,
	}
}

// shipCells lists occupied cells in index order.
func (f *fleet) shipCells() []int {
	var out []int
	for i, v := range f.occ {
		if v == 1 {
			out = append(out, i)
		}
	}
	return out
}

func (f *fleet) waterCells() []int {
	var out []int
	for i, v := range f.occ {
		if v == 0 {
			out = append(out, i)
		}
	}
	return out
}

type harness struct {
	t     *testing.T
	m     *Machine
	table *memTable
	bank  memBank
	log   []events.Event
	block int64
	chal  *fleet
	opp   *fleet
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		table: newMemTable(),
		bank:  memBank{challengerA: startFunds, opponentB: startFunds},
		chal:  newFleet(t, challengerA, rowsLayout, 1),
		opp:   newFleet(t, opponentB, rowsLayout, 2),
	}
	h.m = NewMachine(h.table, h.bank, func(ev events.Event) { h.log = append(h.log, ev) },
		Params{InactivityTimeGap: defaultGap})
	return h
}

// env advances the block by one and returns a call environment for addr.
func (h *harness) env(addr string) Env {
	h.block++
	return Env{Caller: addr, Block: h.block, TxID: fmt.Sprintf("tx-%d", h.block)}
}

func (h *harness) game(id uint64) *Game {
	h.t.Helper()
	g, err := h.table.GetGame(id)
	require.NoError(h.t, err)
	return g
}

// start creates and joins a game with the default bet.
func (h *harness) start() uint64 {
	h.t.Helper()
	g, err := h.m.CreateGame(h.env(challengerA), defaultBet, h.chal.commitment())
	require.NoError(h.t, err)
	_, err = h.m.JoinGame(h.env(opponentB), g.ID, defaultBet, h.opp.commitment())
	require.NoError(h.t, err)
	return g.ID
}

// fire launches at (row, col) as f, honestly revealing any pending shot.
func (h *harness) fire(id uint64, f *fleet, row, col int) (*Game, error) {
	h.t.Helper()
	mv := Move{Row: row, Col: col}
	if g := h.game(id); g.Pending != nil {
		mv.Proof, mv.Claim, mv.Seed = f.honest(g.Pending.Cell())
	}
	return h.m.LaunchTorpedo(h.env(f.addr), id, mv)
}

func (h *harness) mustFire(id uint64, f *fleet, cell int) *Game {
	h.t.Helper()
	r, c := board.RowCol(cell)
	g, err := h.fire(id, f, r, c)
	require.NoError(h.t, err)
	return g
}

func (h *harness) eventsOf(typ events.EventType) []events.Event {
	var out []events.Event
	for _, ev := range h.log {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (h *harness) paid() map[string]uint64 {
	h.t.Helper()
	out := make(map[string]uint64)
	for _, ev := range h.eventsOf(events.EventGamePaid) {
		var p events.GamePaid
		require.NoError(h.t, ev.Decode(&p))
		out[p.Receiver] += p.Amount
	}
	return out
}

func (h *harness) conds() []string {
	h.t.Helper()
	var out []string
	for _, ev := range h.eventsOf(events.EventGamePaid) {
		var p events.GamePaid
		require.NoError(h.t, ev.Decode(&p))
		out = append(out, p.Cond)
	}
	return out
}

// playUntilWin has the opponent sink every challenger ship while the
// challenger only hits water. It stops once the game awaits confirmation.
func (h *harness) playUntilWin(id uint64) *Game {
	h.t.Helper()
	targets := h.chal.shipCells()
	misses := h.opp.waterCells()
	var g *Game
	for i, cell := range targets {
		g = h.mustFire(id, h.opp, cell)
		g = h.mustFire(id, h.chal, misses[i])
	}
	require.Equal(h.t, StatusAwaitingWinValidation, g.Status)
	return g
}
