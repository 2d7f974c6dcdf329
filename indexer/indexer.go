// Package indexer maintains secondary indexes over committed events so
// clients can read a game's log, discover open games, and fetch receipts
// without scanning full state.
package indexer

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/events"
	"github.com/tolelom/battlechain/storage"
)

const (
	prefixGameLog     = "idx:game:"
	prefixGameSeq     = "idx:seq:"
	prefixOpen        = "idx:open:"
	prefixPlayerGames = "idx:player:games:"
	prefixReceipt     = "idx:receipt:"
)

func gameLogPrefix(id uint64) string { return fmt.Sprintf("%s%020d:", prefixGameLog, id) }
func gameLogKey(id, seq uint64) string {
	return fmt.Sprintf("%s%010d", gameLogPrefix(id), seq)
}
func openKey(id uint64) string { return fmt.Sprintf("%s%020d", prefixOpen, id) }

// Entry is one event of a game log and its position in that log.
type Entry struct {
	Seq   uint64       `json:"seq"`
	Event events.Event `json:"event"`
}

// watchBuffer bounds how far a watcher may fall behind before it is dropped.
const watchBuffer = 64

type watcher struct {
	ch chan Entry
}

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	mu       sync.Mutex
	db       storage.DB
	log      *slog.Logger
	watchers map[uint64]map[*watcher]struct{}
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{
		db:       db,
		log:      slog.Default().With("component", "indexer"),
		watchers: make(map[uint64]map[*watcher]struct{}),
	}
	emitter.SubscribeAll(idx.onEvent)
	return idx
}

// Watch streams entries appended to game id's log after the call. The
// channel is closed when cancel is called or when the watcher falls more
// than a buffer behind; callers resume from the last Seq they saw.
func (idx *Indexer) Watch(id uint64) (<-chan Entry, func()) {
	w := &watcher{ch: make(chan Entry, watchBuffer)}
	idx.mu.Lock()
	if idx.watchers[id] == nil {
		idx.watchers[id] = make(map[*watcher]struct{})
	}
	idx.watchers[id][w] = struct{}{}
	idx.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			idx.mu.Lock()
			defer idx.mu.Unlock()
			idx.dropWatcher(id, w)
		})
	}
	return w.ch, cancel
}

// dropWatcher must be called with mu held.
func (idx *Indexer) dropWatcher(id uint64, w *watcher) {
	ws, ok := idx.watchers[id]
	if !ok {
		return
	}
	if _, ok := ws[w]; !ok {
		return
	}
	delete(ws, w)
	close(w.ch)
	if len(ws) == 0 {
		delete(idx.watchers, id)
	}
}

// notify must be called with mu held.
func (idx *Indexer) notify(e Entry) {
	for w := range idx.watchers[e.Event.GameID] {
		select {
		case w.ch <- e:
		default:
			idx.log.Warn("dropping slow watcher", "game", e.Event.GameID, "seq", e.Seq)
			idx.dropWatcher(e.Event.GameID, w)
		}
	}
}

// ---- queries ----

// GameEvents returns the log of game id in emission order. An event's index
// in the result is its Seq.
func (idx *Indexer) GameEvents(id uint64) ([]events.Event, error) {
	it := idx.db.NewIterator([]byte(gameLogPrefix(id)))
	defer it.Release()
	var out []events.Event
	for it.Next() {
		var ev events.Event
		if err := json.Unmarshal(it.Value(), &ev); err != nil {
			return nil, fmt.Errorf("indexer unmarshal: %w", err)
		}
		out = append(out, ev)
	}
	return out, it.Error()
}

// OpenGames lists games created but not yet joined, closed or finished,
// oldest first.
func (idx *Indexer) OpenGames() ([]events.GameCreated, error) {
	it := idx.db.NewIterator([]byte(prefixOpen))
	defer it.Release()
	var out []events.GameCreated
	for it.Next() {
		var g events.GameCreated
		if err := json.Unmarshal(it.Value(), &g); err != nil {
			return nil, fmt.Errorf("indexer unmarshal: %w", err)
		}
		out = append(out, g)
	}
	return out, it.Error()
}

// GamesByPlayer returns the IDs of every game addr created or joined, in
// ascending order.
func (idx *Indexer) GamesByPlayer(addr string) ([]uint64, error) {
	data, err := idx.db.Get([]byte(prefixPlayerGames + addr))
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []uint64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

// Receipt returns the receipt for txID or core.ErrNotFound.
func (idx *Indexer) Receipt(txID string) (*core.Receipt, error) {
	data, err := idx.db.Get([]byte(prefixReceipt + txID))
	if err != nil {
		return nil, err
	}
	var r core.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return &r, nil
}

// ---- event handlers ----

func (idx *Indexer) onEvent(ev events.Event) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var err error
	switch {
	case events.IsGameEvent(ev.Type):
		err = idx.onGameEvent(ev)
	case ev.Type == events.EventTxExecuted:
		err = idx.onTxExecuted(ev)
	case ev.Type == events.EventTxFailed:
		err = idx.onTxFailed(ev)
	}
	if err != nil {
		idx.log.Error("index event", "type", ev.Type, "tx", ev.TxID, "err", err)
	}
}

func (idx *Indexer) onGameEvent(ev events.Event) error {
	if err := idx.appendLog(ev); err != nil {
		return err
	}
	switch ev.Type {
	case events.EventGameCreated:
		var p events.GameCreated
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if err := idx.db.Set([]byte(openKey(p.GameID)), ev.Data); err != nil {
			return err
		}
		return idx.addPlayerGame(p.Challenger, p.GameID)
	case events.EventGameJoined:
		var p events.GameJoined
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if err := idx.db.Delete([]byte(openKey(p.GameID))); err != nil {
			return err
		}
		return idx.addPlayerGame(p.Opponent, p.GameID)
	case events.EventGameFinished:
		return idx.db.Delete([]byte(openKey(ev.GameID)))
	}
	return nil
}

func (idx *Indexer) appendLog(ev events.Event) error {
	seqKey := []byte(prefixGameSeq + strconv.FormatUint(ev.GameID, 10))
	var seq uint64
	data, err := idx.db.Get(seqKey)
	switch {
	case errors.Is(err, core.ErrNotFound):
	case err != nil:
		return err
	case len(data) == 8:
		seq = binary.BigEndian.Uint64(data)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	var next [8]byte
	binary.BigEndian.PutUint64(next[:], seq+1)
	batch := idx.db.NewBatch()
	batch.Set([]byte(gameLogKey(ev.GameID, seq)), raw)
	batch.Set(seqKey, next[:])
	if err := batch.Write(); err != nil {
		return err
	}
	idx.notify(Entry{Seq: seq, Event: ev})
	return nil
}

func (idx *Indexer) addPlayerGame(addr string, id uint64) error {
	ids, err := idx.GamesByPlayer(addr)
	if err != nil {
		return err
	}
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return nil
	}
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(prefixPlayerGames+addr), data)
}

func (idx *Indexer) onTxExecuted(ev events.Event) error {
	var p events.TxExecuted
	if err := ev.Decode(&p); err != nil {
		return err
	}
	return idx.putReceipt(&core.Receipt{
		TxID:        ev.TxID,
		Type:        core.TxType(p.Type),
		From:        p.From,
		Status:      core.ReceiptOK,
		BlockHeight: ev.BlockHeight,
		Logs:        p.Logs,
	})
}

func (idx *Indexer) onTxFailed(ev events.Event) error {
	var p events.TxFailed
	if err := ev.Decode(&p); err != nil {
		return err
	}
	return idx.putReceipt(&core.Receipt{
		TxID:        ev.TxID,
		Type:        core.TxType(p.Type),
		From:        p.From,
		Status:      core.ReceiptFailed,
		BlockHeight: ev.BlockHeight,
		Reason:      p.Reason,
	})
}

func (idx *Indexer) putReceipt(r *core.Receipt) error {
	if strings.TrimSpace(r.TxID) == "" {
		return errors.New("receipt without tx id")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(prefixReceipt+r.TxID), data)
}
