package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/crypto"
	"github.com/tolelom/battlechain/game"
)

const (
	prefixAccount = "acct:"
	prefixGame    = "game:"
	prefixMeta    = "meta:"
)

// statePrefixes is every key space that belongs to the world state and
// therefore to the state root. Index and block keys live elsewhere.
var statePrefixes = []string{prefixAccount, prefixGame, prefixMeta}

var keyNextGameID = prefixMeta + "next_game_id"

// gameKey zero-pads the ID so prefix scans return games in ID order.
func gameKey(id uint64) string { return fmt.Sprintf("%s%020d", prefixGame, id) }

// undo restores one key of the write buffer to what it held before a set.
type undo struct {
	key  string
	prev []byte
	had  bool
}

// StateDB implements core.State over a DB. Writes collect in a buffer
// until Commit; every write is journaled so a snapshot is just a journal
// length and reverting replays the journal backwards. Readers may run
// alongside the block producer.
type StateDB struct {
	mu      sync.RWMutex
	db      DB
	dirty   map[string][]byte
	journal []undo
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{db: db, dirty: make(map[string][]byte)}
}

func (s *StateDB) get(key string) ([]byte, error) {
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	prev, had := s.dirty[key]
	s.journal = append(s.journal, undo{key: key, prev: prev, had: had})
	s.dirty[key] = val
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.set(key, data)
	return nil
}

// GetAccount returns a zero-balance account for unknown addresses.
func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc := &core.Account{Address: address}
	if err := s.getJSON(prefixAccount+address, acc); err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	return acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// GetGame returns core.ErrNotFound for an ID never stored.
func (s *StateDB) GetGame(id uint64) (*game.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var g game.Game
	if err := s.getJSON(gameKey(id), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *StateDB) SetGame(g *game.Game) error {
	if g.ID == 0 {
		return errors.New("game id must be non-zero")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setJSON(gameKey(g.ID), g)
}

// NextGameID bumps the persistent counter. IDs start at 1.
func (s *StateDB) NextGameID() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next uint64
	data, err := s.get(keyNextGameID)
	switch {
	case errors.Is(err, core.ErrNotFound):
	case err != nil:
		return 0, err
	case len(data) != 8:
		return 0, fmt.Errorf("corrupt game counter: %d bytes", len(data))
	default:
		next = binary.BigEndian.Uint64(data)
	}
	next++
	s.set(keyNextGameID, binary.BigEndian.AppendUint64(nil, next))
	return next, nil
}

// Snapshot marks the current point of the write buffer.
func (s *StateDB) Snapshot() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.journal), nil
}

// RevertToSnapshot undoes every write made since Snapshot returned id.
func (s *StateDB) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id > len(s.journal) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	for i := len(s.journal) - 1; i >= id; i-- {
		u := s.journal[i]
		if u.had {
			s.dirty[u.key] = u.prev
		} else {
			delete(s.dirty, u.key)
		}
	}
	s.journal = s.journal[:id]
	return nil
}

// ComputeRoot hashes the whole world state as it would be after Commit:
// the stored entries under statePrefixes overlaid with the write buffer,
// sorted by key, each key and value length-prefixed. Nothing is flushed.
func (s *StateDB) ComputeRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			merged[string(it.Key())] = bytes.Clone(it.Value())
		}
		it.Release()
	}
	maps.Copy(merged, s.dirty)

	var buf bytes.Buffer
	for _, k := range slices.Sorted(maps.Keys(merged)) {
		v := merged[k]
		buf.Write(binary.BigEndian.AppendUint32(nil, uint32(len(k))))
		buf.WriteString(k)
		buf.Write(binary.BigEndian.AppendUint32(nil, uint32(len(v))))
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit writes the buffer to the DB in one batch and clears it. Take
// ComputeRoot first; commit only once the block carrying it is stored.
func (s *StateDB) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	clear(s.dirty)
	s.journal = nil
	return nil
}
