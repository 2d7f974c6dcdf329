package secrets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const levelPrefix = "secrets:"

// LevelStore keeps sealed secrets in a local LevelDB.
type LevelStore struct {
	db         *leveldb.DB
	passphrase string
}

// OpenLevelStore opens (or creates) a store at path.
func OpenLevelStore(path, passphrase string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open secrets db %q: %w", path, err)
	}
	return &LevelStore{db: db, passphrase: passphrase}, nil
}

// NewMemLevelStore returns a store backed by in-memory LevelDB storage.
func NewMemLevelStore(passphrase string) (*LevelStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelStore{db: db, passphrase: passphrase}, nil
}

func (l *LevelStore) Save(_ context.Context, s *Secrets) error {
	data, err := seal(l.passphrase, s)
	if err != nil {
		return err
	}
	return l.db.Put([]byte(key(levelPrefix, s.Player, s.GameID)), data, nil)
}

func (l *LevelStore) Load(_ context.Context, player string, gameID uint64) (*Secrets, error) {
	data, err := l.db.Get([]byte(key(levelPrefix, player, gameID)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: game %d", ErrNotFound, gameID)
	}
	if err != nil {
		return nil, err
	}
	return open(l.passphrase, data)
}

func (l *LevelStore) Delete(_ context.Context, player string, gameID uint64) error {
	return l.db.Delete([]byte(key(levelPrefix, player, gameID)), nil)
}

func (l *LevelStore) Games(_ context.Context, player string) ([]uint64, error) {
	prefix := levelPrefix + player + ":"
	it := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()
	var ids []uint64
	for it.Next() {
		id, err := strconv.ParseUint(strings.TrimPrefix(string(it.Key()), prefix), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad secrets key %q: %w", it.Key(), err)
		}
		ids = append(ids, id)
	}
	return ids, it.Error()
}

func (l *LevelStore) Close() error { return l.db.Close() }
