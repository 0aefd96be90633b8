package storage

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvstorage "github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/senutpal/quorumstore/internal/clock"
)

const (
	KindMemory  = "memory"
	KindLevelDB = "leveldb"
)

var ErrUnknownKind = errors.New("storage: unknown kind")

var (
	keyPromised = []byte("acceptor/promised")
	keyAccepted = []byte("acceptor/accepted")
)

// LevelDBStorage keeps the acceptor's state in a LevelDB instance backed
// by LevelDB's own in-memory storage. Every write is synchronous.
type LevelDBStorage struct {
	mu     sync.Mutex
	db     *leveldb.DB
	closed bool
}

func NewLevelDBStorage() (*LevelDBStorage, error) {
	db, err := leveldb.Open(lvstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb: %w", err)
	}
	return &LevelDBStorage{db: db}, nil
}

// Open returns a fresh Storage of the given kind.
func Open(kind string) (Storage, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStorage(), nil
	case KindLevelDB:
		return NewLevelDBStorage()
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func (l *LevelDBStorage) put(key []byte, v interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	return l.db.Put(key, buf.Bytes(), &opt.WriteOptions{Sync: true})
}

// get reports false when key is absent.
func (l *LevelDBStorage) get(key []byte, v interface{}) (bool, error) {
	data, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (l *LevelDBStorage) SavePromised(number clock.Clock) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.put(keyPromised, number)
}

func (l *LevelDBStorage) LoadPromised() (clock.Clock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return clock.Clock{}, ErrClosed
	}
	var c clock.Clock
	_, err := l.get(keyPromised, &c)
	return c, err
}

func (l *LevelDBStorage) SaveAccepted(a Accepted) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.put(keyAccepted, a)
}

func (l *LevelDBStorage) LoadAccepted() (Accepted, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return Accepted{}, false, ErrClosed
	}
	var a Accepted
	ok, err := l.get(keyAccepted, &a)
	if err != nil || !ok {
		return Accepted{}, false, err
	}
	return a, true, nil
}

func (l *LevelDBStorage) ClearAccepted() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.db.Delete(keyAccepted, &opt.WriteOptions{Sync: true})
}

func (l *LevelDBStorage) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}
