package rawdb

import (
	"github.com/cockroachdb/pebble"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// KeyValueStore is the minimal ordered-KV contract spec.md §4.1 allows the
// block store to be swapped onto: "the store may be swapped for any
// ordered KV with the same contract."
type KeyValueStore interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Close() error
}

// Engine selects the hot-tier KV implementation (SPEC_FULL.md §6
// STORAGE_ENGINE config knob).
type Engine string

const (
	EngineLevelDB Engine = "leveldb"
	EnginePebble  Engine = "pebble"
)

// OpenKVStore opens the configured engine rooted at dir.
func OpenKVStore(engine Engine, dir string) (KeyValueStore, error) {
	switch engine {
	case EnginePebble:
		return openPebble(dir)
	default:
		return openLevelDB(dir)
	}
}

type levelDBStore struct{ db *leveldb.DB }

func openLevelDB(dir string) (KeyValueStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &levelDBStore{db: db}, nil
}

func (s *levelDBStore) Get(key []byte) ([]byte, bool, error) {
	v, err := s.db.Get(key, nil)
	if err == errors.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *levelDBStore) Put(key, value []byte) error {
	return s.db.Put(key, value, &opt.WriteOptions{Sync: true})
}
func (s *levelDBStore) Delete(key []byte) error { return s.db.Delete(key, nil) }
func (s *levelDBStore) Close() error            { return s.db.Close() }

type pebbleStore struct{ db *pebble.DB }

func openPebble(dir string) (KeyValueStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &pebbleStore{db: db}, nil
}

func (s *pebbleStore) Get(key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, true, nil
}

func (s *pebbleStore) Put(key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

func (s *pebbleStore) Delete(key []byte) error {
	return s.db.Delete(key, pebble.Sync)
}

func (s *pebbleStore) Close() error { return s.db.Close() }
