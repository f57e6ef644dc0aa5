package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/comparer"
	lvlerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/memdb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned when a key is absent from the store.
var ErrNotFound = errors.New("storage: key not found")

// Store is the ordered key-value surface shared by databases and journals.
// Keys are compared bytewise, so big-endian encoded integers iterate in
// numeric order.
type Store interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	NewIterator(slice *util.Range) iterator.Iterator
}

// Database is a generic interface for an ordered key-value store.
// This allows the ledger to use any database backend (in-memory or persistent).
type Database interface {
	Store
	Close() // A way to gracefully shut down the database connection.
}

// --- In-Memory DB (for testing) ---

// MemDB keeps entries in a goleveldb skiplist, which is safe for concurrent
// use and iterates in key order like the persistent backend.
type MemDB struct {
	db *memdb.DB
}

func NewMemDB() *MemDB {
	return &MemDB{
		db: memdb.New(comparer.DefaultComparer, 0),
	}
}

func (m *MemDB) Put(key []byte, value []byte) error {
	return m.db.Put(key, value)
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	value, err := m.db.Get(key)
	if errors.Is(err, lvlerrors.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), value...), nil
}

func (m *MemDB) Has(key []byte) (bool, error) {
	return m.db.Contains(key), nil
}

func (m *MemDB) Delete(key []byte) error {
	err := m.db.Delete(key)
	if errors.Is(err, lvlerrors.ErrNotFound) {
		return nil
	}
	return err
}

// NewIterator returns an ordered iterator over the requested range. A nil
// range iterates the whole database.
func (m *MemDB) NewIterator(slice *util.Range) iterator.Iterator {
	return m.db.NewIterator(slice)
}

// Len reports the number of live keys.
func (m *MemDB) Len() int {
	return m.db.Len()
}

// Close satisfies the Database interface for MemDB.
func (m *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Has reports whether the key exists.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// Delete removes the key. Deleting an absent key is not an error.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// NewIterator returns an ordered iterator over the requested range.
func (ldb *LevelDB) NewIterator(slice *util.Range) iterator.Iterator {
	return ldb.db.NewIterator(slice, nil)
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

// Floor returns the entry with the greatest key <= key among keys sharing
// prefix. ok is false when no such entry exists.
func Floor(s Store, prefix, key []byte) (foundKey, value []byte, ok bool, err error) {
	iter := s.NewIterator(util.BytesPrefix(prefix))
	defer iter.Release()

	var positioned bool
	if iter.Seek(key) {
		if bytes.Equal(iter.Key(), key) {
			positioned = true
		} else {
			positioned = iter.Prev()
		}
	} else {
		positioned = iter.Last()
	}
	if err := iter.Error(); err != nil {
		return nil, nil, false, fmt.Errorf("storage: floor lookup: %w", err)
	}
	if !positioned {
		return nil, nil, false, nil
	}
	return append([]byte(nil), iter.Key()...), append([]byte(nil), iter.Value()...), true, nil
}

// Lower returns the entry with the greatest key strictly below key among keys
// sharing prefix.
func Lower(s Store, prefix, key []byte) (foundKey, value []byte, ok bool, err error) {
	iter := s.NewIterator(util.BytesPrefix(prefix))
	defer iter.Release()

	var positioned bool
	if iter.Seek(key) {
		positioned = iter.Prev()
	} else {
		positioned = iter.Last()
	}
	if err := iter.Error(); err != nil {
		return nil, nil, false, fmt.Errorf("storage: lower lookup: %w", err)
	}
	if !positioned {
		return nil, nil, false, nil
	}
	return append([]byte(nil), iter.Key()...), append([]byte(nil), iter.Value()...), true, nil
}

// First returns the smallest entry sharing prefix.
func First(s Store, prefix []byte) (foundKey, value []byte, ok bool, err error) {
	iter := s.NewIterator(util.BytesPrefix(prefix))
	defer iter.Release()
	if !iter.First() {
		return nil, nil, false, iter.Error()
	}
	return append([]byte(nil), iter.Key()...), append([]byte(nil), iter.Value()...), true, nil
}

// Last returns the greatest entry sharing prefix.
func Last(s Store, prefix []byte) (foundKey, value []byte, ok bool, err error) {
	iter := s.NewIterator(util.BytesPrefix(prefix))
	defer iter.Release()
	if !iter.Last() {
		return nil, nil, false, iter.Error()
	}
	return append([]byte(nil), iter.Key()...), append([]byte(nil), iter.Value()...), true, nil
}
