package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var errJournalInactive = errors.New("storage: journal has no open transaction")

type journalEntry struct {
	key     []byte
	prev    []byte
	existed bool
}

// Journal applies writes directly to the wrapped store while recording the
// previous value of every touched key, so an open transaction can be reverted
// to the exact bytes it started from. Reads and iteration observe the
// in-flight writes. A Journal is not safe for concurrent use; callers
// serialise transactions themselves.
type Journal struct {
	store   Store
	entries []journalEntry
	active  bool
}

// NewJournal wraps the provided store.
func NewJournal(store Store) *Journal {
	return &Journal{store: store}
}

// Begin opens a transaction. Nested transactions are not supported.
func (j *Journal) Begin() error {
	if j.active {
		return errors.New("storage: journal transaction already open")
	}
	j.entries = j.entries[:0]
	j.active = true
	return nil
}

// Active reports whether a transaction is open.
func (j *Journal) Active() bool { return j.active }

// Commit closes the transaction keeping its writes.
func (j *Journal) Commit() error {
	if !j.active {
		return errJournalInactive
	}
	j.entries = j.entries[:0]
	j.active = false
	return nil
}

// Revert undoes every write of the open transaction in reverse order.
func (j *Journal) Revert() error {
	if !j.active {
		return errJournalInactive
	}
	for i := len(j.entries) - 1; i >= 0; i-- {
		entry := j.entries[i]
		var err error
		if entry.existed {
			err = j.store.Put(entry.key, entry.prev)
		} else {
			err = j.store.Delete(entry.key)
		}
		if err != nil {
			return fmt.Errorf("storage: revert %x: %w", entry.key, err)
		}
	}
	j.entries = j.entries[:0]
	j.active = false
	return nil
}

// Writes reports how many key writes the open transaction recorded.
func (j *Journal) Writes() int { return len(j.entries) }

func (j *Journal) record(key []byte) error {
	if !j.active {
		return errJournalInactive
	}
	prev, err := j.store.Get(key)
	switch {
	case errors.Is(err, ErrNotFound):
		j.entries = append(j.entries, journalEntry{key: append([]byte(nil), key...)})
	case err != nil:
		return err
	default:
		j.entries = append(j.entries, journalEntry{
			key:     append([]byte(nil), key...),
			prev:    append([]byte(nil), prev...),
			existed: true,
		})
	}
	return nil
}

// Put records the previous value and writes through.
func (j *Journal) Put(key []byte, value []byte) error {
	if err := j.record(key); err != nil {
		return err
	}
	return j.store.Put(key, value)
}

// Delete records the previous value and deletes through.
func (j *Journal) Delete(key []byte) error {
	if err := j.record(key); err != nil {
		return err
	}
	return j.store.Delete(key)
}

func (j *Journal) Get(key []byte) ([]byte, error) { return j.store.Get(key) }

func (j *Journal) Has(key []byte) (bool, error) { return j.store.Has(key) }

func (j *Journal) NewIterator(slice *util.Range) iterator.Iterator {
	return j.store.NewIterator(slice)
}
