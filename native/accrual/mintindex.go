package accrual

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/syndtr/goleveldb/leveldb/util"

	"yieldledger/storage"
)

// MintIndex maps hour → cumulative principal minted up to and including that
// hour. Once the first mint is recorded the index is dense: every hour from
// the first entry to the last one has a stored value, so lookups during
// accrual are a single point read.
type MintIndex struct {
	store storage.Store
}

// NewMintIndex binds the index to a store.
func NewMintIndex(store storage.Store) *MintIndex {
	return &MintIndex{store: store}
}

// Record adds amount to the cumulative principal at hour. Missing hours
// between the previous entry and hour are back-filled with the previous
// cumulative value.
func (m *MintIndex) Record(hour, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	key := indexKey(mintPrefix, hour)
	exists, err := m.store.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return m.addFrom(hour, amount)
	}

	base := uint64(0)
	prevKey, prevRaw, ok, err := storage.Lower(m.store, mintPrefix, key)
	if err != nil {
		return err
	}
	if ok {
		prevHour, err := parseIndexKey(mintPrefix, prevKey)
		if err != nil {
			return err
		}
		if base, err = decodeUint64(prevRaw); err != nil {
			return err
		}
		for h := prevHour + 1; h < hour; h++ {
			if err := m.put(h, base); err != nil {
				return err
			}
		}
	}
	cumulative, carry := bits.Add64(base, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}

	// A successor only exists when hour precedes the first entry. Fill the
	// gap up to it and shift everything after by amount.
	nextKey, _, hasNext, err := m.successor(key)
	if err != nil {
		return err
	}
	if err := m.put(hour, cumulative); err != nil {
		return err
	}
	if !hasNext {
		return nil
	}
	nextHour, err := parseIndexKey(mintPrefix, nextKey)
	if err != nil {
		return err
	}
	for h := hour + 1; h < nextHour; h++ {
		if err := m.put(h, cumulative); err != nil {
			return err
		}
	}
	return m.addFrom(nextHour, amount)
}

// Get returns the cumulative principal active during hour.
func (m *MintIndex) Get(hour uint64) (uint64, error) {
	raw, err := m.store.Get(indexKey(mintPrefix, hour))
	if err == nil {
		return decodeUint64(raw)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	// Hours past the last entry carry the last cumulative value.
	_, prevRaw, ok, err := storage.Floor(m.store, mintPrefix, indexKey(mintPrefix, hour))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w (hour %d)", ErrHourNotFound, hour)
	}
	return decodeUint64(prevRaw)
}

// First returns the earliest recorded hour.
func (m *MintIndex) First() (hour, cumulative uint64, ok bool, err error) {
	return m.edge(storage.First(m.store, mintPrefix))
}

// Last returns the latest recorded hour.
func (m *MintIndex) Last() (hour, cumulative uint64, ok bool, err error) {
	return m.edge(storage.Last(m.store, mintPrefix))
}

// Empty reports whether no mint has been recorded.
func (m *MintIndex) Empty() (bool, error) {
	_, _, ok, err := m.First()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Each visits entries in hour order until fn returns false.
func (m *MintIndex) Each(fn func(MintEntry) bool) error {
	iter := m.store.NewIterator(util.BytesPrefix(mintPrefix))
	defer iter.Release()
	for iter.Next() {
		hour, err := parseIndexKey(mintPrefix, iter.Key())
		if err != nil {
			return err
		}
		cumulative, err := decodeUint64(iter.Value())
		if err != nil {
			return err
		}
		if !fn(MintEntry{Hour: hour, Cumulative: cumulative}) {
			break
		}
	}
	return iter.Error()
}

func (m *MintIndex) edge(key, raw []byte, ok bool, err error) (uint64, uint64, bool, error) {
	if err != nil || !ok {
		return 0, 0, false, err
	}
	hour, err := parseIndexKey(mintPrefix, key)
	if err != nil {
		return 0, 0, false, err
	}
	cumulative, err := decodeUint64(raw)
	if err != nil {
		return 0, 0, false, err
	}
	return hour, cumulative, true, nil
}

func (m *MintIndex) successor(key []byte) ([]byte, []byte, bool, error) {
	iter := m.store.NewIterator(util.BytesPrefix(mintPrefix))
	defer iter.Release()
	if !iter.Seek(key) {
		return nil, nil, false, iter.Error()
	}
	return append([]byte(nil), iter.Key()...), append([]byte(nil), iter.Value()...), true, nil
}

// addFrom adds amount to the entry at hour and every later entry so the
// index stays cumulative.
func (m *MintIndex) addFrom(hour, amount uint64) error {
	var entries []MintEntry
	iter := m.store.NewIterator(&util.Range{
		Start: indexKey(mintPrefix, hour),
		Limit: util.BytesPrefix(mintPrefix).Limit,
	})
	for iter.Next() {
		h, err := parseIndexKey(mintPrefix, iter.Key())
		if err != nil {
			iter.Release()
			return err
		}
		value, err := decodeUint64(iter.Value())
		if err != nil {
			iter.Release()
			return err
		}
		entries = append(entries, MintEntry{Hour: h, Cumulative: value})
	}
	iterErr := iter.Error()
	iter.Release()
	if iterErr != nil {
		return iterErr
	}
	for _, entry := range entries {
		sum, carry := bits.Add64(entry.Cumulative, amount, 0)
		if carry != 0 {
			return ErrOverflow
		}
		if err := m.put(entry.Hour, sum); err != nil {
			return err
		}
	}
	return nil
}

func (m *MintIndex) put(hour, cumulative uint64) error {
	return m.store.Put(indexKey(mintPrefix, hour), encodeUint64(cumulative))
}
