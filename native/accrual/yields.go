package accrual

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb/util"

	"yieldledger/storage"
)

// YieldIndex maps claim id → yield accumulated by that claim.
type YieldIndex struct {
	store storage.Store
}

// NewYieldIndex binds the index to a store.
func NewYieldIndex(store storage.Store) *YieldIndex {
	return &YieldIndex{store: store}
}

// Get returns the accumulated yield of a claim.
func (y *YieldIndex) Get(id uint64) (Decimal, error) {
	raw, err := y.store.Get(indexKey(yieldPrefix, id))
	if errors.Is(err, storage.ErrNotFound) {
		return Decimal{}, fmt.Errorf("%w (yield entry %d)", ErrClaimNotFound, id)
	}
	if err != nil {
		return Decimal{}, err
	}
	return DecimalFromBytes(raw)
}

// Set overwrites the accumulated yield of a claim.
func (y *YieldIndex) Set(id uint64, value Decimal) error {
	return y.store.Put(indexKey(yieldPrefix, id), value.Bytes())
}

// Add credits delta to a claim.
func (y *YieldIndex) Add(id uint64, delta Decimal) error {
	current, err := y.Get(id)
	if err != nil {
		return err
	}
	next, err := current.Add(delta)
	if err != nil {
		return err
	}
	return y.Set(id, next)
}

// Delete drops the entry of a consumed claim.
func (y *YieldIndex) Delete(id uint64) error {
	return y.store.Delete(indexKey(yieldPrefix, id))
}

// Each visits entries in claim id order.
func (y *YieldIndex) Each(fn func(id uint64, value Decimal) error) error {
	iter := y.store.NewIterator(util.BytesPrefix(yieldPrefix))
	defer iter.Release()
	for iter.Next() {
		id, err := parseIndexKey(yieldPrefix, iter.Key())
		if err != nil {
			return err
		}
		value, err := DecimalFromBytes(iter.Value())
		if err != nil {
			return err
		}
		if err := fn(id, value); err != nil {
			return err
		}
	}
	return iter.Error()
}
