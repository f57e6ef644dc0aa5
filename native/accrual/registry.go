package accrual

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb/util"

	"yieldledger/storage"
)

// IDPolicy selects how the registry seeds new claim ids.
type IDPolicy string

const (
	// IDPolicySequential allocates the next ordinal.
	IDPolicySequential IDPolicy = "sequential"
	// IDPolicyHourly seeds ids from the mint hour, so deposits inside one
	// hour collide and are resolved by probing forward.
	IDPolicyHourly IDPolicy = "hourly"
)

const hourlyIDStride = 1_000_000

// Hint returns the id seed for a claim minted at hour. Zero means "use the
// ordinal counter".
func (p IDPolicy) Hint(hour uint64) uint64 {
	if p != IDPolicyHourly {
		return 0
	}
	if hour > (^uint64(0)-1)/hourlyIDStride {
		return 0
	}
	return hour*hourlyIDStride + 1
}

// Registry owns the lifecycle of claims: creation, lookup and retirement.
// Every created claim gets a zero yield entry, and retiring a claim drops
// it, so the two indices always hold the same id set.
type Registry struct {
	store  storage.Store
	yields *YieldIndex
}

// NewRegistry binds the registry to a store and the yield index it keeps in
// step.
func NewRegistry(store storage.Store, yields *YieldIndex) *Registry {
	return &Registry{store: store, yields: yields}
}

// Create stores a new claim and returns its id. A non-zero hint is tried
// first; taken ids (live or retired) are skipped by probing forward.
func (r *Registry) Create(hint, mintHour, principal uint64, trustShare Decimal) (uint64, error) {
	if principal == 0 {
		return 0, ErrZeroPrincipal
	}
	next, err := r.nextOrdinal()
	if err != nil {
		return 0, err
	}
	candidate := next
	if hint != 0 {
		candidate = hint
	}
	for {
		taken, err := r.taken(candidate)
		if err != nil {
			return 0, err
		}
		if !taken {
			break
		}
		if candidate == ^uint64(0) {
			return 0, ErrOverflow
		}
		candidate++
	}

	claim := &Claim{ID: candidate, MintHour: mintHour, Principal: principal, TrustShare: trustShare}
	if err := r.put(claim); err != nil {
		return 0, err
	}
	if err := r.yields.Set(candidate, Zero()); err != nil {
		return 0, err
	}
	if candidate >= next && candidate != ^uint64(0) {
		if err := r.store.Put(nextIDKey, encodeUint64(candidate+1)); err != nil {
			return 0, err
		}
	}
	return candidate, nil
}

// Get returns a live claim. Retired ids report ErrClaimRedeemed or
// ErrClaimSplit; unknown ids report ErrClaimNotFound.
func (r *Registry) Get(id uint64) (*Claim, error) {
	raw, err := r.store.Get(indexKey(claimPrefix, id))
	if err == nil {
		return decodeClaim(id, raw)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	tomb, ok, err := r.Tombstone(id)
	if err != nil {
		return nil, err
	}
	if ok {
		switch tomb.Status {
		case ClaimStatusSplit:
			return nil, fmt.Errorf("%w (claim %d, hour %d)", ErrClaimSplit, id, tomb.Hour)
		default:
			return nil, fmt.Errorf("%w (claim %d, hour %d)", ErrClaimRedeemed, id, tomb.Hour)
		}
	}
	return nil, fmt.Errorf("%w (claim %d)", ErrClaimNotFound, id)
}

// Update overwrites the mutable fields of a live claim.
func (r *Registry) Update(claim *Claim) error {
	if claim == nil {
		return ErrClaimNotFound
	}
	if _, err := r.Get(claim.ID); err != nil {
		return err
	}
	return r.put(claim)
}

// Remove retires a live claim together with its yield entry and returns
// both. The id is tombstoned with status and hour.
func (r *Registry) Remove(id uint64, status ClaimStatus, hour uint64) (*Claim, Decimal, error) {
	claim, err := r.Get(id)
	if err != nil {
		return nil, Decimal{}, err
	}
	yield, err := r.yields.Get(id)
	if err != nil {
		return nil, Decimal{}, err
	}
	if err := r.store.Delete(indexKey(claimPrefix, id)); err != nil {
		return nil, Decimal{}, err
	}
	if err := r.yields.Delete(id); err != nil {
		return nil, Decimal{}, err
	}
	encoded, err := encodeTombstone(Tombstone{Status: status, Hour: hour})
	if err != nil {
		return nil, Decimal{}, err
	}
	if err := r.store.Put(indexKey(tombPrefix, id), encoded); err != nil {
		return nil, Decimal{}, err
	}
	return claim, yield, nil
}

// Tombstone returns the retirement record of id, if any.
func (r *Registry) Tombstone(id uint64) (*Tombstone, bool, error) {
	raw, err := r.store.Get(indexKey(tombPrefix, id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	tomb, err := decodeTombstone(raw)
	if err != nil {
		return nil, false, err
	}
	return tomb, true, nil
}

// Each visits live claims in id order.
func (r *Registry) Each(fn func(*Claim) error) error {
	iter := r.store.NewIterator(util.BytesPrefix(claimPrefix))
	defer iter.Release()
	for iter.Next() {
		id, err := parseIndexKey(claimPrefix, iter.Key())
		if err != nil {
			return err
		}
		claim, err := decodeClaim(id, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(claim); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Live returns every live claim in id order.
func (r *Registry) Live() ([]*Claim, error) {
	var claims []*Claim
	err := r.Each(func(c *Claim) error {
		claims = append(claims, c)
		return nil
	})
	return claims, err
}

func (r *Registry) put(claim *Claim) error {
	encoded, err := encodeClaim(claim)
	if err != nil {
		return err
	}
	return r.store.Put(indexKey(claimPrefix, claim.ID), encoded)
}

func (r *Registry) taken(id uint64) (bool, error) {
	live, err := r.store.Has(indexKey(claimPrefix, id))
	if err != nil || live {
		return live, err
	}
	return r.store.Has(indexKey(tombPrefix, id))
}

func (r *Registry) nextOrdinal() (uint64, error) {
	raw, err := r.store.Get(nextIDKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeUint64(raw)
}

// Count returns the number of live claims.
func (r *Registry) Count() (int, error) {
	count := 0
	err := r.Each(func(*Claim) error {
		count++
		return nil
	})
	return count, err
}
