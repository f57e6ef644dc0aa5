package bank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"yieldledger/native/accrual"
)

var (
	ErrUnknownHandle       = errors.New("bank: unknown asset handle")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
)

// Holding is the value behind one asset handle.
type Holding struct {
	Handle accrual.AssetHandle `json:"handle"`
	Kind   accrual.AssetKind   `json:"kind"`
	Amount accrual.Decimal     `json:"amount"`
}

// Vault is an in-memory custody service. Every mint and transfer issues a
// fresh uuid handle; handles are never reused once burned or emptied.
type Vault struct {
	mu       sync.Mutex
	holdings map[accrual.AssetHandle]*Holding
	supply   map[accrual.AssetKind]accrual.Decimal
}

// NewVault returns an empty vault.
func NewVault() *Vault {
	return &Vault{
		holdings: make(map[accrual.AssetHandle]*Holding),
		supply:   make(map[accrual.AssetKind]accrual.Decimal),
	}
}

// Mint implements accrual.AssetTransfer.
func (v *Vault) Mint(_ context.Context, kind accrual.AssetKind, amount accrual.Decimal) (accrual.AssetHandle, error) {
	if amount.IsZero() {
		return "", ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	supply, err := v.supply[kind].Add(amount)
	if err != nil {
		return "", fmt.Errorf("bank: %s supply: %w", kind, err)
	}
	handle := v.issue(kind, amount)
	v.supply[kind] = supply
	return handle, nil
}

// Burn implements accrual.AssetTransfer.
func (v *Vault) Burn(_ context.Context, handle accrual.AssetHandle) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	holding, ok := v.holdings[handle]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	supply, err := v.supply[holding.Kind].Sub(holding.Amount)
	if err != nil {
		return fmt.Errorf("bank: %s supply: %w", holding.Kind, err)
	}
	v.supply[holding.Kind] = supply
	delete(v.holdings, handle)
	return nil
}

// Transfer implements accrual.AssetTransfer: amount moves from handle into
// a new handle of the same kind. Emptied handles are dropped.
func (v *Vault) Transfer(_ context.Context, handle accrual.AssetHandle, amount accrual.Decimal) (accrual.AssetHandle, error) {
	if amount.IsZero() {
		return "", ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	holding, ok := v.holdings[handle]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	left, err := holding.Amount.Sub(amount)
	if err != nil {
		return "", fmt.Errorf("%w: %s holds %s", ErrInsufficientBalance, handle, holding.Amount)
	}
	if left.IsZero() {
		delete(v.holdings, handle)
	} else {
		holding.Amount = left
	}
	return v.issue(holding.Kind, amount), nil
}

// Balance returns the value held by handle.
func (v *Vault) Balance(handle accrual.AssetHandle) (Holding, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	holding, ok := v.holdings[handle]
	if !ok {
		return Holding{}, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	return *holding, nil
}

// Supply returns the outstanding amount of kind.
func (v *Vault) Supply(kind accrual.AssetKind) accrual.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.supply[kind]
}

// Holdings lists every live handle ordered by handle string.
func (v *Vault) Holdings() []Holding {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Holding, 0, len(v.holdings))
	for _, h := range v.holdings {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

func (v *Vault) issue(kind accrual.AssetKind, amount accrual.Decimal) accrual.AssetHandle {
	handle := accrual.AssetHandle(uuid.NewString())
	v.holdings[handle] = &Holding{Handle: handle, Kind: kind, Amount: amount}
	return handle
}
