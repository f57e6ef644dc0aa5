package reserve

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"yieldledger/native/accrual"
)

var (
	ErrInvalidAmount      = errors.New("reserve: amount must be positive")
	ErrInsufficientShares = errors.New("reserve: share token exceeds outstanding shares")
	ErrEmptyPool          = errors.New("reserve: pool holds no backing")
)

// Pool backs trust shares pro rata. The first contribution mints shares 1:1;
// later ones mint in proportion to the backing already held, so income added
// through Accrue raises the value of every outstanding share.
type Pool struct {
	mu      sync.Mutex
	backing accrual.Decimal
	shares  accrual.Decimal
}

// NewPool returns an empty pool.
func NewPool() *Pool { return &Pool{} }

// Contribute implements accrual.ReservePool.
func (p *Pool) Contribute(_ context.Context, amount accrual.Decimal) (accrual.ShareToken, error) {
	if amount.IsZero() {
		return accrual.ShareToken{}, ErrInvalidAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	minted := amount
	if !p.shares.IsZero() {
		if p.backing.IsZero() {
			return accrual.ShareToken{}, ErrEmptyPool
		}
		var err error
		if minted, err = amount.MulDivDecimal(p.shares, p.backing); err != nil {
			return accrual.ShareToken{}, fmt.Errorf("reserve: mint shares: %w", err)
		}
		if minted.IsZero() {
			return accrual.ShareToken{}, ErrInvalidAmount
		}
	}
	backing, err := p.backing.Add(amount)
	if err != nil {
		return accrual.ShareToken{}, fmt.Errorf("reserve: backing: %w", err)
	}
	shares, err := p.shares.Add(minted)
	if err != nil {
		return accrual.ShareToken{}, fmt.Errorf("reserve: shares: %w", err)
	}
	p.backing, p.shares = backing, shares
	return accrual.ShareToken{Shares: minted}, nil
}

// Redeem implements accrual.ReservePool and pays the token's pro-rata share
// of the backing.
func (p *Pool) Redeem(_ context.Context, token accrual.ShareToken) (accrual.Decimal, error) {
	if token.Shares.IsZero() {
		return accrual.Decimal{}, ErrInvalidAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if token.Shares.Cmp(p.shares) > 0 {
		return accrual.Decimal{}, fmt.Errorf("%w: %s > %s", ErrInsufficientShares, token.Shares, p.shares)
	}
	payout, err := p.backing.MulDivDecimal(token.Shares, p.shares)
	if err != nil {
		return accrual.Decimal{}, fmt.Errorf("reserve: payout: %w", err)
	}
	shares, err := p.shares.Sub(token.Shares)
	if err != nil {
		return accrual.Decimal{}, err
	}
	backing, err := p.backing.Sub(payout)
	if err != nil {
		return accrual.Decimal{}, err
	}
	p.backing, p.shares = backing, shares
	return payout, nil
}

// RevertContribute implements accrual.ReserveReverser. It removes exactly the
// backing and shares a prior Contribute added.
func (p *Pool) RevertContribute(_ context.Context, amount accrual.Decimal, token accrual.ShareToken) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	backing, err := p.backing.Sub(amount)
	if err != nil {
		return fmt.Errorf("reserve: revert backing: %w", err)
	}
	shares, err := p.shares.Sub(token.Shares)
	if err != nil {
		return fmt.Errorf("%w: revert %s of %s", ErrInsufficientShares, token.Shares, p.shares)
	}
	p.backing, p.shares = backing, shares
	return nil
}

// RevertRedeem implements accrual.ReserveReverser. It restores the shares
// and payout a prior Redeem removed.
func (p *Pool) RevertRedeem(_ context.Context, token accrual.ShareToken, payout accrual.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	backing, err := p.backing.Add(payout)
	if err != nil {
		return fmt.Errorf("reserve: revert backing: %w", err)
	}
	shares, err := p.shares.Add(token.Shares)
	if err != nil {
		return fmt.Errorf("reserve: revert shares: %w", err)
	}
	p.backing, p.shares = backing, shares
	return nil
}

// Accrue adds income to the backing without minting shares.
func (p *Pool) Accrue(amount accrual.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	backing, err := p.backing.Add(amount)
	if err != nil {
		return fmt.Errorf("reserve: backing: %w", err)
	}
	p.backing = backing
	return nil
}

// Backing returns the value held by the pool.
func (p *Pool) Backing() accrual.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backing
}

// Shares returns the outstanding share supply.
func (p *Pool) Shares() accrual.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shares
}
