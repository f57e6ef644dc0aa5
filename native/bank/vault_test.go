package bank

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"yieldledger/native/accrual"
)

func TestVaultMintTransferBurn(t *testing.T) {
	ctx := context.Background()
	vault := NewVault()

	handle, err := vault.Mint(ctx, accrual.AssetYield, accrual.NewDecimal(10))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := uuid.Parse(string(handle)); err != nil {
		t.Fatalf("expected uuid handle, got %q", handle)
	}

	moved, err := vault.Transfer(ctx, handle, accrual.NewDecimal(4))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if moved == handle {
		t.Fatalf("transfer must issue a new handle")
	}
	src, err := vault.Balance(handle)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !src.Amount.Equal(accrual.NewDecimal(6)) {
		t.Fatalf("unexpected source balance %s", src.Amount)
	}
	if got := vault.Supply(accrual.AssetYield); !got.Equal(accrual.NewDecimal(10)) {
		t.Fatalf("transfer must not change supply, got %s", got)
	}

	if err := vault.Burn(ctx, moved); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := vault.Supply(accrual.AssetYield); !got.Equal(accrual.NewDecimal(6)) {
		t.Fatalf("unexpected supply after burn %s", got)
	}
	if err := vault.Burn(ctx, moved); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("expected unknown handle on double burn, got %v", err)
	}
}

func TestVaultTransferLimits(t *testing.T) {
	ctx := context.Background()
	vault := NewVault()
	handle, err := vault.Mint(ctx, accrual.AssetPrincipal, accrual.NewDecimal(3))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := vault.Transfer(ctx, handle, accrual.NewDecimal(4)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if _, err := vault.Transfer(ctx, handle, accrual.NewDecimal(3)); err != nil {
		t.Fatalf("full transfer: %v", err)
	}
	if _, err := vault.Balance(handle); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("emptied handle should be dropped, got %v", err)
	}
	if _, err := vault.Mint(ctx, accrual.AssetPrincipal, accrual.Zero()); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if len(vault.Holdings()) != 1 {
		t.Fatalf("expected a single holding, got %d", len(vault.Holdings()))
	}
}
