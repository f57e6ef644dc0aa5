package common

import (
	"context"
	"errors"
	"testing"
)

func TestGuardPauses(t *testing.T) {
	pauses := NewPauses("accrual")
	if err := Guard(pauses, "accrual"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused module, got %v", err)
	}
	if err := Guard(pauses, "lending"); err != nil {
		t.Fatalf("unexpected error for unpaused module: %v", err)
	}
	pauses.Set(" ACCRUAL ", false)
	if err := Guard(pauses, "accrual"); err != nil {
		t.Fatalf("expected module resumed, got %v", err)
	}
	if err := Guard(nil, "accrual"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}

func TestRoleTableAuthorize(t *testing.T) {
	table := NewRoleTable(map[string][]string{
		"advance": {"operator"},
		"deposit": {"*"},
	})

	if err := table.Authorize(context.Background(), "deposit"); !errors.Is(err, ErrMissingCaller) {
		t.Fatalf("expected missing caller, got %v", err)
	}
	alice := WithCaller(context.Background(), "alice")
	if err := table.Authorize(alice, "deposit"); err != nil {
		t.Fatalf("wildcard caller should be allowed: %v", err)
	}
	if err := table.Authorize(alice, "advance"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	operator := WithCaller(context.Background(), "operator")
	if err := table.Authorize(operator, "advance"); err != nil {
		t.Fatalf("operator should advance: %v", err)
	}
	table.Revoke("advance", "operator")
	if err := table.Authorize(operator, "advance"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected revoked grant to deny, got %v", err)
	}
	if err := table.Authorize(operator, "split"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unlisted operation must be denied, got %v", err)
	}
}

func TestAllowAll(t *testing.T) {
	if err := (AllowAll{}).Authorize(context.Background(), "anything"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
