package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrUnauthorized  = errors.New("operation not authorized")
	ErrMissingCaller = errors.New("caller identity missing")
)

type callerKey struct{}

// WithCaller attaches the identity the access checks evaluate.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, strings.TrimSpace(caller))
}

// CallerFrom returns the identity attached by WithCaller.
func CallerFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	caller, ok := ctx.Value(callerKey{}).(string)
	if !ok || caller == "" {
		return "", false
	}
	return caller, true
}

// AllowAll authorizes every operation.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, string) error { return nil }

// RoleTable maps operations to the callers allowed to perform them. The
// wildcard "*" on either side matches any operation or caller. Operations
// without an entry are denied.
type RoleTable struct {
	mu    sync.RWMutex
	grant map[string]map[string]struct{}
}

// NewRoleTable builds a table from operation → allowed callers.
func NewRoleTable(grants map[string][]string) *RoleTable {
	table := &RoleTable{grant: make(map[string]map[string]struct{})}
	for op, callers := range grants {
		for _, caller := range callers {
			table.Grant(op, caller)
		}
	}
	return table
}

// Grant allows caller to perform op.
func (t *RoleTable) Grant(op, caller string) {
	op = strings.TrimSpace(op)
	caller = strings.TrimSpace(caller)
	if op == "" || caller == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.grant[op] == nil {
		t.grant[op] = make(map[string]struct{})
	}
	t.grant[op][caller] = struct{}{}
}

// Revoke removes a grant added by Grant.
func (t *RoleTable) Revoke(op, caller string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.grant[strings.TrimSpace(op)], strings.TrimSpace(caller))
}

func (t *RoleTable) Authorize(ctx context.Context, op string) error {
	caller, ok := CallerFrom(ctx)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingCaller, op)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, key := range []string{op, "*"} {
		callers := t.grant[key]
		if _, ok := callers[caller]; ok {
			return nil
		}
		if _, ok := callers["*"]; ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s by %s", ErrUnauthorized, op, caller)
}
