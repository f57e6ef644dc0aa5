package common

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaUnitsExceeded    = errors.New("quota units exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for a caller.
type QuotaNow struct {
	Requests uint32
	Units    uint64
	EpochID  uint64
}

// Quota defines the limits enforced per caller and epoch. Zero limits are
// unlimited.
type Quota struct {
	MaxRequests  uint32
	MaxUnits     uint64
	EpochSeconds uint32
}

// CheckQuota verifies whether the additional requests and units fit within
// the configured quota. The returned QuotaNow reflects the updated counters
// when the quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addUnits uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.Requests > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.Requests += addReq
	}
	if q.MaxRequests > 0 && next.Requests > q.MaxRequests {
		return prev, ErrQuotaRequestsExceeded
	}

	if addUnits > 0 {
		if next.Units > math.MaxUint64-addUnits {
			return prev, ErrQuotaCounterOverflow
		}
		next.Units += addUnits
	}
	if q.MaxUnits > 0 && next.Units > q.MaxUnits {
		return prev, ErrQuotaUnitsExceeded
	}

	return next, nil
}

// Authorizer is the access check signature shared by the ledger modules.
type Authorizer interface {
	Authorize(ctx context.Context, op string) error
}

// QuotaGate rate-limits each caller's operations per epoch before handing
// the request to Next.
type QuotaGate struct {
	Next  Authorizer
	Quota Quota
	Now   func() time.Time

	mu    sync.Mutex
	usage map[string]QuotaNow
}

func (g *QuotaGate) Authorize(ctx context.Context, op string) error {
	if g.Next != nil {
		if err := g.Next.Authorize(ctx, op); err != nil {
			return err
		}
	}
	caller, ok := CallerFrom(ctx)
	if !ok {
		caller = "anonymous"
	}
	now := time.Now()
	if g.Now != nil {
		now = g.Now()
	}
	epoch := uint64(0)
	if g.Quota.EpochSeconds > 0 && now.Unix() > 0 {
		epoch = uint64(now.Unix()) / uint64(g.Quota.EpochSeconds)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.usage == nil {
		g.usage = make(map[string]QuotaNow)
	}
	next, err := CheckQuota(g.Quota, epoch, g.usage[caller], 1, 0)
	if err != nil {
		return err
	}
	g.usage[caller] = next
	return nil
}
