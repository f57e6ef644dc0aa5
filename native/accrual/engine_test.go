package accrual

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/syndtr/goleveldb/leveldb/util"

	"yieldledger/core/events"
	"yieldledger/storage"
)

var saleStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) setHour(h uint64) { c.now = saleStart.Add(time.Duration(h) * time.Hour) }

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

type recordingAssets struct {
	minted []AssetKind
	amount []Decimal
	burned []AssetHandle
	fail   error
}

func (a *recordingAssets) Mint(_ context.Context, kind AssetKind, amount Decimal) (AssetHandle, error) {
	if a.fail != nil {
		return "", a.fail
	}
	a.minted = append(a.minted, kind)
	a.amount = append(a.amount, amount)
	return AssetHandle(fmt.Sprintf("%s-%d", kind, len(a.minted))), nil
}

func (a *recordingAssets) Burn(_ context.Context, handle AssetHandle) error {
	a.burned = append(a.burned, handle)
	return nil
}

func (a *recordingAssets) Transfer(_ context.Context, handle AssetHandle, _ Decimal) (AssetHandle, error) {
	return handle + "-moved", nil
}

type oneToOneReserve struct {
	contributed []Decimal
	redeemed    []Decimal
}

func (r *oneToOneReserve) Contribute(_ context.Context, amount Decimal) (ShareToken, error) {
	r.contributed = append(r.contributed, amount)
	return ShareToken{Shares: amount}, nil
}

func (r *oneToOneReserve) Redeem(_ context.Context, token ShareToken) (Decimal, error) {
	r.redeemed = append(r.redeemed, token.Shares)
	return token.Shares, nil
}

type panickingReserve struct{}

func (panickingReserve) Contribute(context.Context, Decimal) (ShareToken, error) {
	panic("reserve exploded")
}

func (panickingReserve) Redeem(context.Context, ShareToken) (Decimal, error) {
	panic("reserve exploded")
}

type denyAll struct{}

func (denyAll) Authorize(_ context.Context, op string) error {
	return fmt.Errorf("denied: %s", op)
}

func flatCurve(base uint64) Curve {
	return Curve{Base: NewDecimal(base), Slope: Zero(), Asymptote: Zero(), Knee: NewDecimal(1)}
}

func newTestEngine(t *testing.T, curve Curve, plan VestingPlan) (*Engine, *storage.MemDB, *testClock) {
	t.Helper()
	db := storage.NewMemDB()
	engine, err := NewEngine(db, curve)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	clock := &testClock{now: saleStart}
	engine.SetClock(clock)
	engine.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := engine.StartSale(context.Background(), saleStart, plan); err != nil {
		t.Fatalf("start sale: %v", err)
	}
	return engine, db, clock
}

func deposit(t *testing.T, e *Engine, units uint64) *DepositReceipt {
	t.Helper()
	receipt, err := e.Deposit(context.Background(), DepositRequest{Principal: units})
	if err != nil {
		t.Fatalf("deposit %d: %v", units, err)
	}
	return receipt
}

func yieldOf(t *testing.T, e *Engine, id uint64) Decimal {
	t.Helper()
	y, err := e.AccruedYield(id)
	if err != nil {
		t.Fatalf("yield of %d: %v", id, err)
	}
	return y
}

func dump(t *testing.T, db *storage.MemDB) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	iter := db.NewIterator(&util.Range{})
	defer iter.Release()
	for iter.Next() {
		out[string(iter.Key())] = append([]byte(nil), iter.Value()...)
	}
	if err := iter.Error(); err != nil {
		t.Fatalf("dump: %v", err)
	}
	return out
}

func assertSameState(t *testing.T, before, after map[string][]byte) {
	t.Helper()
	if len(before) != len(after) {
		t.Fatalf("store changed size: %d -> %d keys", len(before), len(after))
	}
	for k, v := range before {
		if !bytes.Equal(after[k], v) {
			t.Fatalf("store key %q changed", k)
		}
	}
}

func TestScenarioSingleClaimReceivesWholeHour(t *testing.T) {
	engine, _, _ := newTestEngine(t, DefaultCurve(), VestingPlan{})
	receipt := deposit(t, engine, 100)

	summary, err := engine.AdvanceTo(context.Background(), 0)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if summary.Hours != 1 || summary.Watermark != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	y0, err := DefaultCurve().Evaluate(0)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got := yieldOf(t, engine, receipt.ClaimID); !got.Equal(y0) {
		t.Fatalf("expected sole claim to receive %s, got %s", y0, got)
	}
}

func TestScenarioLateClaimSharesOnlyItsHours(t *testing.T) {
	ctx := context.Background()
	engine, _, clock := newTestEngine(t, flatCurve(300), VestingPlan{})
	first := deposit(t, engine, 100)

	clock.setHour(5)
	second := deposit(t, engine, 50)
	if second.MintHour != 5 {
		t.Fatalf("expected second claim minted at hour 5, got %d", second.MintHour)
	}
	if _, err := engine.AdvanceTo(ctx, 5); err != nil {
		t.Fatalf("advance: %v", err)
	}

	for h, want := range map[uint64]uint64{0: 100, 4: 100, 5: 150} {
		got, err := engine.MintedAt(h)
		if err != nil || got != want {
			t.Fatalf("minted at %d: expected %d, got %d (%v)", h, want, got, err)
		}
	}
	if got := yieldOf(t, engine, first.ClaimID); !got.Equal(NewDecimal(1700)) {
		t.Fatalf("expected first claim 5*300 + 300*100/150 = 1700, got %s", got)
	}
	if got := yieldOf(t, engine, second.ClaimID); !got.Equal(NewDecimal(100)) {
		t.Fatalf("expected second claim 300*50/150 = 100, got %s", got)
	}
	if err := engine.CheckSupply(); err != nil {
		t.Fatalf("supply: %v", err)
	}
}

func TestScenarioSplitSevenUnits(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, DefaultCurve(), VestingPlan{})
	parent := deposit(t, engine, 7)

	result, err := engine.Split(ctx, parent.ClaimID, 3)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []uint64{3, 2, 2}
	for i, id := range result.IDs() {
		view, err := engine.Claim(id)
		if err != nil {
			t.Fatalf("claim %d: %v", id, err)
		}
		if view.Claim.Principal != want[i] || view.Claim.MintHour != 0 {
			t.Fatalf("child %d: unexpected claim %+v", i, view.Claim)
		}
	}
	if _, err := engine.Claim(parent.ClaimID); !errors.Is(err, ErrClaimSplit) {
		t.Fatalf("expected parent consumed by split, got %v", err)
	}
	if _, err := engine.Split(ctx, parent.ClaimID, 2); !errors.Is(err, ErrState) {
		t.Fatalf("expected split of consumed claim to fail, got %v", err)
	}
	if err := engine.CheckSupply(); err != nil {
		t.Fatalf("supply: %v", err)
	}
}

func TestScenarioAdvanceBeforeAnyMint(t *testing.T) {
	engine, db, _ := newTestEngine(t, DefaultCurve(), VestingPlan{})
	before := dump(t, db)

	_, err := engine.AdvanceTo(context.Background(), 0)
	if !errors.Is(err, ErrNoPrincipal) || !errors.Is(err, ErrArithmetic) {
		t.Fatalf("expected arithmetic error, got %v", err)
	}
	assertSameState(t, before, dump(t, db))
	if engine.Halted() != nil {
		t.Fatalf("arithmetic errors must not halt the ledger")
	}
}

func TestSplitPreservesAccruedYield(t *testing.T) {
	ctx := context.Background()
	engine, _, clock := newTestEngine(t, DefaultCurve(), VestingPlan{})
	deposit(t, engine, 13)
	target := deposit(t, engine, 29)
	clock.setHour(9)

	if _, err := engine.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}
	parentYield := yieldOf(t, engine, target.ClaimID)
	if parentYield.IsZero() {
		t.Fatalf("expected accrued yield before split")
	}

	result, err := engine.Split(ctx, target.ClaimID, 4)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	var units uint64
	sum := Zero()
	for _, id := range result.IDs() {
		view, err := engine.Claim(id)
		if err != nil {
			t.Fatalf("claim %d: %v", id, err)
		}
		units += view.Claim.Principal
		if sum, err = sum.Add(view.Yield); err != nil {
			t.Fatalf("sum: %v", err)
		}
	}
	if units != 29 || !sum.Equal(parentYield) {
		t.Fatalf("children hold %d units and %s yield, parent had 29 and %s", units, sum, parentYield)
	}
	if err := engine.CheckSupply(); err != nil {
		t.Fatalf("supply: %v", err)
	}
}

func TestAccrualIsMonotonic(t *testing.T) {
	ctx := context.Background()
	engine, _, clock := newTestEngine(t, DefaultCurve(), VestingPlan{})
	deposit(t, engine, 40)

	previous := map[uint64]Decimal{}
	for h := uint64(1); h <= 12; h++ {
		clock.setHour(h)
		switch h {
		case 3:
			deposit(t, engine, 25)
		case 6:
			if _, err := engine.Split(ctx, 1, 3); err != nil {
				t.Fatalf("split: %v", err)
			}
		}
		if _, err := engine.AdvanceTo(ctx, h); err != nil {
			t.Fatalf("advance %d: %v", h, err)
		}
		views, err := engine.Claims()
		if err != nil {
			t.Fatalf("claims: %v", err)
		}
		for _, view := range views {
			if prev, ok := previous[view.Claim.ID]; ok && view.Yield.Cmp(prev) < 0 {
				t.Fatalf("hour %d: claim %d yield decreased %s -> %s", h, view.Claim.ID, prev, view.Yield)
			}
			previous[view.Claim.ID] = view.Yield
		}
	}
	if err := engine.CheckSupply(); err != nil {
		t.Fatalf("supply: %v", err)
	}
}

func TestRedeemPaysYieldAndRetiresClaim(t *testing.T) {
	ctx := context.Background()
	engine, _, clock := newTestEngine(t, flatCurve(10), VestingPlan{})
	assets := &recordingAssets{}
	reserve := &oneToOneReserve{}
	engine.SetAssets(assets)
	engine.SetReserve(reserve)

	receipt, err := engine.Deposit(ctx, DepositRequest{Principal: 60, Backing: NewDecimal(6)})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !receipt.TrustShare.Equal(NewDecimal(6)) || receipt.Asset == "" {
		t.Fatalf("unexpected deposit receipt %+v", receipt)
	}
	other := deposit(t, engine, 40)

	clock.setHour(3)
	redeemed, err := engine.Redeem(ctx, RedeemRequest{ClaimID: receipt.ClaimID, Principal: receipt.Asset})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	// hours 0..2 settled before redemption: 3 * 10 * 60/100.
	if !redeemed.Yield.Equal(NewDecimal(18)) {
		t.Fatalf("expected 18 yield, got %s", redeemed.Yield)
	}
	if !redeemed.Backing.Equal(NewDecimal(6)) {
		t.Fatalf("expected backing 6, got %s", redeemed.Backing)
	}
	if len(assets.burned) != 1 || assets.burned[0] != receipt.Asset {
		t.Fatalf("expected principal handle burned, got %v", assets.burned)
	}
	if last := assets.minted[len(assets.minted)-1]; last != AssetYield {
		t.Fatalf("expected yield minted last, got %s", last)
	}

	if _, err := engine.Redeem(ctx, RedeemRequest{ClaimID: receipt.ClaimID}); !errors.Is(err, ErrClaimRedeemed) {
		t.Fatalf("expected second redemption to fail, got %v", err)
	}

	clock.setHour(5)
	if _, err := engine.AdvanceTo(ctx, 4); err != nil {
		t.Fatalf("advance: %v", err)
	}
	// The redeemed principal stays in the active denominator.
	if got := yieldOf(t, engine, other.ClaimID); !got.Equal(NewDecimal(20)) {
		t.Fatalf("expected 5 * 10 * 40/100 = 20, got %s", got)
	}
	totals, err := engine.Totals()
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Redeemed != 60 || totals.LivePrincipal != 40 || totals.LiveClaims != 1 {
		t.Fatalf("unexpected totals %+v", totals)
	}
	if totals.YieldDust().String() != "12" {
		t.Fatalf("expected dust of the redeemed share, got %s", totals.YieldDust())
	}
	if err := engine.CheckSupply(); err != nil {
		t.Fatalf("supply: %v", err)
	}
}

func TestFailedCollaboratorLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	engine, db, _ := newTestEngine(t, DefaultCurve(), VestingPlan{})
	emitter := &captureEmitter{}
	engine.SetEmitter(emitter)
	engine.SetAssets(&recordingAssets{fail: errors.New("custody offline")})
	reserve := &oneToOneReserve{}
	engine.SetReserve(reserve)
	before := dump(t, db)

	if _, err := engine.Deposit(ctx, DepositRequest{Principal: 10, Backing: NewDecimal(7)}); err == nil {
		t.Fatalf("expected deposit to fail")
	}
	assertSameState(t, before, dump(t, db))
	if len(emitter.events) != 0 {
		t.Fatalf("failed operations must not emit, got %d events", len(emitter.events))
	}
	// Without an exact revert the contribution is undone by redeeming it.
	if len(reserve.contributed) != 1 || len(reserve.redeemed) != 1 || !reserve.redeemed[0].Equal(NewDecimal(7)) {
		t.Fatalf("expected contribution to be returned, got contributed %v redeemed %v",
			reserve.contributed, reserve.redeemed)
	}

	engine.SetAssets(nil)
	engine.SetReserve(nil)
	if receipt := deposit(t, engine, 10); receipt.ClaimID != 1 {
		t.Fatalf("expected id 1 to be unused after revert, got %d", receipt.ClaimID)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType() != events.TypeClaimDeposited {
		t.Fatalf("expected one deposit event, got %+v", emitter.events)
	}
}

func TestInvariantViolationHaltsLedger(t *testing.T) {
	ctx := context.Background()
	engine, db, clock := newTestEngine(t, DefaultCurve(), VestingPlan{})
	emitter := &captureEmitter{}
	engine.SetEmitter(emitter)
	deposit(t, engine, 100)

	if err := db.Put(indexKey(mintPrefix, 0), encodeUint64(10)); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	before := dump(t, db)
	clock.setHour(2)
	_, err := engine.AdvanceTo(ctx, 1)
	if !errors.Is(err, ErrInvariantViolation) || Kind(err) != "invariant" {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	assertSameState(t, before, dump(t, db))
	if engine.Halted() == nil {
		t.Fatalf("expected ledger halted")
	}
	if _, err := engine.Deposit(ctx, DepositRequest{Principal: 1}); !errors.Is(err, ErrHalted) {
		t.Fatalf("expected halted ledger to refuse deposits, got %v", err)
	}
	last := emitter.events[len(emitter.events)-1]
	if last.EventType() != events.TypeLedgerHalted {
		t.Fatalf("expected halt event, got %s", last.EventType())
	}
}

func TestAdvanceRejectsFutureHour(t *testing.T) {
	engine, _, clock := newTestEngine(t, DefaultCurve(), VestingPlan{})
	deposit(t, engine, 5)
	clock.setHour(1)
	if _, err := engine.AdvanceTo(context.Background(), 3); !errors.Is(err, ErrFutureHour) {
		t.Fatalf("expected future hour rejection, got %v", err)
	}
	summary, err := engine.AdvanceTo(context.Background(), 1)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	again, err := engine.AdvanceTo(context.Background(), 1)
	if err != nil {
		t.Fatalf("repeat advance: %v", err)
	}
	if again.Hours != 0 || again.Watermark != summary.Watermark {
		t.Fatalf("repeat advance must be a no-op, got %+v", again)
	}
}

func TestDepositAfterClosedHourLandsAtWatermark(t *testing.T) {
	ctx := context.Background()
	engine, _, clock := newTestEngine(t, flatCurve(1), VestingPlan{})
	clock.setHour(2)
	deposit(t, engine, 5)
	if _, err := engine.AdvanceTo(ctx, 2); err != nil {
		t.Fatalf("advance: %v", err)
	}
	late := deposit(t, engine, 5)
	if late.MintHour != 3 {
		t.Fatalf("expected deposit after closing hour 2 to mint at 3, got %d", late.MintHour)
	}
	watermark, err := engine.Watermark()
	if err != nil || watermark != 3 {
		t.Fatalf("expected watermark 3, got %d (%v)", watermark, err)
	}
}

func TestSettleOnlyClosesCompletedHours(t *testing.T) {
	ctx := context.Background()
	engine, _, clock := newTestEngine(t, flatCurve(2), VestingPlan{})
	if summary, err := engine.Settle(ctx); err != nil || summary.Hours != 0 {
		t.Fatalf("settle on empty ledger must be a no-op, got %+v (%v)", summary, err)
	}
	claim := deposit(t, engine, 1)
	clock.setHour(4)
	summary, err := engine.Settle(ctx)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if summary.Hours != 4 || summary.Watermark != 4 {
		t.Fatalf("expected hours 0..3 settled, got %+v", summary)
	}
	if got := yieldOf(t, engine, claim.ClaimID); !got.Equal(NewDecimal(8)) {
		t.Fatalf("expected 8 yield, got %s", got)
	}
}

func TestHourlyIDPolicySkipsTakenIDs(t *testing.T) {
	engine, _, clock := newTestEngine(t, DefaultCurve(), VestingPlan{})
	engine.SetIDPolicy(IDPolicyHourly)
	a := deposit(t, engine, 1)
	b := deposit(t, engine, 1)
	clock.setHour(1)
	c := deposit(t, engine, 1)
	if a.ClaimID != 1 || b.ClaimID != 2 || c.ClaimID != 1_000_001 {
		t.Fatalf("unexpected ids %d %d %d", a.ClaimID, b.ClaimID, c.ClaimID)
	}
}

func TestVestingWithdrawalThroughEngine(t *testing.T) {
	ctx := context.Background()
	plan := VestingPlan{Weeks: 3, Period: 7 * 24 * time.Hour, ReserveUnits: 100}
	engine, _, clock := newTestEngine(t, DefaultCurve(), plan)
	assets := &recordingAssets{}
	engine.SetAssets(assets)
	deposit(t, engine, 10)

	receipt, err := engine.WithdrawVesting(ctx)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if receipt.Released != 33 || receipt.Asset == "" {
		t.Fatalf("unexpected vesting receipt %+v", receipt)
	}
	if _, err := engine.WithdrawVesting(ctx); !errors.Is(err, ErrNothingVested) {
		t.Fatalf("expected idempotent epoch, got %v", err)
	}

	clock.now = saleStart.Add(3 * plan.Period)
	receipt, err = engine.WithdrawVesting(ctx)
	if err != nil || receipt.Released != 66 {
		t.Fatalf("expected remaining epochs, got %+v (%v)", receipt, err)
	}
	receipt, err = engine.WithdrawVesting(ctx)
	if err != nil || !receipt.Dust || receipt.Released != 1 {
		t.Fatalf("expected final dust release, got %+v (%v)", receipt, err)
	}

	totals, err := engine.Totals()
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.VestingReleased != 100 || totals.Minted != 110 {
		t.Fatalf("unexpected totals %+v", totals)
	}
	if err := engine.CheckSupply(); err != nil {
		t.Fatalf("supply: %v", err)
	}
	schedule, err := engine.VestingSchedule()
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	for _, entry := range schedule.Entries {
		if !entry.Used {
			t.Fatalf("entry %d should be used", entry.Index)
		}
	}
}

func TestAccessControlRunsFirst(t *testing.T) {
	engine, db, _ := newTestEngine(t, DefaultCurve(), VestingPlan{})
	engine.SetAccessControl(denyAll{})
	before := dump(t, db)
	_, err := engine.Deposit(context.Background(), DepositRequest{Principal: 1})
	if !errors.Is(err, ErrPermission) || Kind(err) != "permission" {
		t.Fatalf("expected permission error, got %v (%s)", err, Kind(err))
	}
	assertSameState(t, before, dump(t, db))
}

func TestSplitRejectsChildCountOverLimit(t *testing.T) {
	ctx := context.Background()
	engine, db, clock := newTestEngine(t, DefaultCurve(), VestingPlan{})
	parent := deposit(t, engine, 1<<62)
	clock.setHour(3)
	before := dump(t, db)

	_, err := engine.Split(ctx, parent.ClaimID, 1<<62)
	if !errors.Is(err, ErrSplitTooMany) || Kind(err) != "validation" {
		t.Fatalf("expected child limit rejection, got %v", err)
	}
	assertSameState(t, before, dump(t, db))

	engine.SetMaxSplitChildren(4)
	if _, err := engine.Split(ctx, parent.ClaimID, 5); !errors.Is(err, ErrSplitTooMany) {
		t.Fatalf("expected configured limit to apply, got %v", err)
	}
	result, err := engine.Split(ctx, parent.ClaimID, 4)
	if err != nil {
		t.Fatalf("split at limit: %v", err)
	}
	if len(result.IDs()) != 4 {
		t.Fatalf("expected 4 children, got %d", len(result.IDs()))
	}
	deposit(t, engine, 1)
}

func TestPanicInOperationRevertsJournal(t *testing.T) {
	ctx := context.Background()
	engine, db, _ := newTestEngine(t, DefaultCurve(), VestingPlan{})
	emitter := &captureEmitter{}
	engine.SetEmitter(emitter)
	deposit(t, engine, 10)
	emitter.events = nil
	engine.SetReserve(panickingReserve{})
	before := dump(t, db)

	func() {
		defer func() {
			if p := recover(); p == nil {
				t.Fatalf("expected deposit to panic")
			}
		}()
		_, _ = engine.Deposit(ctx, DepositRequest{Principal: 5, Backing: NewDecimal(1)})
	}()
	assertSameState(t, before, dump(t, db))
	if engine.journal.Active() {
		t.Fatalf("journal left open after panic")
	}
	if len(emitter.events) != 0 {
		t.Fatalf("panicked operation must not emit, got %d events", len(emitter.events))
	}

	engine.SetReserve(nil)
	if receipt := deposit(t, engine, 5); receipt.ClaimID != 2 {
		t.Fatalf("expected id 2 to be reused after panic, got %d", receipt.ClaimID)
	}
	if err := engine.CheckSupply(); err != nil {
		t.Fatalf("supply: %v", err)
	}
}

func TestCheckSupplyDecodeErrorDoesNotHalt(t *testing.T) {
	engine, db, _ := newTestEngine(t, DefaultCurve(), VestingPlan{})
	deposit(t, engine, 10)
	good, err := db.Get(totalsKey)
	if err != nil {
		t.Fatalf("read totals: %v", err)
	}
	if err := db.Put(totalsKey, []byte("garbage")); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	err = engine.CheckSupply()
	if err == nil || errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if engine.Halted() != nil {
		t.Fatalf("decode errors must not halt the ledger")
	}

	if err := db.Put(totalsKey, good); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := engine.CheckSupply(); err != nil {
		t.Fatalf("supply after restore: %v", err)
	}
	deposit(t, engine, 1)
}

func TestOperationsRequireSale(t *testing.T) {
	engine, err := NewEngine(storage.NewMemDB(), DefaultCurve())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	engine.SetClock(ClockFunc(func() time.Time { return saleStart }))
	if _, err := engine.Deposit(context.Background(), DepositRequest{Principal: 1}); !errors.Is(err, ErrSaleNotStarted) {
		t.Fatalf("expected sale not started, got %v", err)
	}
	if err := engine.StartSale(context.Background(), saleStart.Add(time.Hour), VestingPlan{}); err != nil {
		t.Fatalf("start sale: %v", err)
	}
	if _, err := engine.Deposit(context.Background(), DepositRequest{Principal: 1}); !errors.Is(err, ErrSaleNotStarted) {
		t.Fatalf("expected deposit before start to fail, got %v", err)
	}
	if err := engine.StartSale(context.Background(), saleStart, VestingPlan{}); !errors.Is(err, ErrSaleStarted) {
		t.Fatalf("expected second start to fail, got %v", err)
	}
	if _, err := engine.Deposit(context.Background(), DepositRequest{}); !errors.Is(err, ErrZeroPrincipal) {
		t.Fatalf("expected zero principal rejection, got %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	engine, _, clock := newTestEngine(t, flatCurve(3), VestingPlan{Weeks: 2, Period: time.Hour, ReserveUnits: 4})
	deposit(t, engine, 3)
	clock.setHour(2)
	deposit(t, engine, 6)

	snap, err := engine.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Watermark != 2 || len(snap.Claims) != 2 || len(snap.Mint) != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Vesting == nil || len(snap.Vesting.Entries) != 2 {
		t.Fatalf("expected vesting schedule in snapshot")
	}
	if snap.Totals.Minted != 9 || !snap.Claims[0].Yield.Equal(NewDecimal(6)) {
		t.Fatalf("unexpected totals %+v / yield %s", snap.Totals, snap.Claims[0].Yield)
	}
}
