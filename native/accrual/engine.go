package accrual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"yieldledger/core/events"
	nativecommon "yieldledger/native/common"
	"yieldledger/observability/metrics"
	"yieldledger/storage"
)

const moduleName = "accrual"

var errNilStore = errors.New("accrual engine: store not configured")

// Engine owns the mint index, claim registry, yield index and vesting
// schedule, and is the only writer of all four. Every mutation runs under a
// single mutex inside an undo journal: it either commits completely or leaves
// the store byte-for-byte unchanged.
type Engine struct {
	mu sync.Mutex

	journal  *storage.Journal
	mint     *MintIndex
	registry *Registry
	yields   *YieldIndex
	vesting  *Vesting
	curve    Curve
	idPolicy IDPolicy
	maxSplit uint64

	clock   Clock
	assets  AssetTransfer
	reserve ReservePool
	access  AccessControl
	pauses  nativecommon.PauseView
	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.AccrualMetrics
	tracer  trace.Tracer

	halted error
}

// NewEngine binds an engine to store using the supplied yield curve.
func NewEngine(store storage.Store, curve Curve) (*Engine, error) {
	if store == nil {
		return nil, errNilStore
	}
	if err := curve.Validate(); err != nil {
		return nil, err
	}
	journal := storage.NewJournal(store)
	yields := NewYieldIndex(journal)
	return &Engine{
		journal:  journal,
		mint:     NewMintIndex(journal),
		registry: NewRegistry(journal, yields),
		yields:   yields,
		vesting:  NewVesting(journal),
		curve:    curve,
		idPolicy: IDPolicySequential,
		maxSplit: DefaultMaxSplitChildren,
		clock:    SystemClock{},
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("yieldledger/native/accrual"),
	}, nil
}

// SetClock replaces the time source. Tests use it to pin the current hour.
func (e *Engine) SetClock(clock Clock) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// SetAssets wires the collaborator that realises principal, yield and
// vested funds. Without one the engine only keeps accounts.
func (e *Engine) SetAssets(assets AssetTransfer) {
	if e == nil {
		return
	}
	e.assets = assets
}

// SetReserve wires the pool backing trust shares.
func (e *Engine) SetReserve(pool ReservePool) {
	if e == nil {
		return
	}
	e.reserve = pool
}

// SetAccessControl gates mutations. A nil controller allows everything.
func (e *Engine) SetAccessControl(access AccessControl) {
	if e == nil {
		return
	}
	e.access = access
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the sink for committed ledger events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

func (e *Engine) SetMetrics(m *metrics.AccrualMetrics) {
	if e == nil {
		return
	}
	e.metrics = m
}

// SetIDPolicy selects how claim ids are seeded.
func (e *Engine) SetIDPolicy(policy IDPolicy) {
	if e == nil {
		return
	}
	e.idPolicy = policy
}

// SetMaxSplitChildren bounds how many children one Split may create. Zero
// restores DefaultMaxSplitChildren.
func (e *Engine) SetMaxSplitChildren(n uint64) {
	if e == nil {
		return
	}
	if n == 0 {
		n = DefaultMaxSplitChildren
	}
	e.maxSplit = n
}

// Halted returns the invariant violation that stopped the ledger, if any.
func (e *Engine) Halted() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// txn carries the per-operation context threaded through a mutation.
type txn struct {
	op       string
	now      time.Time
	sale     time.Time
	started  bool
	hour     uint64
	events   []events.Event
	advanced []*AdvanceSummary
	attrs    []any
	undo     []func(context.Context) error
}

func (tx *txn) emit(evt events.Event) { tx.events = append(tx.events, evt) }

func (tx *txn) log(attrs ...any) { tx.attrs = append(tx.attrs, attrs...) }

func (tx *txn) requireOpen() error {
	if !tx.started {
		return ErrSaleNotStarted
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, op string, fn func(context.Context, *txn) error) error {
	if e == nil {
		return errNilStore
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := e.tracer.Start(ctx, "accrual."+op, trace.WithAttributes(attribute.String("accrual.op", op)))
	defer span.End()

	began := time.Now()
	err := e.run(ctx, op, fn)
	result := Kind(err)
	e.metrics.ObserveOperation(op, result, time.Since(began))
	span.SetAttributes(attribute.String("accrual.result", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (e *Engine) run(ctx context.Context, op string, fn func(context.Context, *txn) error) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return fmt.Errorf("%w: %w", ErrState, err)
	}
	if e.access != nil {
		if err := e.access.Authorize(ctx, op); err != nil {
			return fmt.Errorf("%w: %w", ErrPermission, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted != nil {
		return fmt.Errorf("%w: %v", ErrHalted, e.halted)
	}
	if err := e.journal.Begin(); err != nil {
		return err
	}
	var tx *txn
	defer func() {
		if p := recover(); p != nil {
			if e.journal.Active() {
				if rerr := e.journal.Revert(); rerr != nil {
					e.logger.Error("accrual revert after panic failed", "op", op, "error", rerr)
				}
				_ = e.compensate(ctx, tx)
			}
			panic(p)
		}
	}()
	tx, err := e.begin(op)
	if err == nil {
		err = fn(ctx, tx)
	}
	if err != nil {
		if rerr := e.journal.Revert(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		if cerr := e.compensate(ctx, tx); cerr != nil {
			err = errors.Join(err, cerr)
		}
		if errors.Is(err, ErrInvariantViolation) {
			e.halt(op, err)
		}
		return err
	}
	writes := e.journal.Writes()
	if err := e.journal.Commit(); err != nil {
		return err
	}

	for _, evt := range tx.events {
		e.emitter.Emit(evt)
	}
	for _, summary := range tx.advanced {
		e.metrics.ObserveAdvance(summary.Hours, summary.ClaimUpdates)
	}
	e.publish()
	attrs := append([]any{"op", op, "hour", tx.hour, "writes", writes}, tx.attrs...)
	e.logger.Info("accrual operation committed", attrs...)
	return nil
}

func (e *Engine) begin(op string) (*txn, error) {
	tx := &txn{op: op, now: e.clock.Now()}
	sale, ok, err := e.saleStart()
	if err != nil {
		return nil, err
	}
	if !ok {
		return tx, nil
	}
	tx.sale = sale
	hour, err := HoursSince(sale, tx.now)
	if errors.Is(err, ErrSaleNotStarted) {
		return tx, nil
	}
	if err != nil {
		return nil, err
	}
	tx.started = true
	tx.hour = hour
	return tx, nil
}

func (e *Engine) halt(op string, cause error) {
	e.halted = cause
	e.logger.Error("accrual ledger halted", "op", op, "error", cause)
	e.metrics.IncInvariantViolation(op)
	e.emitter.Emit(events.LedgerHalted{Operation: op, Reason: cause.Error()})
}

// publish refreshes gauges after a commit.
func (e *Engine) publish() {
	if e.metrics == nil {
		return
	}
	totals, err := e.loadTotals()
	if err != nil {
		e.logger.Warn("accrual metrics: load totals", "error", err)
		return
	}
	watermark, err := e.watermark()
	if err != nil {
		e.logger.Warn("accrual metrics: load watermark", "error", err)
		return
	}
	e.metrics.SetWatermark(watermark)
	e.metrics.SetLiveClaims(int(totals.LiveClaims))
	e.metrics.SetPrincipal(metrics.PrincipalSnapshot{
		Minted:   totals.Minted,
		Live:     totals.LivePrincipal,
		Redeemed: totals.Redeemed,
		Vested:   totals.VestingReleased,
	})
	e.metrics.SetYield(metrics.YieldSnapshot{
		Emitted:   totals.YieldEmitted.Float64(),
		Allocated: totals.YieldAllocated.Float64(),
		Redeemed:  totals.YieldRedeemed.Float64(),
		Dust:      totals.YieldDust().Float64(),
	})
}

func (e *Engine) saleStart() (time.Time, bool, error) {
	raw, err := e.journal.Get(saleKey)
	if errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	secs, err := decodeUint64(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(int64(secs), 0).UTC(), true, nil
}
