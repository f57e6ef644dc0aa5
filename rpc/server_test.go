package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"yieldledger/core/events"
	"yieldledger/native/accrual"
	nativecommon "yieldledger/native/common"
	"yieldledger/observability"
	"yieldledger/storage"
)

var saleStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	engine *accrual.Engine
	server *httptest.Server
	now    time.Time
	buffer *events.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	curve := accrual.Curve{
		Base:      accrual.NewDecimal(300),
		Slope:     accrual.Zero(),
		Asymptote: accrual.Zero(),
		Knee:      accrual.NewDecimal(1),
	}
	engine, err := accrual.NewEngine(storage.NewMemDB(), curve)
	require.NoError(t, err)

	h := &harness{engine: engine, now: saleStart, buffer: events.NewBuffer(16)}
	engine.SetClock(accrual.ClockFunc(func() time.Time { return h.now }))
	engine.SetEmitter(h.buffer)
	engine.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	reg := prometheus.NewRegistry()
	srv, err := New(Config{
		Ledger:   engine,
		Events:   h.buffer,
		Metrics:  observability.NewHTTPMetrics(reg),
		Gatherer: reg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	h.server = httptest.NewServer(srv.Handler())
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.engine.StartSale(ctx, saleStart, accrual.VestingPlan{}))
	_, err := h.engine.Deposit(ctx, accrual.DepositRequest{Principal: 10})
	require.NoError(t, err)
	h.now = saleStart.Add(3 * time.Hour)
	_, err = h.engine.Settle(ctx)
	require.NoError(t, err)
}

func (h *harness) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(h.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestStatsBeforeSale(t *testing.T) {
	h := newHarness(t)

	var stats StatsResponse
	require.Equal(t, http.StatusOK, h.get(t, "/v1/stats", &stats))
	require.False(t, stats.SaleStarted)
	require.Nil(t, stats.CurrentHour)
	require.Zero(t, stats.Totals.Minted)
}

func TestStatsAndClaims(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	var stats StatsResponse
	require.Equal(t, http.StatusOK, h.get(t, "/v1/stats", &stats))
	require.True(t, stats.SaleStarted)
	require.NotNil(t, stats.CurrentHour)
	require.Equal(t, uint64(3), *stats.CurrentHour)
	require.Equal(t, uint64(3), stats.Watermark)
	require.Equal(t, uint64(10), stats.Totals.Minted)
	require.Equal(t, "900", stats.Totals.YieldAllocated.String())
	require.Equal(t, "0", stats.YieldDust)

	var view accrual.ClaimView
	require.Equal(t, http.StatusOK, h.get(t, "/v1/claims/1", &view))
	require.Equal(t, uint64(10), view.Claim.Principal)
	require.Equal(t, "900", view.Yield.String())

	var page ClaimsResponse
	require.Equal(t, http.StatusOK, h.get(t, "/v1/claims?limit=5", &page))
	require.Equal(t, 1, page.Total)
	require.Len(t, page.Claims, 1)

	require.Equal(t, http.StatusOK, h.get(t, "/v1/claims?offset=4", &page))
	require.Empty(t, page.Claims)
}

func TestErrorStatuses(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	var body ErrorResponse
	require.Equal(t, http.StatusNotFound, h.get(t, "/v1/claims/99", &body))
	require.Equal(t, "not_found", body.Kind)

	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/claims/abc", &body))
	require.Equal(t, "validation", body.Kind)

	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/claims?limit=-1", &body))
	require.Equal(t, http.StatusNotFound, h.get(t, "/v1/vesting", &body))

	require.Equal(t, http.StatusConflict, StatusFor(accrual.ErrClaimRedeemed))
	require.Equal(t, http.StatusUnprocessableEntity, StatusFor(accrual.ErrOverflow))
	require.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("disk gone")))

	denied := fmt.Errorf("%w: %w", accrual.ErrPermission, nativecommon.ErrUnauthorized)
	require.Equal(t, http.StatusForbidden, StatusFor(denied))
	require.Equal(t, http.StatusForbidden, StatusFor(fmt.Errorf("%w: %w", accrual.ErrPermission, nativecommon.ErrMissingCaller)))
}

func TestMintLookup(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	var mint MintResponse
	require.Equal(t, http.StatusOK, h.get(t, "/v1/mint/0", &mint))
	require.Equal(t, uint64(10), mint.Cumulative)
	require.Equal(t, http.StatusOK, h.get(t, "/v1/mint/40", &mint))
	require.Equal(t, uint64(40), mint.Hour)
	require.Equal(t, uint64(10), mint.Cumulative)
}

func TestVestingSchedule(t *testing.T) {
	h := newHarness(t)
	plan := accrual.VestingPlan{Weeks: 2, Period: time.Hour, ReserveUnits: 10}
	require.NoError(t, h.engine.StartSale(context.Background(), saleStart, plan))

	var schedule accrual.VestingSchedule
	require.Equal(t, http.StatusOK, h.get(t, "/v1/vesting", &schedule))
	require.Equal(t, uint64(10), schedule.State.Reserve)
	require.Len(t, schedule.Entries, 2)
}

func TestEventsAndMetrics(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	var records []events.Record
	require.Equal(t, http.StatusOK, h.get(t, "/v1/events", &records))
	require.Len(t, records, 3)
	require.Equal(t, events.TypeSaleStarted, records[0].Type)

	require.Equal(t, http.StatusOK, h.get(t, "/healthz", nil))

	resp, err := http.Get(h.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), `yieldledger_rpc_requests_total{method="GET",outcome="success",route="/v1/events"} 1`)
}
