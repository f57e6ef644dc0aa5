package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AccrualMetrics exposes ledger health to Prometheus.
type AccrualMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	hoursAccrued prometheus.Counter
	claimUpdates prometheus.Counter
	invariants   *prometheus.CounterVec
	watermark    prometheus.Gauge
	liveClaims   prometheus.Gauge
	principal    *prometheus.GaugeVec
	yield        *prometheus.GaugeVec
	halted       prometheus.Gauge
}

var (
	accrualOnce     sync.Once
	accrualRegistry *AccrualMetrics
)

// Accrual returns the process-wide collectors registered with the default
// Prometheus registry.
func Accrual() *AccrualMetrics {
	accrualOnce.Do(func() {
		accrualRegistry = NewAccrualMetrics(prometheus.DefaultRegisterer)
	})
	return accrualRegistry
}

// NewAccrualMetrics builds a collector set and registers it with reg. A nil
// registerer leaves the collectors unregistered.
func NewAccrualMetrics(reg prometheus.Registerer) *AccrualMetrics {
	m := &AccrualMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accrual_operations_total",
			Help: "Ledger operations by name and result kind.",
		}, []string{"op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accrual_operation_duration_seconds",
			Help:    "Wall time spent inside ledger operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		hoursAccrued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accrual_hours_accrued_total",
			Help: "Hours distributed by accrual passes.",
		}),
		claimUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accrual_claim_updates_total",
			Help: "Per-claim yield credits written by accrual passes.",
		}),
		invariants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accrual_invariant_violations_total",
			Help: "Invariant violations detected, by operation.",
		}, []string{"op"}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "accrual_watermark_hour",
			Help: "First hour not yet distributed.",
		}),
		liveClaims: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "accrual_live_claims",
			Help: "Number of live claims.",
		}),
		principal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "accrual_principal_units",
			Help: "Principal units by bucket (minted, live, redeemed, vested).",
		}, []string{"bucket"}),
		yield: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "accrual_yield",
			Help: "Yield totals by bucket (emitted, allocated, redeemed, dust).",
		}, []string{"bucket"}),
		halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "accrual_halted",
			Help: "1 when the ledger refuses mutations after an invariant violation.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.operations,
			m.latency,
			m.hoursAccrued,
			m.claimUpdates,
			m.invariants,
			m.watermark,
			m.liveClaims,
			m.principal,
			m.yield,
			m.halted,
		)
	}
	return m
}

func (m *AccrualMetrics) ObserveOperation(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *AccrualMetrics) ObserveAdvance(hours, claimUpdates uint64) {
	if m == nil {
		return
	}
	m.hoursAccrued.Add(float64(hours))
	m.claimUpdates.Add(float64(claimUpdates))
}

func (m *AccrualMetrics) IncInvariantViolation(op string) {
	if m == nil {
		return
	}
	m.invariants.WithLabelValues(op).Inc()
	m.halted.Set(1)
}

func (m *AccrualMetrics) SetWatermark(hour uint64) {
	if m == nil {
		return
	}
	m.watermark.Set(float64(hour))
}

func (m *AccrualMetrics) SetLiveClaims(count int) {
	if m == nil {
		return
	}
	m.liveClaims.Set(float64(count))
}

// PrincipalSnapshot carries the principal counters published as gauges.
type PrincipalSnapshot struct {
	Minted   uint64
	Live     uint64
	Redeemed uint64
	Vested   uint64
}

func (m *AccrualMetrics) SetPrincipal(s PrincipalSnapshot) {
	if m == nil {
		return
	}
	m.principal.WithLabelValues("minted").Set(float64(s.Minted))
	m.principal.WithLabelValues("live").Set(float64(s.Live))
	m.principal.WithLabelValues("redeemed").Set(float64(s.Redeemed))
	m.principal.WithLabelValues("vested").Set(float64(s.Vested))
}

// YieldSnapshot carries approximate yield totals for display.
type YieldSnapshot struct {
	Emitted   float64
	Allocated float64
	Redeemed  float64
	Dust      float64
}

func (m *AccrualMetrics) SetYield(s YieldSnapshot) {
	if m == nil {
		return
	}
	m.yield.WithLabelValues("emitted").Set(s.Emitted)
	m.yield.WithLabelValues("allocated").Set(s.Allocated)
	m.yield.WithLabelValues("redeemed").Set(s.Redeemed)
	m.yield.WithLabelValues("dust").Set(s.Dust)
}
