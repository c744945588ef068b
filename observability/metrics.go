package observability

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReserveMetrics records ledger activity: issuance flows, rebalances into the
// yield venue, and harvest payouts.
type ReserveMetrics struct {
	deposits    prometheus.Counter
	withdrawals prometheus.Counter
	rebalances  prometheus.Counter
	harvests    prometheus.Counter
	totalIssued prometheus.Gauge
	idleReserve prometheus.Gauge
}

// SwapMetrics records coordinator activity segmented by direction and outcome.
type SwapMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	reserveMetricsOnce sync.Once
	reserveRegistry    *ReserveMetrics

	swapMetricsOnce sync.Once
	swapRegistry    *SwapMetrics
)

// Reserve returns the lazily-initialised reserve metrics registry.
func Reserve() *ReserveMetrics {
	reserveMetricsOnce.Do(func() {
		reserveRegistry = &ReserveMetrics{
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nrv",
				Subsystem: "reserve",
				Name:      "deposits_total",
				Help:      "Total successful deposit operations.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nrv",
				Subsystem: "reserve",
				Name:      "withdrawals_total",
				Help:      "Total successful withdraw operations.",
			}),
			rebalances: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nrv",
				Subsystem: "reserve",
				Name:      "rebalances_total",
				Help:      "Total reserve rebalances that moved funds into the yield venue.",
			}),
			harvests: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nrv",
				Subsystem: "reserve",
				Name:      "harvests_total",
				Help:      "Total harvest operations that paid out accumulated yield.",
			}),
			totalIssued: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nrv",
				Subsystem: "reserve",
				Name:      "total_issued_wei",
				Help:      "Outstanding issued token supply in wei.",
			}),
			idleReserve: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nrv",
				Subsystem: "reserve",
				Name:      "idle_reserve_wei",
				Help:      "Native balance held idle on the ledger module account in wei.",
			}),
		}
		prometheus.MustRegister(
			reserveRegistry.deposits,
			reserveRegistry.withdrawals,
			reserveRegistry.rebalances,
			reserveRegistry.harvests,
			reserveRegistry.totalIssued,
			reserveRegistry.idleReserve,
		)
	})
	return reserveRegistry
}

// RecordDeposit increments the deposit counter.
func (m *ReserveMetrics) RecordDeposit() {
	if m == nil {
		return
	}
	m.deposits.Inc()
}

// RecordWithdraw increments the withdraw counter.
func (m *ReserveMetrics) RecordWithdraw() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

// RecordRebalance increments the rebalance counter.
func (m *ReserveMetrics) RecordRebalance() {
	if m == nil {
		return
	}
	m.rebalances.Inc()
}

// RecordHarvest increments the harvest counter.
func (m *ReserveMetrics) RecordHarvest() {
	if m == nil {
		return
	}
	m.harvests.Inc()
}

// SetSupply updates the supply gauges from the ledger's current view. Values
// above float64 precision are truncated, which is acceptable for dashboards.
func (m *ReserveMetrics) SetSupply(totalIssued, idle *big.Int) {
	if m == nil {
		return
	}
	if totalIssued != nil {
		value, _ := new(big.Float).SetInt(totalIssued).Float64()
		m.totalIssued.Set(value)
	}
	if idle != nil {
		value, _ := new(big.Float).SetInt(idle).Float64()
		m.idleReserve.Set(value)
	}
}

// Swap returns the lazily-initialised swap metrics registry.
func Swap() *SwapMetrics {
	swapMetricsOnce.Do(func() {
		swapRegistry = &SwapMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nrv",
				Subsystem: "swap",
				Name:      "requests_total",
				Help:      "Total swap requests segmented by direction and outcome.",
			}, []string{"direction", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nrv",
				Subsystem: "swap",
				Name:      "duration_seconds",
				Help:      "Latency distribution for swap settlement.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"direction"}),
		}
		prometheus.MustRegister(swapRegistry.requests, swapRegistry.latency)
	})
	return swapRegistry
}

// Observe records the outcome and duration of one swap request.
func (m *SwapMetrics) Observe(direction string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(direction, outcome).Inc()
	m.latency.WithLabelValues(direction).Observe(duration.Seconds())
}
