// Package metrics registers the engine's Prometheus series. They are
// served by the HTTP handler started in main at /metrics.
//
//	engine_decisions_total{arm}     decision-loop arm selections
//	engine_signals_total{arm}       signals emitted by strategies
//	engine_rejections_total{reason} risk-gate rejections
//	engine_exits_total{reason}      position exit slices by reason
//	engine_open_positions           live open-position count
//	engine_equity_usd               capital ledger equity
//	engine_circuit_breaker_armed    1 armed, 0 tripped
//	engine_api_retries_total        external-call retry attempts
//	engine_snapshot_age_seconds     age of the cached snapshot
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_decisions_total",
			Help: "Arm selections made by the decision loop",
		},
		[]string{"arm"},
	)

	signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_signals_total",
			Help: "Signals emitted by strategy arms",
		},
		[]string{"arm"},
	)

	rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_rejections_total",
			Help: "Risk gate rejections by reason code",
		},
		[]string{"reason"},
	)

	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_exits_total",
			Help: "Position exit slices by reason code",
		},
		[]string{"reason"},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Open and partially closed positions",
		},
	)

	equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_equity_usd",
			Help: "Capital ledger equity at cost",
		},
	)

	breakerArmed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_circuit_breaker_armed",
			Help: "1 while the circuit breaker is armed, 0 when tripped",
		},
	)

	apiRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_api_retries_total",
			Help: "Retry attempts against the external data/order API",
		},
	)

	snapshotAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_snapshot_age_seconds",
			Help: "Age of the cached market snapshot",
		},
	)
)

func init() {
	prometheus.MustRegister(decisions, signals, rejections, exits)
	prometheus.MustRegister(openPositions, equity, breakerArmed, apiRetries, snapshotAge)
}

func IncDecision(arm string)          { decisions.WithLabelValues(arm).Inc() }
func IncSignal(arm string)            { signals.WithLabelValues(arm).Inc() }
func IncRejection(reason string)      { rejections.WithLabelValues(reason).Inc() }
func IncExit(reason string)           { exits.WithLabelValues(reason).Inc() }
func SetOpenPositions(n int)          { openPositions.Set(float64(n)) }
func SetEquity(v float64)             { equity.Set(v) }
func SetBreakerArmed(armed bool)      { breakerArmed.Set(b2f(armed)) }
func IncAPIRetry()                    { apiRetries.Inc() }
func SetSnapshotAgeSeconds(v float64) { snapshotAge.Set(v) }

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
