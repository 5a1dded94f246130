package metrics

import (
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// Escrow Prometheus metrics. Amount gauges are float approximations of 256-bit values.
var (
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Escrow operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Escrow operation duration including the asset transfer",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"operation"},
	)

	TotalDeposits = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "total_deposits",
		Help:      "Sum of all depositor balances",
	})

	Depositors = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "depositors",
		Help:      "Number of depositors with a non-zero balance",
	})

	AccruedBudget = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "accrued_budget",
		Help:      "Agent draw budget as of the last accrual",
	})

	ProjectedBudget = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "projected_budget",
		Help:      "Agent draw budget if accrued now",
	})

	PoolBalance = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_balance",
		Help:      "Asset balance held by the escrow pool",
	})

	CheckpointsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "State checkpoints by status",
		},
		[]string{"status"}, // "ok" / "error"
	)
)

var escrowMetricsRegistered bool

// RegisterEscrowMetrics registers the escrow metrics. Must be called once from main.
func RegisterEscrowMetrics() {
	if escrowMetricsRegistered {
		return
	}
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(TotalDeposits)
	prometheus.MustRegister(Depositors)
	prometheus.MustRegister(AccruedBudget)
	prometheus.MustRegister(ProjectedBudget)
	prometheus.MustRegister(PoolBalance)
	prometheus.MustRegister(CheckpointsTotal)
	escrowMetricsRegistered = true
}

// ObserveOperation counts one operation and its latency.
func ObserveOperation(operation, outcome string, elapsed time.Duration) {
	OperationsTotal.WithLabelValues(operation, outcome).Inc()
	OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// SetAmount sets g to v. A nil v leaves g untouched.
func SetAmount(g prometheus.Gauge, v *uint256.Int) {
	if v == nil {
		return
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	g.Set(f)
}
