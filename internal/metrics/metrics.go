package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"msigwallet/client/internal/errs"
)

var contractCalls = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "msigd_contract_calls_total",
		Help: "Contract calls by method, call kind and classified result.",
	},
	[]string{
		"method",
		"kind",
		"result",
	},
)

var refreshDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "msigd_refresh_duration_seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"result"},
)

var cachedTransactions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "msigd_cached_transactions",
	},
)

var operationsInFlight = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "msigd_operations_in_flight",
	},
)

func ContractCall(method, kind string, err error) {
	contractCalls.With(map[string]string{"method": method, "kind": kind, "result": errs.Kind(err)}).Inc()
}

func RefreshDone(started time.Time, txCount int, err error) {
	refreshDuration.With(map[string]string{"result": errs.Kind(err)}).Observe(time.Since(started).Seconds())
	if err == nil {
		cachedTransactions.Set(float64(txCount))
	}
}

func OperationStarted() {
	operationsInFlight.Inc()
}

func OperationSettled() {
	operationsInFlight.Dec()
}
