package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	reconciledOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciled_orders_total",
		Help: "Orders reconciled against a settlement, by outcome",
	}, []string{
		"platform", // marketplace
		"severity", // NONE for matches, LOW..CRITICAL for mismatches
	})

	reconciliationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_failures_total",
		Help: "Orders that could not be reconciled, by failure kind",
	}, []string{"platform", "kind"})

	payoutDeltaAbs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "payout_delta_abs",
		Help: "Absolute difference between expected and actual payout, in currency units",
		// 1 rupee to 10k
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 10000},
	}, []string{"platform"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciliation_batch_duration_seconds",
		Help:    "Time to reconcile one batch of orders",
		Buckets: prometheus.DefBuckets,
	})

	batchOrders = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciliation_batch_orders",
		Help:    "Orders per reconciliation batch",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	ingestedRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingested_records_total",
		Help: "Records stored from uploaded files",
	}, []string{"kind"})
)

// RecordResult counts one reconciled order and observes its delta.
func RecordResult(platform, severity string, delta decimal.Decimal) {
	reconciledOrdersTotal.WithLabelValues(platform, severity).Inc()
	f, _ := delta.Abs().Float64()
	payoutDeltaAbs.WithLabelValues(platform).Observe(f)
}

func RecordFailure(platform, kind string) {
	reconciliationFailuresTotal.WithLabelValues(platform, kind).Inc()
}

func RecordBatch(orders int, elapsed time.Duration) {
	batchOrders.Observe(float64(orders))
	batchDuration.Observe(elapsed.Seconds())
}

func RecordIngest(kind string, records int) {
	ingestedRecordsTotal.WithLabelValues(kind).Add(float64(records))
}

// Handler serves the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
