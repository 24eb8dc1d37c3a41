package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rental sources.
const (
	SourceReused = "reused"
	SourceMinted = "minted"
)

// Deposit outcomes.
const (
	OutcomeSettled  = "settled"
	OutcomeStranded = "stranded"
	OutcomeRejected = "rejected"
	OutcomeRaceLost = "race_lost"
)

// Lease closure paths.
const (
	PathSettlement = "settlement"
	PathExpiry     = "expiry"
	PathSweep      = "sweep"
)

var (
	rentalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultrent_rentals_total",
			Help: "Total wallet rentals labeled by wallet source",
		},
		[]string{"source"},
	)
	depositsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultrent_deposits_total",
			Help: "Total deposits labeled by reconciliation outcome",
		},
		[]string{"outcome"},
	)
	leaseClosuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultrent_lease_closures_total",
			Help: "Total lease closures labeled by closing path",
		},
		[]string{"path"},
	)
	inconsistenciesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultrent_store_inconsistencies_total",
			Help: "Detected mismatches between the ledger and identity stores",
		},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaultrent_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// RecordRental counts a granted lease.
func RecordRental(source string) {
	if source == "" {
		source = "unknown"
	}
	rentalsTotal.WithLabelValues(source).Inc()
}

// RecordDeposit counts a deposit by its reconciliation outcome.
func RecordDeposit(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	depositsTotal.WithLabelValues(outcome).Inc()
}

// RecordLeaseClosure counts a lease close by the path that won it.
func RecordLeaseClosure(path string) {
	if path == "" {
		path = "unknown"
	}
	leaseClosuresTotal.WithLabelValues(path).Inc()
}

// RecordInconsistency counts a detected cross-store mismatch.
func RecordInconsistency() {
	inconsistenciesTotal.Inc()
}

// RecordHTTPRequest observes one served request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}
