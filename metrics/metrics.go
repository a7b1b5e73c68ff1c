// Package metrics exposes the Prometheus collectors of the custodial wallet
// backend and the server that serves them.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type custodyMetrics struct {
	ledgerSubmissions *prometheus.CounterVec
	ledgerRetries     *prometheus.CounterVec
	ledgerLatency     *prometheus.HistogramVec
	provisioning      *prometheus.CounterVec
	reconciliations   *prometheus.CounterVec
	rewards           *prometheus.CounterVec
	folders           *prometheus.CounterVec
}

var (
	registryOnce sync.Once
	registry     *prometheus.Registry
	collected    *custodyMetrics
)

func get() *custodyMetrics {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		collected = &custodyMetrics{
			ledgerSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "ledger",
				Name:      "submissions_total",
				Help:      "Ledger transactions by kind and final outcome.",
			}, []string{"kind", "outcome"}),
			ledgerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "ledger",
				Name:      "retries_total",
				Help:      "Ledger retries after transient failures, by kind.",
			}, []string{"kind"}),
			ledgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "custody",
				Subsystem: "ledger",
				Name:      "submit_duration_seconds",
				Help:      "Time from first submission to receipt.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
			}, []string{"kind"}),
			provisioning: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "wallet",
				Name:      "provisioning_total",
				Help:      "Wallet provisioning calls by outcome.",
			}, []string{"outcome"}),
			reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "wallet",
				Name:      "reconciliations_total",
				Help:      "Wallet reconciliations by outcome.",
			}, []string{"outcome"}),
			rewards: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "rewards",
				Name:      "issued_total",
				Help:      "Rewards issued by event type.",
			}, []string{"event_type"}),
			folders: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "assets",
				Name:      "folders_total",
				Help:      "Folder NFTs minted by outcome.",
			}, []string{"outcome"}),
		}
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collected.ledgerSubmissions,
			collected.ledgerRetries,
			collected.ledgerLatency,
			collected.provisioning,
			collected.reconciliations,
			collected.rewards,
			collected.folders,
		)
	})
	return collected
}

// LedgerSubmission records the final outcome of an orchestrated transaction.
func LedgerSubmission(kind, outcome string, duration time.Duration) {
	m := get()
	m.ledgerSubmissions.WithLabelValues(kind, outcome).Inc()
	m.ledgerLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// LedgerRetry records one retry.
func LedgerRetry(kind string) {
	get().ledgerRetries.WithLabelValues(kind).Inc()
}

// Provisioning records a provisioning outcome.
func Provisioning(outcome string) {
	get().provisioning.WithLabelValues(outcome).Inc()
}

// Reconciliation records a reconciliation outcome.
func Reconciliation(outcome string) {
	get().reconciliations.WithLabelValues(outcome).Inc()
}

// RewardIssued records an issued reward.
func RewardIssued(eventType string) {
	get().rewards.WithLabelValues(eventType).Inc()
}

// FolderMinted records a folder mint outcome.
func FolderMinted(outcome string) {
	get().folders.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	get()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// MetricsServer serves /metrics on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr.
func New(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
