package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Lease metrics
	LeasesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "podlease_leases_active",
			Help: "Number of leases currently tracked by this provider",
		},
	)

	LeasesByTier = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "podlease_leases_by_tier",
			Help: "Number of active leases by tier id",
		},
		[]string{"tier_id"},
	)

	JobsCompletedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "podlease_jobs_completed_total",
			Help: "Total number of leases reclaimed since provider start",
		},
	)

	// Port allocator metrics
	PortAllocationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "podlease_port_allocations_total",
			Help: "Total number of host ports successfully allocated",
		},
	)

	PortAllocationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "podlease_port_allocation_failures_total",
			Help: "Total number of port allocation attempts that found no free port",
		},
	)

	PortsAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "podlease_ports_available",
			Help: "Number of ports in this provider's configured range not currently allocated",
		},
	)

	// Payment metrics
	RedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podlease_redemptions_total",
			Help: "Total number of cashu token redemption attempts by outcome",
		},
		[]string{"outcome"}, // "ok", "insufficient_payment", "token_already_used", "mint_not_whitelisted", "invalid_token"
	)

	RedemptionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "podlease_redemption_duration_seconds",
			Help:    "Time taken to verify and redeem a cashu token, in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Backend metrics
	ContainerCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "podlease_container_create_duration_seconds",
			Help:    "Time taken to create a workload container in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContainerOperationsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podlease_container_operations_failed_total",
			Help: "Total number of failed backend operations by operation name",
		},
		[]string{"operation"}, // "create", "start", "stop", "delete"
	)

	ReclaimsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "podlease_reclaims_total",
			Help: "Total number of expired leases reclaimed",
		},
	)

	// Request dispatcher metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podlease_requests_total",
			Help: "Total number of dispatched requests by kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: "spawn"/"topup"/"status"; outcome: "ok" or an error_type
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "podlease_request_duration_seconds",
			Help:    "Time taken to handle a dispatched request, by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(LeasesActive)
	prometheus.MustRegister(LeasesByTier)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(PortAllocationsTotal)
	prometheus.MustRegister(PortAllocationFailuresTotal)
	prometheus.MustRegister(PortsAvailable)
	prometheus.MustRegister(RedemptionsTotal)
	prometheus.MustRegister(RedemptionDuration)
	prometheus.MustRegister(ContainerCreateDuration)
	prometheus.MustRegister(ContainerOperationsFailed)
	prometheus.MustRegister(ReclaimsTotal)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
