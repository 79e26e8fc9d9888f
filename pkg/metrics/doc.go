/*
Package metrics provides Prometheus metrics collection and exposition for a
podlease provider process.

The metrics package defines and registers all provider metrics using the
Prometheus client library, giving observability into lease occupancy, port
allocator headroom, payment redemption outcomes, backend container
operations, and dispatched request latency. Metrics are exposed via an HTTP
endpoint for scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (active leases)      │          │
	│  │  Counter: Monotonic increases (redemptions) │          │
	│  │  Histogram: Distributions (request latency) │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Lease: Active leases, leases by tier       │          │
	│  │  Port allocator: Allocations, availability  │          │
	│  │  Payment: Redemption outcomes, duration     │          │
	│  │  Backend: Container op duration, failures   │          │
	│  │  Dispatcher: Requests by kind/outcome       │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Thread-safe for concurrent updates

Collector:
  - Ticker-driven (every 15s), samples pkg/lease.Manager, pkg/lease.Stats
    and pkg/network.Allocator into the gauges below
  - Started/stopped alongside a provider's other long-lived tasks

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Lease Metrics:

podlease_leases_active:
  - Type: Gauge
  - Description: Number of leases currently tracked by this provider
  - Example: podlease_leases_active 4

podlease_leases_by_tier{tier_id}:
  - Type: Gauge
  - Description: Number of active leases by tier id
  - Labels: tier_id
  - Example: podlease_leases_by_tier{tier_id="small"} 3

podlease_jobs_completed_total:
  - Type: Gauge
  - Description: Total number of leases reclaimed since provider start
  - Example: podlease_jobs_completed_total 128

Port Allocator Metrics:

podlease_port_allocations_total:
  - Type: Counter
  - Description: Total number of host ports successfully allocated

podlease_port_allocation_failures_total:
  - Type: Counter
  - Description: Total number of port allocation attempts that found no free port

podlease_ports_available:
  - Type: Gauge
  - Description: Number of ports in this provider's configured range not
    currently allocated

Payment Metrics:

podlease_redemptions_total{outcome}:
  - Type: Counter
  - Description: Total number of cashu token redemption attempts by outcome
  - Labels: outcome ("ok", "insufficient_payment", "token_already_used",
    "mint_not_whitelisted", "invalid_token")

podlease_redemption_duration_seconds:
  - Type: Histogram
  - Description: Time taken to verify and redeem a cashu token, in seconds

Backend Metrics:

podlease_container_create_duration_seconds:
  - Type: Histogram
  - Description: Time taken to create a workload container in seconds

podlease_container_operations_failed_total{operation}:
  - Type: Counter
  - Description: Total number of failed backend operations by operation name
  - Labels: operation ("create", "start", "stop", "delete")

podlease_reclaims_total:
  - Type: Counter
  - Description: Total number of expired leases reclaimed

Dispatcher Metrics:

podlease_requests_total{kind,outcome}:
  - Type: Counter
  - Description: Total number of dispatched requests by kind and outcome
  - Labels: kind ("spawn"/"topup"/"status"), outcome ("ok" or an error kind)

podlease_request_duration_seconds{kind}:
  - Type: Histogram
  - Description: Time taken to handle a dispatched request, by kind

# Usage

Updating Gauge Metrics:

	import "github.com/cuemby/podlease/pkg/metrics"

	metrics.LeasesByTier.WithLabelValues("small").Set(3)
	metrics.LeasesActive.Set(4)

Updating Counter Metrics:

	metrics.ReclaimsTotal.Inc()
	metrics.RedemptionsTotal.WithLabelValues("ok").Inc()

Recording Histogram Observations:

	timer := metrics.NewTimer()
	// ... redeem token ...
	timer.ObserveDuration(metrics.RedemptionDuration)

Using Timer with Labels:

	timer := metrics.NewTimer()
	// ... handle request ...
	timer.ObserveDurationVec(metrics.RequestDuration, "spawn")

Complete Example:

	package main

	import (
		"net/http"

		"github.com/cuemby/podlease/pkg/lease"
		"github.com/cuemby/podlease/pkg/metrics"
		"github.com/cuemby/podlease/pkg/network"
	)

	func main() {
		collector := metrics.NewCollector(leaseManager, leaseStats, allocator)
		collector.Start()
		defer collector.Stop()

		http.Handle("/metrics", metrics.Handler())
		http.ListenAndServe(":9090", nil)
	}

# Integration Points

This package integrates with:

  - pkg/lease: Active lease count and tier breakdown
  - pkg/network: Port allocator headroom
  - pkg/payment: Redemption outcome and duration
  - pkg/backend: Container operation duration and failures
  - pkg/dispatcher: Request count and duration by kind
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels (tier id, request
    kind, outcome) — never a lease id or npub
  - Keep label count low (< 5 per metric)

Timer Pattern:
  - Create timer at operation start
  - Call ObserveDuration/ObserveDurationVec once the operation completes

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
