package metrics

import (
	"time"

	"github.com/cuemby/podlease/pkg/types"
)

// LeaseLister is the slice of *lease.Manager the Collector needs. A
// narrow interface so this package doesn't import pkg/lease, which
// itself imports pkg/metrics to record podlease_reclaims_total.
type LeaseLister interface {
	All() []*types.Lease
}

// JobStats is the slice of *lease.Stats the Collector needs.
type JobStats interface {
	TotalJobsCompleted() int64
}

// PortSource is the slice of *network.Allocator the Collector needs. A
// narrow interface so this package doesn't import pkg/network, which
// itself imports pkg/metrics to record the port allocation counters.
type PortSource interface {
	Available() int
}

// Collector periodically samples a Provider's lease manager and port
// allocator into the package's prometheus metrics. Grounded on the
// teacher's ticker-driven collect loop, resampled against podlease's
// own domain objects instead of a cluster Manager.
type Collector struct {
	leases LeaseLister
	stats  JobStats
	alloc  PortSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(leases LeaseLister, stats JobStats, alloc PortSource) *Collector {
	return &Collector{
		leases: leases,
		stats:  stats,
		alloc:  alloc,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectLeaseMetrics()
	c.collectPortMetrics()
}

func (c *Collector) collectLeaseMetrics() {
	all := c.leases.All()
	LeasesActive.Set(float64(len(all)))
	JobsCompletedTotal.Set(float64(c.stats.TotalJobsCompleted()))

	byTier := make(map[string]int)
	for _, l := range all {
		byTier[l.TierID]++
	}
	for tier, count := range byTier {
		LeasesByTier.WithLabelValues(tier).Set(float64(count))
	}
}

func (c *Collector) collectPortMetrics() {
	PortsAvailable.Set(float64(c.alloc.Available()))
}
