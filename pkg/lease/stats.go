package lease

import (
	"sync/atomic"
	"time"
)

// Stats tracks the Provider-wide counters a published Offer/Heartbeat
// reports: how many leases have been fully served, and how long the
// process has been up (for the uptime_percent calculation, which lives
// with whoever computes availability windows — this package only owns
// the raw counters).
type Stats struct {
	totalJobsCompleted int64
	uptimeStart        time.Time
}

// NewStats starts the uptime clock at construction time.
func NewStats() *Stats {
	return &Stats{uptimeStart: time.Now()}
}

// IncrementJobsCompleted records one more fully-reclaimed lease.
func (s *Stats) IncrementJobsCompleted() {
	atomic.AddInt64(&s.totalJobsCompleted, 1)
}

// TotalJobsCompleted returns the running total.
func (s *Stats) TotalJobsCompleted() int64 {
	return atomic.LoadInt64(&s.totalJobsCompleted)
}

// Uptime returns how long this process has been running.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.uptimeStart)
}
