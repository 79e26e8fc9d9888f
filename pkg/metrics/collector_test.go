package metrics

import (
	"testing"
	"time"

	"github.com/cuemby/podlease/pkg/lease"
	"github.com/cuemby/podlease/pkg/network"
	"github.com/cuemby/podlease/pkg/storage"
	"github.com/cuemby/podlease/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestLeaseManager(t *testing.T) *lease.Manager {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	m, err := lease.NewManager(store)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func testLease(id int64, tier string) *types.Lease {
	now := time.Now()
	return &types.Lease{
		WorkloadID:      id,
		TierID:          tier,
		CreatedAt:       now,
		ExpiresAt:       now.Add(2 * time.Minute),
		OwnerIdentifier: "client-npub",
		HostPort:        30000 + int(id),
		DurationSeconds: 120,
		PaymentMsats:    6000,
	}
}

func TestCollectLeaseMetrics(t *testing.T) {
	m := newTestLeaseManager(t)
	if err := m.Create(testLease(1, "small")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := m.Create(testLease(2, "small")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := m.Create(testLease(3, "large")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	stats := lease.NewStats()
	stats.IncrementJobsCompleted()
	stats.IncrementJobsCompleted()

	alloc := network.NewAllocator(32000, 32009)

	c := NewCollector(m, stats, alloc)
	c.collect()

	if got := testutil.ToFloat64(LeasesActive); got != 3 {
		t.Errorf("LeasesActive = %v, want 3", got)
	}
	if got := testutil.ToFloat64(JobsCompletedTotal); got != 2 {
		t.Errorf("JobsCompletedTotal = %v, want 2", got)
	}
	if got := testutil.ToFloat64(LeasesByTier.WithLabelValues("small")); got != 2 {
		t.Errorf("LeasesByTier(small) = %v, want 2", got)
	}
	if got := testutil.ToFloat64(LeasesByTier.WithLabelValues("large")); got != 1 {
		t.Errorf("LeasesByTier(large) = %v, want 1", got)
	}
}

func TestCollectPortMetrics(t *testing.T) {
	m := newTestLeaseManager(t)
	stats := lease.NewStats()
	alloc := network.NewAllocator(33000, 33009)

	if _, err := alloc.Allocate(); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	c := NewCollector(m, stats, alloc)
	c.collect()

	if got := testutil.ToFloat64(PortsAvailable); got != 9 {
		t.Errorf("PortsAvailable = %v, want 9", got)
	}
}

func TestCollectorStartStop(t *testing.T) {
	m := newTestLeaseManager(t)
	stats := lease.NewStats()
	alloc := network.NewAllocator(34000, 34009)

	c := NewCollector(m, stats, alloc)
	c.Start()
	c.Stop()
}
