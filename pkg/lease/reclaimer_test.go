package lease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/podlease/pkg/backend"
	"github.com/cuemby/podlease/pkg/network"
)

type fakeBackend struct {
	mu      sync.Mutex
	stopped map[int64]bool
	deleted map[int64]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{stopped: make(map[int64]bool), deleted: make(map[int64]bool)}
}

func (b *fakeBackend) FindAvailableID(ctx context.Context, lo, hi int64) (int64, error) {
	return lo, nil
}
func (b *fakeBackend) CreateContainer(ctx context.Context, cfg backend.ContainerConfig) error {
	return nil
}
func (b *fakeBackend) StartContainer(ctx context.Context, id int64) error { return nil }
func (b *fakeBackend) StopContainer(ctx context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped[id] = true
	return nil
}
func (b *fakeBackend) DeleteContainer(ctx context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted[id] = true
	return nil
}
func (b *fakeBackend) GetNodeStatus(ctx context.Context) (backend.NodeStatus, error) {
	return backend.NodeStatus{}, nil
}
func (b *fakeBackend) GetContainerIP(ctx context.Context, id int64) (string, error) {
	return "127.0.0.1", nil
}

func TestReclaimerSweepsExpiredLease(t *testing.T) {
	m := newTestManager(t)

	l := testLease(1)
	l.ExpiresAt = time.Now().Add(-time.Second)
	l.HostPort = 30005
	if err := m.Create(l); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	be := newFakeBackend()
	allocator := network.NewAllocator(30000, 30010)
	stats := NewStats()

	r := NewReclaimer(m, be, allocator, stats, time.Hour)
	r.sweep()

	if !be.stopped[1] || !be.deleted[1] {
		t.Error("sweep() did not stop/delete the expired workload")
	}
	if _, ok := m.Get(1); ok {
		t.Error("sweep() did not remove the lease from the manager")
	}
	if stats.TotalJobsCompleted() != 1 {
		t.Errorf("TotalJobsCompleted() = %d, want 1", stats.TotalJobsCompleted())
	}
}

func TestReclaimerLeavesActiveLeaseAlone(t *testing.T) {
	m := newTestManager(t)
	m.Create(testLease(2)) // expires two minutes from now

	be := newFakeBackend()
	allocator := network.NewAllocator(30000, 30010)
	stats := NewStats()

	r := NewReclaimer(m, be, allocator, stats, time.Hour)
	r.sweep()

	if be.stopped[2] || be.deleted[2] {
		t.Error("sweep() touched an active lease")
	}
	if _, ok := m.Get(2); !ok {
		t.Error("sweep() removed an active lease")
	}
}

func TestReclaimerIsIdempotentForAlreadyReclaimedLease(t *testing.T) {
	m := newTestManager(t)
	l := testLease(3)
	l.ExpiresAt = time.Now().Add(-time.Minute)
	m.Create(l)

	be := newFakeBackend()
	allocator := network.NewAllocator(30000, 30010)
	stats := NewStats()

	r := NewReclaimer(m, be, allocator, stats, time.Hour)

	if err := r.reclaim(3); err != nil {
		t.Fatalf("reclaim() error = %v", err)
	}
	// Reclaiming an already-gone workload must not error.
	if err := r.reclaim(3); err != nil {
		t.Errorf("reclaim() of already-reclaimed workload error = %v, want nil", err)
	}
}

func TestReclaimerStartStop(t *testing.T) {
	m := newTestManager(t)
	be := newFakeBackend()
	allocator := network.NewAllocator(30000, 30010)
	stats := NewStats()

	r := NewReclaimer(m, be, allocator, stats, 10*time.Millisecond)
	r.Start()
	time.Sleep(30 * time.Millisecond)
	r.Stop()
}
