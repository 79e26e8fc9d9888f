package lease

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/podlease/pkg/log"
	"github.com/cuemby/podlease/pkg/storage"
	"github.com/cuemby/podlease/pkg/types"
)

// Manager is the single writer for lease state, grounded on the
// teacher's FSM: one exclusive lock around every mutation, one
// method per operation, with a durable store behind an
// in-memory cache readers can snapshot without touching disk.
type Manager struct {
	mu     sync.Mutex
	store  storage.Store
	leases map[int64]*types.Lease
	logger zerolog.Logger
}

// NewManager builds a Manager and loads any leases already persisted
// from a previous run.
func NewManager(store storage.Store) (*Manager, error) {
	existing, err := store.ListLeases()
	if err != nil {
		return nil, fmt.Errorf("failed to load leases: %w", err)
	}

	leases := make(map[int64]*types.Lease, len(existing))
	for _, l := range existing {
		lease := l
		leases[lease.WorkloadID] = lease
	}

	return &Manager{
		store:  store,
		leases: leases,
		logger: log.WithComponent("lease-manager"),
	}, nil
}

// Create inserts a new ACTIVE lease. Fails if workload_id is already in
// use, preserving the "at most one Lease per workload_id" invariant.
func (m *Manager) Create(l *types.Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.leases[l.WorkloadID]; exists {
		return fmt.Errorf("lease for workload %d already exists", l.WorkloadID)
	}

	if err := m.store.PutLease(l); err != nil {
		return fmt.Errorf("failed to persist lease: %w", err)
	}

	m.leases[l.WorkloadID] = l
	return nil
}

// Get returns a snapshot copy of the lease for workloadID, if any.
func (m *Manager) Get(workloadID int64) (*types.Lease, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leases[workloadID]
	if !ok {
		return nil, false
	}
	snapshot := *l
	return &snapshot, true
}

// GetByOwner finds the (at most one, by convention) lease owned by
// ownerIdentifier, used to resolve status requests whose pod_id does not
// name a known workload id, by the requester's own identifier.
func (m *Manager) GetByOwner(ownerIdentifier string) (*types.Lease, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.leases {
		if l.OwnerIdentifier == ownerIdentifier {
			snapshot := *l
			return &snapshot, true
		}
	}
	return nil, false
}

// Topup extends a lease's expires_at by addSeconds and persists the
// change. Returns the updated lease.
func (m *Manager) Topup(workloadID int64, addSeconds int64) (*types.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leases[workloadID]
	if !ok {
		return nil, fmt.Errorf("no lease for workload %d", workloadID)
	}

	l.ExpiresAt = l.ExpiresAt.Add(time.Duration(addSeconds) * time.Second)
	l.DurationSeconds += addSeconds

	if err := m.store.PutLease(l); err != nil {
		return nil, fmt.Errorf("failed to persist topup: %w", err)
	}

	snapshot := *l
	return &snapshot, nil
}

// Delete removes a lease from the registry and the store. Idempotent.
func (m *Manager) Delete(workloadID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.leases, workloadID)
	if err := m.store.DeleteLease(workloadID); err != nil {
		return fmt.Errorf("failed to delete lease: %w", err)
	}
	return nil
}

// State derives a lease's externally visible status: ACTIVE maps to
// Running, RECLAIMING maps to Expired — the reclaimer's eventual
// cleanup is an internal detail a StatusRequest doesn't need to
// distinguish.
func State(l *types.Lease, now time.Time) types.LeaseStatus {
	if now.Before(l.ExpiresAt) {
		return types.LeaseStatusRunning
	}
	return types.LeaseStatusExpired
}

// ExpiredIDs atomically snapshots the workload ids whose lease has
// expired as of now, for the reclaimer to process outside the lock.
func (m *Manager) ExpiredIDs(now time.Time) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int64
	for id, l := range m.leases {
		if !now.Before(l.ExpiresAt) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Count returns the number of leases currently tracked.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leases)
}

// All returns a snapshot copy of every tracked lease, used by the
// heartbeat publisher to derive currently-committed resources.
func (m *Manager) All() []*types.Lease {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.Lease, 0, len(m.leases))
	for _, l := range m.leases {
		snapshot := *l
		out = append(out, &snapshot)
	}
	return out
}
