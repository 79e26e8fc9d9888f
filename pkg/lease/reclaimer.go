package lease

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/podlease/pkg/backend"
	"github.com/cuemby/podlease/pkg/log"
	"github.com/cuemby/podlease/pkg/metrics"
	"github.com/cuemby/podlease/pkg/network"
)

// DefaultReclaimPeriod is the recommended reclaimer tick.
const DefaultReclaimPeriod = 30 * time.Second

// Reclaimer is the third of the Provider's three long-lived tasks: on
// a fixed period, snapshot expired lease ids and stop, delete, release
// and deregister each one, using a ticker/stopCh loop.
type Reclaimer struct {
	manager   *Manager
	backend   backend.Backend
	allocator *network.Allocator
	stats     *Stats
	period    time.Duration
	logger    zerolog.Logger

	stopCh chan struct{}
}

// NewReclaimer builds a Reclaimer over manager, backend and allocator,
// ticking at period (DefaultReclaimPeriod if zero).
func NewReclaimer(manager *Manager, be backend.Backend, allocator *network.Allocator, stats *Stats, period time.Duration) *Reclaimer {
	if period <= 0 {
		period = DefaultReclaimPeriod
	}
	return &Reclaimer{
		manager:   manager,
		backend:   be,
		allocator: allocator,
		stats:     stats,
		period:    period,
		logger:    log.WithComponent("reclaimer"),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the reclaimer loop in a new goroutine.
func (r *Reclaimer) Start() {
	go r.run()
}

// Stop halts the reclaimer loop.
func (r *Reclaimer) Stop() {
	close(r.stopCh)
}

func (r *Reclaimer) run() {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

// sweep reclaims every lease expired as of now. Each reclamation is
// independent: one failure does not block the rest of the batch.
func (r *Reclaimer) sweep() {
	expired := r.manager.ExpiredIDs(time.Now())
	for _, id := range expired {
		if err := r.reclaim(id); err != nil {
			r.logger.Error().Int64("workload_id", id).Err(err).Msg("failed to reclaim lease")
		}
	}
}

// reclaim is idempotent: a backend reporting "already stopped/deleted"
// is treated as success.
func (r *Reclaimer) reclaim(workloadID int64) error {
	l, ok := r.manager.Get(workloadID)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	if err := r.backend.StopContainer(ctx, workloadID); err != nil {
		r.logger.Warn().Int64("workload_id", workloadID).Err(err).Msg("stop failed during reclamation, continuing")
	}
	if err := r.backend.DeleteContainer(ctx, workloadID); err != nil {
		r.logger.Warn().Int64("workload_id", workloadID).Err(err).Msg("delete failed during reclamation, continuing")
	}

	r.allocator.Release(l.HostPort)

	if err := r.manager.Delete(workloadID); err != nil {
		return err
	}

	r.stats.IncrementJobsCompleted()
	metrics.ReclaimsTotal.Inc()
	r.logger.Info().Int64("workload_id", workloadID).Msg("reclaimed expired lease")
	return nil
}
