package dispatcher

import (
	"context"
	"strconv"
	"time"

	"github.com/cuemby/podlease/pkg/lease"
	"github.com/cuemby/podlease/pkg/types"
)

// handleStatus locates a lease by numeric id, falling back to an
// owner match, and replies with its current projection.
func (d *Dispatcher) handleStatus(ctx context.Context, senderNpub string, req *types.StatusRequest) {
	l, ok := d.lookupLease(req.PodID, senderNpub)
	if !ok {
		d.sendError(ctx, senderNpub, types.ErrNotFound, "no matching lease")
		return
	}

	tier, err := resolveTier(d.cfg.Specs, &l.TierID)
	if err != nil {
		d.sendError(ctx, senderNpub, types.ErrTierNotFound, err.Error())
		return
	}

	now := time.Now()
	remaining := int64(l.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}

	d.send(ctx, senderNpub, types.StatusResponse{
		WorkloadID:           l.WorkloadID,
		Status:               lease.State(l, now),
		ExpiresAt:            l.ExpiresAt.Format(time.RFC3339),
		TimeRemainingSeconds: remaining,
		CPUMillicores:        tier.CPUMillicores,
		MemoryMB:             tier.MemoryMB,
		Host:                 d.cfg.Hostname,
		Port:                 l.HostPort,
		User:                 l.ShellUser,
	}, "ok")
}

func (d *Dispatcher) lookupLease(podID, requesterNpub string) (*types.Lease, bool) {
	if id, err := strconv.ParseInt(podID, 10, 64); err == nil {
		if l, ok := d.leases.Get(id); ok {
			return l, true
		}
	}
	return d.leases.GetByOwner(requesterNpub)
}
