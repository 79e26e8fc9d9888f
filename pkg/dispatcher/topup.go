package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cuemby/podlease/pkg/lease"
	"github.com/cuemby/podlease/pkg/types"
)

// handleTopup extends an existing lease by the duration its payment
// buys at the lease's original tier rate.
func (d *Dispatcher) handleTopup(ctx context.Context, senderNpub string, req *types.TopupRequest) {
	workloadID, err := strconv.ParseInt(req.PodNpub, 10, 64)
	if err != nil {
		d.sendError(ctx, senderNpub, types.ErrInvalidRequest, "pod_npub must be a workload id")
		return
	}

	l, ok := d.leases.Get(workloadID)
	if !ok {
		d.sendError(ctx, senderNpub, types.ErrNotFound, fmt.Sprintf("no lease for workload %d", workloadID))
		return
	}
	if l.OwnerIdentifier != senderNpub {
		d.sendError(ctx, senderNpub, types.ErrNotFound, "not the owner of this lease")
		return
	}

	tier, err := resolveTier(d.cfg.Specs, &l.TierID)
	if err != nil {
		d.sendError(ctx, senderNpub, types.ErrTierNotFound, err.Error())
		return
	}

	requiredMsats := tier.RateMsatsPerSec // Δ must be at least 1 second
	amountMsats, err := d.decoder.Redeem(req.CashuToken, requiredMsats)
	if err != nil {
		d.sendTypedError(ctx, senderNpub, err)
		return
	}

	delta := lease.ComputeDuration(amountMsats, tier.RateMsatsPerSec)
	if delta < 1 {
		d.sendError(ctx, senderNpub, types.ErrInsufficientPayment, "payment buys less than 1 additional second")
		return
	}

	updated, err := d.leases.Topup(workloadID, delta)
	if err != nil {
		d.sendError(ctx, senderNpub, types.ErrBackendError, err.Error())
		return
	}

	d.send(ctx, senderNpub, types.TopupResponse{
		WorkloadID:   workloadID,
		ExpiresAt:    updated.ExpiresAt.Format(time.RFC3339),
		AddedSeconds: delta,
	}, "ok")
}
