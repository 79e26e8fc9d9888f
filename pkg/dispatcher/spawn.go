package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/podlease/pkg/backend"
	"github.com/cuemby/podlease/pkg/lease"
	"github.com/cuemby/podlease/pkg/types"
)

// handleSpawn runs the full spawn sequence: resolve
// tier, verify payment, allocate id/port, create the container, persist
// the lease, and respond with AccessDetails. Any failure after a
// resource is claimed runs the matching compensation before returning.
func (d *Dispatcher) handleSpawn(ctx context.Context, senderNpub string, req *types.SpawnRequest) {
	tier, err := resolveTier(d.cfg.Specs, req.PodSpecID)
	if err != nil {
		kind := types.ErrTierNotFound
		if req.PodSpecID == nil {
			kind = types.ErrNoSpecs
		}
		d.sendError(ctx, senderNpub, kind, err.Error())
		return
	}

	requiredMsats := tier.RateMsatsPerSec * d.minimumDurationSeconds()
	amountMsats, err := d.decoder.Redeem(req.CashuToken, requiredMsats)
	if err != nil {
		d.sendTypedError(ctx, senderNpub, err)
		return
	}

	durationSeconds := lease.ComputeDuration(amountMsats, tier.RateMsatsPerSec)
	if durationSeconds < d.minimumDurationSeconds() {
		d.sendError(ctx, senderNpub, types.ErrInsufficientPayment,
			fmt.Sprintf("payment buys %ds, need at least %ds", durationSeconds, d.minimumDurationSeconds()))
		return
	}

	workloadID, err := d.backend.FindAvailableID(ctx, d.cfg.IDRangeLo, d.cfg.IDRangeHi)
	if err != nil {
		d.sendError(ctx, senderNpub, types.ErrProvisioningError, err.Error())
		return
	}

	hostPort, err := d.alloc.Allocate()
	if err != nil {
		d.sendError(ctx, senderNpub, types.ErrProvisioningError, err.Error())
		return
	}

	createErr := d.backend.CreateContainer(ctx, backend.ContainerConfig{
		ID:        workloadID,
		Name:      fmt.Sprintf("workload-%d", workloadID),
		Image:     req.PodImage,
		CPUCores:  float64(tier.CPUMillicores) / 1000,
		MemoryMB:  tier.MemoryMB,
		ShellUser: req.SSHUsername,
		Password:  req.SSHPassword,
		HostPort:  &hostPort,
	})
	if createErr != nil {
		d.alloc.Release(hostPort)
		d.sendError(ctx, senderNpub, types.ErrProvisioningError, createErr.Error())
		return
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(durationSeconds) * time.Second)

	l := &types.Lease{
		WorkloadID:      workloadID,
		TierID:          tier.ID,
		CreatedAt:       now,
		ExpiresAt:       expiresAt,
		OwnerIdentifier: senderNpub,
		HostPort:        hostPort,
		ShellUser:       req.SSHUsername,
		ShellPassword:   req.SSHPassword,
		DurationSeconds: durationSeconds,
		PaymentMsats:    amountMsats,
	}

	if err := d.leases.Create(l); err != nil {
		_ = d.backend.DeleteContainer(ctx, workloadID)
		d.alloc.Release(hostPort)
		d.sendError(ctx, senderNpub, types.ErrBackendError, err.Error())
		return
	}

	d.send(ctx, senderNpub, types.AccessDetails{
		PodNpub:            fmt.Sprintf("%d", workloadID),
		NodePort:           hostPort,
		ExpiresAt:          expiresAt.Format(time.RFC3339),
		CPUMillicores:      tier.CPUMillicores,
		MemoryMB:           tier.MemoryMB,
		PodSpecName:        tier.Name,
		PodSpecDescription: tier.Description,
		Instructions:       d.cfg.Instructions,
	}, "ok")
}

func (d *Dispatcher) minimumDurationSeconds() int64 {
	if d.cfg.MinimumDurationSeconds > 0 {
		return d.cfg.MinimumDurationSeconds
	}
	return lease.DefaultMinimumDurationSeconds
}
