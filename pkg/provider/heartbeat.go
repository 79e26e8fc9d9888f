package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuemby/podlease/pkg/relay"
	"github.com/cuemby/podlease/pkg/types"
)

// heartbeatLoop samples available capacity and publishes a Heartbeat
// every interval until ctx is done. Publish failures are logged and
// never stall the loop.
func (p *Provider) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.heartbeatInterval())
	defer ticker.Stop()

	p.publishOffer(ctx)
	p.publishHeartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.publishOffer(ctx)
			p.publishHeartbeat(ctx)
		}
	}
}

func (p *Provider) publishHeartbeat(ctx context.Context) {
	hb := types.Heartbeat{
		ProviderNpub:      p.identity.Npub(),
		Timestamp:         time.Now().Unix(),
		ActiveWorkloads:   p.leases.Count(),
		AvailableCapacity: p.availableCapacity(),
	}

	content, err := json.Marshal(hb)
	if err != nil {
		p.logger.Error().Err(err).Msg("marshaling heartbeat")
		return
	}

	ev := relay.NewEvent(p.identity, relay.KindHeartbeat, nil, string(content), hb.Timestamp)
	if err := p.fabric.Publish(ctx, ev); err != nil {
		p.logger.Warn().Err(err).Msg("publishing heartbeat")
	}
}

// availableCapacity subtracts what every active lease's tier reserves
// from the node's self-declared totals, then clamps the result against
// the backend's live node status so host-level usage outside podlease's
// own bookkeeping (OS overhead, other processes) still narrows what gets
// advertised.
func (p *Provider) availableCapacity() types.AvailableCapacity {
	avail := types.AvailableCapacity{
		CPUAvailable:       p.cfg.TotalCPUMillicores,
		MemoryMBAvailable:  p.cfg.TotalMemoryMB,
		StorageGBAvailable: p.cfg.TotalStorageGB,
	}

	for _, l := range p.leases.All() {
		tier, ok := p.cfg.specByID(l.TierID)
		if !ok {
			continue
		}
		avail.CPUAvailable -= tier.CPUMillicores
		avail.MemoryMBAvailable -= tier.MemoryMB
	}

	if avail.CPUAvailable < 0 {
		avail.CPUAvailable = 0
	}
	if avail.MemoryMBAvailable < 0 {
		avail.MemoryMBAvailable = 0
	}

	p.clampToNodeStatus(&avail)
	return avail
}

// clampToNodeStatus narrows avail using a live sample from the backend,
// never raising it above what the lease-reservation accounting already
// computed. A sampling failure is logged and avail is left untouched,
// per the backend's degraded-zeros allowance.
func (p *Provider) clampToNodeStatus(avail *types.AvailableCapacity) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := p.backend.GetNodeStatus(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("sampling node status")
		return
	}

	if status.MemoryTotal > 0 {
		liveFreeMB := (status.MemoryTotal - status.MemoryUsed) / (1024 * 1024)
		if liveFreeMB < avail.MemoryMBAvailable {
			avail.MemoryMBAvailable = liveFreeMB
		}
	}
	if status.DiskTotal > 0 {
		liveFreeGB := (status.DiskTotal - status.DiskUsed) / (1024 * 1024 * 1024)
		if liveFreeGB < avail.StorageGBAvailable {
			avail.StorageGBAvailable = liveFreeGB
		}
	}
	if status.CPUUsage > 0 {
		liveFreeMillicores := int64(float64(p.cfg.TotalCPUMillicores) * (1 - status.CPUUsage))
		if liveFreeMillicores < avail.CPUAvailable {
			avail.CPUAvailable = liveFreeMillicores
		}
	}

	if avail.MemoryMBAvailable < 0 {
		avail.MemoryMBAvailable = 0
	}
	if avail.StorageGBAvailable < 0 {
		avail.StorageGBAvailable = 0
	}
	if avail.CPUAvailable < 0 {
		avail.CPUAvailable = 0
	}
}
