package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuemby/podlease/pkg/relay"
	"github.com/cuemby/podlease/pkg/types"
)

// publishOffer emits a fresh ProviderOffer. Stat mutations happen on the
// reclaimer's own schedule, so the simplest faithful approximation is
// to republish alongside every heartbeat tick rather than wiring a
// separate change-notification channel.
func (p *Provider) publishOffer(ctx context.Context) {
	offer := types.ProviderOffer{
		ProviderNpub:       p.identity.Npub(),
		Hostname:           p.cfg.Hostname,
		Location:           p.cfg.Location,
		Capabilities:       []string{types.CapabilityContainer},
		Specs:              p.cfg.Specs,
		WhitelistedMints:   p.cfg.WhitelistedMints,
		UptimePercent:      100,
		TotalJobsCompleted: p.stats.TotalJobsCompleted(),
		APIEndpoint:        p.cfg.APIEndpoint,
	}

	content, err := json.Marshal(offer)
	if err != nil {
		p.logger.Error().Err(err).Msg("marshaling offer")
		return
	}

	ev := relay.NewEvent(p.identity, relay.KindOffer, nil, string(content), time.Now().Unix())
	if err := p.fabric.Publish(ctx, ev); err != nil {
		p.logger.Warn().Err(err).Msg("publishing offer")
	}
}
