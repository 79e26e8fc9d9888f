package provider

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/podlease/pkg/backend"
	"github.com/cuemby/podlease/pkg/dispatcher"
	"github.com/cuemby/podlease/pkg/lease"
	"github.com/cuemby/podlease/pkg/log"
	"github.com/cuemby/podlease/pkg/network"
	"github.com/cuemby/podlease/pkg/payment"
	"github.com/cuemby/podlease/pkg/relay"
	"github.com/cuemby/podlease/pkg/security"
)

// Provider wires together the three long-lived tasks a running
// Provider process requires: build each dependency and hand it to the
// components that need it, then supervise the heartbeat loop and the
// dispatcher in an errgroup while the reclaimer runs on its own
// Start/Stop loop, instead of a single ticker loop.
type Provider struct {
	identity   *security.Identity
	fabric     relay.Fabric
	leases     *lease.Manager
	backend    backend.Backend
	alloc      *network.Allocator
	decoder    *payment.Decoder
	stats      *lease.Stats
	dispatcher *dispatcher.Dispatcher
	reclaimer  *lease.Reclaimer
	cfg        Config
	logger     zerolog.Logger
}

// New builds a Provider and its dispatcher/reclaimer from their shared
// dependencies.
func New(identity *security.Identity, fabric relay.Fabric, leases *lease.Manager, be backend.Backend, alloc *network.Allocator, decoder *payment.Decoder, stats *lease.Stats, cfg Config) *Provider {
	dcfg := dispatcher.Config{
		Specs:                  cfg.Specs,
		MinimumDurationSeconds: cfg.MinimumDurationSeconds,
		Hostname:               cfg.Hostname,
		Instructions:           cfg.Instructions,
		IDRangeLo:              cfg.IDRangeLo,
		IDRangeHi:              cfg.IDRangeHi,
	}

	return &Provider{
		identity:   identity,
		fabric:     fabric,
		leases:     leases,
		backend:    be,
		alloc:      alloc,
		decoder:    decoder,
		stats:      stats,
		dispatcher: dispatcher.New(identity, fabric, leases, be, alloc, decoder, dcfg),
		reclaimer:  lease.NewReclaimer(leases, be, alloc, stats, lease.DefaultReclaimPeriod),
		cfg:        cfg,
		logger:     log.WithComponent("provider"),
	}
}

// Run starts the heartbeat loop, request listener, and reclaimer and
// blocks until ctx is done or one of them returns a non-nil error, at
// which point the others are cancelled too.
func (p *Provider) Run(ctx context.Context) error {
	p.logger.Info().Str("npub", p.identity.Npub()).Msg("provider starting")

	p.reclaimer.Start()
	defer p.reclaimer.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.heartbeatLoop(gctx) })
	g.Go(func() error { return p.dispatcher.Run(gctx) })

	return g.Wait()
}
