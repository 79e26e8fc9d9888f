package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/cuemby/podlease/pkg/backend"
	"github.com/cuemby/podlease/pkg/lease"
	"github.com/cuemby/podlease/pkg/log"
	"github.com/cuemby/podlease/pkg/metrics"
	"github.com/cuemby/podlease/pkg/network"
	"github.com/cuemby/podlease/pkg/payment"
	"github.com/cuemby/podlease/pkg/relay"
	"github.com/cuemby/podlease/pkg/security"
	"github.com/cuemby/podlease/pkg/types"
)

// Config is the static Provider configuration the Dispatcher needs to
// resolve requests: available tiers, the minimum billable duration, and
// the hostname reported in StatusResponse.
type Config struct {
	Specs                  []types.PodSpec
	MinimumDurationSeconds int64
	Hostname               string
	Instructions           []string
	IDRangeLo, IDRangeHi   int64
}

// Dispatcher parses inbound DM envelopes, routes them to the spawn,
// topup or status handler, and sends a typed response back to the
// sender. Each request runs in its own goroutine so a slow spawn never
// blocks a concurrent status query.
type Dispatcher struct {
	identity *security.Identity
	fabric   relay.Fabric
	leases   *lease.Manager
	backend  backend.Backend
	alloc    *network.Allocator
	decoder  *payment.Decoder
	cfg      Config
	logger   zerolog.Logger
}

// New builds a Dispatcher.
func New(identity *security.Identity, fabric relay.Fabric, leases *lease.Manager, be backend.Backend, alloc *network.Allocator, decoder *payment.Decoder, cfg Config) *Dispatcher {
	return &Dispatcher{
		identity: identity,
		fabric:   fabric,
		leases:   leases,
		backend:  be,
		alloc:    alloc,
		decoder:  decoder,
		cfg:      cfg,
		logger:   log.WithComponent("dispatcher"),
	}
}

// Run is the Provider's request-listener task: subscribe
// to the DM channel and hand each decrypted message to its own
// goroutine. Returns when ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	dms, err := d.fabric.RecvDM(ctx, d.identity)
	if err != nil {
		return err
	}

	self := d.identity.Npub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case dm, ok := <-dms:
			if !ok {
				return nil
			}
			if dm.SenderNpub == self {
				continue // ignore messages authored by self
			}
			go d.handle(ctx, dm)
		}
	}
}

// requestMetricsKey carries the in-flight request's kind and start time so
// the send/sendError/sendTypedError choke points can record
// podlease_requests_total and podlease_request_duration_seconds without
// every handler threading them through by hand.
type requestMetricsKey struct{}

type requestMetrics struct {
	kind  string
	timer *metrics.Timer
}

func withRequestMetrics(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, requestMetricsKey{}, &requestMetrics{kind: kind, timer: metrics.NewTimer()})
}

func (d *Dispatcher) handle(ctx context.Context, dm relay.DirectMessage) {
	req, err := parseRequest(dm.Plaintext)
	if err != nil {
		ctx = withRequestMetrics(ctx, "unknown")
		d.sendError(ctx, dm.SenderNpub, types.ErrInvalidRequest, err.Error())
		return
	}

	switch r := req.(type) {
	case *types.SpawnRequest:
		d.handleSpawn(withRequestMetrics(ctx, "spawn"), dm.SenderNpub, r)
	case *types.TopupRequest:
		d.handleTopup(withRequestMetrics(ctx, "topup"), dm.SenderNpub, r)
	case *types.StatusRequest:
		d.handleStatus(withRequestMetrics(ctx, "status"), dm.SenderNpub, r)
	default:
		ctx = withRequestMetrics(ctx, "unknown")
		d.sendError(ctx, dm.SenderNpub, types.ErrInvalidRequest, "unrecognized request")
	}
}

// recordRequest observes podlease_requests_total/podlease_request_duration_seconds
// for the request tracked in ctx, if any (a bare context.Background(), as used
// by tests that call send* directly, records nothing).
func recordRequest(ctx context.Context, outcome string) {
	rm, ok := ctx.Value(requestMetricsKey{}).(*requestMetrics)
	if !ok {
		return
	}
	metrics.RequestsTotal.WithLabelValues(rm.kind, outcome).Inc()
	rm.timer.ObserveDurationVec(metrics.RequestDuration, rm.kind)
}

// send marshals and delivers response, recording outcome ("ok" for a
// success response, or the error kind) against the request tracked in ctx.
func (d *Dispatcher) send(ctx context.Context, recipientNpub string, response interface{}, outcome string) {
	recordRequest(ctx, outcome)

	data, err := json.Marshal(response)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to marshal response")
		return
	}
	if err := d.fabric.SendDM(ctx, d.identity, recipientNpub, data); err != nil {
		d.logger.Error().Str("recipient", recipientNpub).Err(err).Msg("failed to send dm response")
	}
}

func (d *Dispatcher) sendError(ctx context.Context, recipientNpub string, kind types.ErrorKind, message string) {
	d.send(ctx, recipientNpub, types.ErrorResponse{ErrorType: kind, Message: message}, string(kind))
}

// sendTypedError unwraps a *types.TypedError (as returned by
// pkg/payment and pkg/backend) into the matching Error DM, falling back
// to backend_error for anything untyped.
func (d *Dispatcher) sendTypedError(ctx context.Context, recipientNpub string, err error) {
	if te, ok := err.(*types.TypedError); ok {
		d.sendError(ctx, recipientNpub, te.Kind, te.Error())
		return
	}
	d.sendError(ctx, recipientNpub, types.ErrBackendError, err.Error())
}
