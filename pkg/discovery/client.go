package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/podlease/pkg/log"
	"github.com/cuemby/podlease/pkg/relay"
	"github.com/cuemby/podlease/pkg/security"
	"github.com/cuemby/podlease/pkg/types"
)

// DefaultQueryWindow is how long Query listens for Offer/Heartbeat
// events before folding what it has seen into a candidate list.
const DefaultQueryWindow = 3 * time.Second

// DefaultSpawnTimeout and DefaultStatusTimeout are the recommended
// wait-for-response windows for negotiation DMs.
const (
	DefaultSpawnTimeout  = 90 * time.Second
	DefaultStatusTimeout = 30 * time.Second
)

// Client is the Discovery Client: it queries the relay fabric for
// Provider Offers and Heartbeats, and sends negotiation DMs to a chosen
// Provider, using a per-call context.WithTimeout to bound each
// request over a fan-in subscription on the relay.
type Client struct {
	identity    *security.Identity
	fabric      relay.Fabric
	queryWindow time.Duration
	logger      zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithQueryWindow overrides DefaultQueryWindow.
func WithQueryWindow(d time.Duration) Option {
	return func(c *Client) { c.queryWindow = d }
}

// New builds a discovery Client.
func New(identity *security.Identity, fabric relay.Fabric, opts ...Option) *Client {
	c := &Client{
		identity:    identity,
		fabric:      fabric,
		queryWindow: DefaultQueryWindow,
		logger:      log.WithComponent("discovery"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query subscribes to Offer and Heartbeat events for the configured
// query window and returns one Record per Provider npub seen, using
// each Provider's most recently published Offer and Heartbeat.
func (c *Client) Query(ctx context.Context) ([]Record, error) {
	windowCtx, cancel := context.WithTimeout(ctx, c.queryWindow)
	defer cancel()

	events, err := c.fabric.Subscribe(windowCtx, []relay.Kind{relay.KindOffer, relay.KindHeartbeat})
	if err != nil {
		return nil, fmt.Errorf("subscribing to offers/heartbeats: %w", err)
	}

	offers := make(map[string]types.ProviderOffer)
	heartbeats := make(map[string]*types.Heartbeat)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return c.fold(offers, heartbeats), nil
			}
			c.ingest(ev, offers, heartbeats)
		case <-windowCtx.Done():
			return c.fold(offers, heartbeats), nil
		}
	}
}

func (c *Client) ingest(ev relay.Event, offers map[string]types.ProviderOffer, heartbeats map[string]*types.Heartbeat) {
	switch ev.Kind {
	case relay.KindOffer:
		var offer types.ProviderOffer
		if err := json.Unmarshal([]byte(ev.Content), &offer); err != nil {
			c.logger.Warn().Err(err).Str("pubkey", ev.Pubkey).Msg("dropping malformed offer event")
			return
		}
		offers[ev.Pubkey] = offer
	case relay.KindHeartbeat:
		var hb types.Heartbeat
		if err := json.Unmarshal([]byte(ev.Content), &hb); err != nil {
			c.logger.Warn().Err(err).Str("pubkey", ev.Pubkey).Msg("dropping malformed heartbeat event")
			return
		}
		existing, ok := heartbeats[ev.Pubkey]
		if !ok || hb.Timestamp > existing.Timestamp {
			heartbeats[ev.Pubkey] = &hb
		}
	}
}

func (c *Client) fold(offers map[string]types.ProviderOffer, heartbeats map[string]*types.Heartbeat) []Record {
	now := time.Now()
	records := make([]Record, 0, len(offers))
	for npub, offer := range offers {
		records = append(records, markOnline(offer, heartbeats[npub], now))
	}
	return records
}

// Send marshals req to JSON and sends it to provider as
// an encrypted DM and waits for a single response DM on the same
// channel, up to timeout. Callers unmarshal the returned payload into
// whichever response type matches what they sent (AccessDetails,
// TopupResponse, StatusResponse, or ErrorResponse).
func (c *Client) Send(ctx context.Context, providerNpub string, req interface{}, timeout time.Duration) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	replies, err := c.fabric.RecvDM(waitCtx, c.identity)
	if err != nil {
		return nil, fmt.Errorf("subscribing for response: %w", err)
	}

	if err := c.fabric.SendDM(waitCtx, c.identity, providerNpub, data); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	for {
		select {
		case dm, ok := <-replies:
			if !ok {
				return nil, fmt.Errorf("response channel closed before a reply arrived")
			}
			if dm.SenderNpub != providerNpub {
				continue
			}
			return dm.Plaintext, nil
		case <-waitCtx.Done():
			return nil, fmt.Errorf("timed out waiting for response from %s: %w", providerNpub, waitCtx.Err())
		}
	}
}
