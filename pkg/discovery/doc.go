// Package discovery implements the Client side of finding and
// negotiating with Providers over the relay fabric: querying Offers,
// folding in the latest Heartbeat per Provider, filtering and sorting
// the resulting candidate list, and round-tripping a negotiation DM to
// a chosen Provider within a caller-supplied timeout.
package discovery
