/*
Package types defines the data model shared by every podlease component:
pod tiers (PodSpec), provider advertisements (ProviderOffer), liveness
beacons (Heartbeat), in-memory lease records (Lease), and the relay DM
envelopes exchanged between Client and Provider (SpawnRequest, TopupRequest,
StatusRequest, AccessDetails, StatusResponse, ErrorResponse).

All types are JSON-serializable and match the wire schemas field for
field, so two independent implementations can interoperate.

Optional fields use pointers (Location, APIEndpoint, PodSpecID) so their
absence round-trips cleanly through JSON rather than collapsing to a zero
value.
*/
package types
