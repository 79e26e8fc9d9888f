// Package relay implements the relay protocol layer: signed public
// events (Offer, Heartbeat) and end-to-end encrypted direct messages,
// carried over a pluggable Fabric. MemoryFabric is an in-process
// implementation for tests and single-process demos; WebsocketFabric
// speaks the nostr-flavored wire protocol over a real relay connection.
package relay
