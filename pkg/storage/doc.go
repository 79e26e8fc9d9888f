/*
Package storage persists the two pieces of state a podlease Provider must
not forget across a restart: which cashu tokens it has already redeemed,
and which leases it currently owns.

BoltStore implements Store on top of an embedded BoltDB file with two
buckets, redeemed_tokens and leases, each a flat key/value map of
JSON-encoded records. A restarted Provider calls ListLeases to rebuild its
in-memory registry and resume reclaiming leases whose expires_at already
passed while it was down; this does not make the store a source of truth
for workload state, only for Provider bookkeeping.
*/
package storage
