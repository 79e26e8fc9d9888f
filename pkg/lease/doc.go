// Package lease implements the Lease Manager: the in-memory registry of
// active workload leases, their state machine (init, active,
// reclaiming, deleted), payment-to-duration arithmetic, and the
// periodic reclaimer that sweeps expired leases.
package lease
