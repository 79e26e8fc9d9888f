// Package provider wires together the three long-lived tasks a
// Provider process runs concurrently: the heartbeat loop,
// the request listener (dispatcher), and the lease reclaimer.
package provider
