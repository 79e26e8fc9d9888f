// Package log wraps zerolog with podlease's logging conventions: a global
// Logger configured once at startup via Init, and a handful of With*
// helpers that attach the identifiers components log by most often
// (provider_npub, workload_id, pod_npub).
package log
