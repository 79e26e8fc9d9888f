//go:build darwin

package main

import (
	"fmt"

	"github.com/cuemby/podlease/pkg/backend"
	"github.com/cuemby/podlease/pkg/config"
)

// newBackend selects a Backend implementation from the provider
// config's backend_kind, adding "lima" to the cross-platform set on
// darwin.
func newBackend(cfg *config.ProviderConfig) (backend.Backend, error) {
	switch cfg.BackendKind {
	case "", "containerd":
		return backend.NewContainerdBackend(cfg.BackendAddr)
	case "rest":
		return backend.NewRESTBackend(cfg.BackendAddr, cfg.BackendToken), nil
	case "lima":
		if cfg.BackendAddr == "" {
			return nil, fmt.Errorf("backend_addr must name a cloud image location for the lima backend")
		}
		return backend.NewLimaBackend(cfg.BackendAddr), nil
	default:
		return nil, fmt.Errorf("unknown backend_kind %q", cfg.BackendKind)
	}
}
