//go:build !darwin

package main

import (
	"fmt"

	"github.com/cuemby/podlease/pkg/backend"
	"github.com/cuemby/podlease/pkg/config"
)

// newBackend selects a Backend implementation from the provider
// config's backend_kind. LimaBackend is darwin-only (it drives a local
// VM hypervisor), so non-darwin builds only offer containerd and rest.
func newBackend(cfg *config.ProviderConfig) (backend.Backend, error) {
	switch cfg.BackendKind {
	case "", "containerd":
		return backend.NewContainerdBackend(cfg.BackendAddr)
	case "rest":
		return backend.NewRESTBackend(cfg.BackendAddr, cfg.BackendToken), nil
	case "lima":
		return nil, fmt.Errorf("the lima backend is only available on darwin")
	default:
		return nil, fmt.Errorf("unknown backend_kind %q", cfg.BackendKind)
	}
}
