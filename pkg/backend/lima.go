//go:build darwin

package backend

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/lima-vm/lima/pkg/instance"
	"github.com/lima-vm/lima/pkg/limayaml"
	"github.com/lima-vm/lima/pkg/store"

	"github.com/cuemby/podlease/pkg/metrics"
)

const limaInstancePrefix = "podlease-"

// limaReadyTimeout bounds how long CreateContainer waits for a new VM
// to finish booting and for its sshd to come up.
const limaReadyTimeout = 120 * time.Second

// LimaBackend runs one lima-vm instance per workload, adapted from the
// teacher's single shared-VM manager: podlease needs per-lease isolation
// rather than one VM hosting every container, so each workload id maps
// to its own named instance instead of sharing WarrenLimaInstanceName.
type LimaBackend struct {
	imageLocation string
	imageArch     limayaml.Arch
}

// NewLimaBackend builds a LimaBackend that boots instances from the
// given cloud image.
func NewLimaBackend(imageLocation string) *LimaBackend {
	arch := limayaml.AARCH64
	if runtime.GOARCH == "amd64" {
		arch = limayaml.X8664
	}
	return &LimaBackend{imageLocation: imageLocation, imageArch: arch}
}

func limaInstanceName(id int64) string {
	return fmt.Sprintf("%s%d", limaInstancePrefix, id)
}

// FindAvailableID enumerates existing podlease-* instances and returns
// the first id in [lo, hi] with no matching instance.
func (b *LimaBackend) FindAvailableID(ctx context.Context, lo, hi int64) (int64, error) {
	instances, err := store.Instances()
	if err != nil {
		return 0, fmt.Errorf("failed to list lima instances: %w", err)
	}

	used := make(map[int64]bool, len(instances))
	for _, name := range instances {
		var id int64
		if _, err := fmt.Sscanf(name, limaInstancePrefix+"%d", &id); err == nil {
			used[id] = true
		}
	}

	for id := lo; id <= hi; id++ {
		if !used[id] {
			return id, nil
		}
	}
	return 0, ErrNoFreeID
}

// CreateContainer creates and starts a lima-vm instance for the
// workload, forwarding its guest sshd port to the allocated host port
// via lima's own SSH local-port-forward rather than podlease's iptables
// forwarder (a per-workload VM already has its own loopback binding).
func (b *LimaBackend) CreateContainer(ctx context.Context, cfg ContainerConfig) (err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ContainerCreateDuration)
		if err != nil {
			metrics.ContainerOperationsFailed.WithLabelValues("create").Inc()
		}
	}()

	name := limaInstanceName(cfg.ID)

	cpus := int(cfg.CPUCores)
	if cpus < 1 {
		cpus = 1
	}
	memory := fmt.Sprintf("%dGiB", max64(cfg.MemoryMB/1024, 1))
	disk := fmt.Sprintf("%dGiB", max64(cfg.StorageGB, 10))

	guestPort := cfg.GuestPort
	if guestPort == 0 {
		guestPort = 22
	}

	config := limayaml.LimaYAML{
		Arch:   &b.imageArch,
		CPUs:   &cpus,
		Memory: &memory,
		Disk:   &disk,
		Images: []limayaml.Image{
			{File: limayaml.File{Location: b.imageLocation, Arch: b.imageArch}},
		},
		Provision: []limayaml.Provision{
			{
				Mode: limayaml.ProvisionModeSystem,
				Script: fmt.Sprintf("#!/bin/sh\nset -eux\nid -u %s >/dev/null 2>&1 || adduser -D %s\necho '%s:%s' | chpasswd\n",
					cfg.ShellUser, cfg.ShellUser, cfg.ShellUser, cfg.Password),
			},
		},
		Message: fmt.Sprintf("podlease workload %d ready", cfg.ID),
	}

	if cfg.HostPort != nil {
		config.SSH = limayaml.SSH{LocalPort: cfg.HostPort}
	}

	configYAML, err := limayaml.Marshal(&config, false)
	if err != nil {
		return fmt.Errorf("failed to marshal lima config: %w", err)
	}

	if _, err := instance.Create(ctx, name, configYAML, false); err != nil {
		return fmt.Errorf("failed to create lima instance: %w", err)
	}

	return b.StartContainer(ctx, cfg.ID)
}

// StartContainer starts an existing instance and waits for it to reach
// the running state.
func (b *LimaBackend) StartContainer(ctx context.Context, id int64) (err error) {
	defer func() {
		if err != nil {
			metrics.ContainerOperationsFailed.WithLabelValues("start").Inc()
		}
	}()

	name := limaInstanceName(id)

	inst, err := store.Inspect(name)
	if err != nil {
		return fmt.Errorf("failed to inspect lima instance: %w", err)
	}

	if inst.Status == store.StatusRunning {
		return nil
	}

	if err := instance.Start(ctx, inst, "", false); err != nil {
		return fmt.Errorf("failed to start lima instance: %w", err)
	}

	return b.waitForReady(ctx, name)
}

// StopContainer gracefully stops an instance, falling back to a forced
// stop if it refuses to shut down.
func (b *LimaBackend) StopContainer(ctx context.Context, id int64) (err error) {
	defer func() {
		if err != nil {
			metrics.ContainerOperationsFailed.WithLabelValues("stop").Inc()
		}
	}()

	name := limaInstanceName(id)

	inst, err := store.Inspect(name)
	if err != nil {
		return nil // already gone
	}

	if err := instance.StopGracefully(ctx, inst, false); err != nil {
		instance.StopForcibly(inst)
	}
	return nil
}

// DeleteContainer stops and removes the instance and its backing disk.
// Idempotent: a missing instance is not an error.
func (b *LimaBackend) DeleteContainer(ctx context.Context, id int64) (err error) {
	defer func() {
		if err != nil {
			metrics.ContainerOperationsFailed.WithLabelValues("delete").Inc()
		}
	}()

	name := limaInstanceName(id)

	if _, err := store.Inspect(name); err != nil {
		return nil
	}

	_ = b.StopContainer(ctx, id)

	dir, err := store.InstanceDir(name)
	if err != nil {
		return fmt.Errorf("failed to locate instance dir: %w", err)
	}
	return os.RemoveAll(dir)
}

// GetNodeStatus reports zeros: host resource accounting for a
// hypervisor-per-workload setup is out of scope for this backend.
func (b *LimaBackend) GetNodeStatus(ctx context.Context) (NodeStatus, error) {
	return NodeStatus{}, nil
}

// GetContainerIP returns the instance's loopback address: lima instances
// are reached through their forwarded SSH local port on the host, not a
// routable guest IP.
func (b *LimaBackend) GetContainerIP(ctx context.Context, id int64) (string, error) {
	return "127.0.0.1", nil
}

func (b *LimaBackend) waitForReady(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, limaReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for lima instance %s to be ready", name)
		case <-ticker.C:
			inst, err := store.Inspect(name)
			if err != nil {
				continue
			}
			if inst.Status == store.StatusRunning {
				return nil
			}
		}
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
