/*
Package backend abstracts the host container/VM platform behind a
small capability set: find a free numeric id, create/start/stop/delete
a workload, report node resource usage, and resolve a workload's IP. Three reference implementations are provided —
RESTBackend (a remote privileged host API), ContainerdBackend (a local
container engine) and LimaBackend (a local VM engine) — so every domain
engine dependency pulled into go.mod has a concrete home.
*/
package backend

import (
	"context"
	"fmt"
)

// ContainerConfig is the input to CreateContainer: everything the
// backend needs to bring a workload up.
type ContainerConfig struct {
	ID         int64
	Name       string
	Image      string
	CPUCores   float64
	MemoryMB   int64
	StorageGB  int64
	Password   string
	ShellUser  string
	HostPort   *int
	GuestPort  int // the workload's shell/sshd port, before host forwarding
}

// NodeStatus reports the host's current resource usage. Backends MAY
// return degraded zeros rather than an error on a transient collection
// failure.
type NodeStatus struct {
	CPUUsage    float64
	MemoryUsed  int64
	MemoryTotal int64
	DiskUsed    int64
	DiskTotal   int64
}

// ErrNoFreeID is returned by FindAvailableID when every id in the range
// is already in use.
var ErrNoFreeID = fmt.Errorf("no free id in range")

// Backend is the pluggable host platform driver.
type Backend interface {
	// FindAvailableID returns the first integer in [lo, hi] not
	// currently used by any workload known to this backend.
	FindAvailableID(ctx context.Context, lo, hi int64) (int64, error)

	// CreateContainer brings a workload up and returns once it is
	// created and running.
	CreateContainer(ctx context.Context, cfg ContainerConfig) error

	// StartContainer, StopContainer and DeleteContainer act on an
	// existing workload by id. DeleteContainer is idempotent.
	StartContainer(ctx context.Context, id int64) error
	StopContainer(ctx context.Context, id int64) error
	DeleteContainer(ctx context.Context, id int64) error

	// GetNodeStatus reports current host resource usage.
	GetNodeStatus(ctx context.Context) (NodeStatus, error)

	// GetContainerIP returns the workload's private IPv4 address, if
	// known.
	GetContainerIP(ctx context.Context, id int64) (string, error)
}
