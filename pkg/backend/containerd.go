package backend

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"

	"github.com/cuemby/podlease/pkg/metrics"
	"github.com/cuemby/podlease/pkg/network"
)

const (
	// containerdNamespace scopes every workload podlease creates.
	containerdNamespace = "podlease"

	// DefaultContainerdSocket is the default containerd socket path.
	DefaultContainerdSocket = "/run/containerd/containerd.sock"

	stopTimeout = 10 * time.Second
)

// ContainerdBackend drives containerd directly via its Go client:
// container.ID becomes the numeric workload id, and container.Env
// carries the shell user/password the spawned image's entrypoint
// consumes to configure its shell daemon.
type ContainerdBackend struct {
	client    *containerd.Client
	namespace string
	forwarder *network.Forwarder
}

// NewContainerdBackend connects to a containerd socket.
func NewContainerdBackend(socketPath string) (*ContainerdBackend, error) {
	if socketPath == "" {
		socketPath = DefaultContainerdSocket
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdBackend{
		client:    client,
		namespace: containerdNamespace,
		forwarder: network.NewForwarder(),
	}, nil
}

// Close closes the containerd client connection.
func (b *ContainerdBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

func (b *ContainerdBackend) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, b.namespace)
}

func containerName(id int64) string {
	return fmt.Sprintf("workload-%d", id)
}

// FindAvailableID enumerates currently-known containers and returns the
// first id in [lo, hi] not already in use.
func (b *ContainerdBackend) FindAvailableID(ctx context.Context, lo, hi int64) (int64, error) {
	ctx = b.ctx(ctx)

	containers, err := b.client.Containers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list containers: %w", err)
	}

	used := make(map[int64]bool, len(containers))
	for _, c := range containers {
		var id int64
		if _, err := fmt.Sscanf(c.ID(), "workload-%d", &id); err == nil {
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

// CreateContainer pulls the image (if not already present), creates the
// container with CPU/memory limits and shell credentials as environment
// variables, starts its task, and — if a host port was requested — wires
// the host→container forwarder for the workload's shell port.
func (b *ContainerdBackend) CreateContainer(ctx context.Context, cfg ContainerConfig) (err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ContainerCreateDuration)
		if err != nil {
			metrics.ContainerOperationsFailed.WithLabelValues("create").Inc()
		}
	}()

	ctx = b.ctx(ctx)
	id := containerName(cfg.ID)

	image, err := b.client.GetImage(ctx, cfg.Image)
	if err != nil {
		image, err = b.client.Pull(ctx, cfg.Image, containerd.WithPullUnpack)
		if err != nil {
			return fmt.Errorf("failed to pull image %s: %w", cfg.Image, err)
		}
	}

	env := []string{
		"SHELL_USER=" + cfg.ShellUser,
		"SHELL_PASSWORD=" + cfg.Password,
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
	}

	if cfg.CPUCores > 0 {
		shares := uint64(cfg.CPUCores * 1024)
		quota := int64(cfg.CPUCores * 100000)
		opts = append(opts, oci.WithCPUShares(shares), oci.WithCPUCFS(quota, 100000))
	}
	if cfg.MemoryMB > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(cfg.MemoryMB)*1024*1024))
	}

	container, err := b.client.NewContainer(
		ctx, id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task: %w", err)
	}

	if cfg.HostPort != nil {
		ip, err := b.GetContainerIP(ctx, cfg.ID)
		if err != nil {
			return fmt.Errorf("failed to resolve container ip for port forwarding: %w", err)
		}
		guestPort := cfg.GuestPort
		if guestPort == 0 {
			guestPort = 22
		}
		if err := b.forwarder.Publish(cfg.ID, ip, *cfg.HostPort, guestPort); err != nil {
			return fmt.Errorf("failed to publish host port: %w", err)
		}
	}

	return nil
}

// StartContainer starts an existing, stopped container's task.
func (b *ContainerdBackend) StartContainer(ctx context.Context, id int64) (err error) {
	defer func() {
		if err != nil {
			metrics.ContainerOperationsFailed.WithLabelValues("start").Inc()
		}
	}()

	ctx = b.ctx(ctx)

	container, err := b.client.LoadContainer(ctx, containerName(id))
	if err != nil {
		return fmt.Errorf("failed to load container: %w", err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return task.Start(ctx)
}

// StopContainer sends SIGTERM, waits up to stopTimeout, then SIGKILLs.
func (b *ContainerdBackend) StopContainer(ctx context.Context, id int64) (err error) {
	defer func() {
		if err != nil {
			metrics.ContainerOperationsFailed.WithLabelValues("stop").Inc()
		}
	}()

	ctx = b.ctx(ctx)

	container, err := b.client.LoadContainer(ctx, containerName(id))
	if err != nil {
		return fmt.Errorf("failed to load container: %w", err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil // no task means already stopped
	}

	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("failed to wait for task exit: %w", err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("failed to send SIGKILL: %w", err)
		}
	}

	_, err = task.Delete(ctx)
	return err
}

// DeleteContainer stops (if running), unpublishes any forwarded port,
// and removes the container and its snapshot. Idempotent: a missing
// container is not an error.
func (b *ContainerdBackend) DeleteContainer(ctx context.Context, id int64) (err error) {
	defer func() {
		if err != nil {
			metrics.ContainerOperationsFailed.WithLabelValues("delete").Inc()
		}
	}()

	ctx = b.ctx(ctx)
	b.forwarder.Unpublish(id)

	container, err := b.client.LoadContainer(ctx, containerName(id))
	if err != nil {
		return nil
	}

	_ = b.StopContainer(ctx, id)

	return container.Delete(ctx, containerd.WithSnapshotCleanup)
}

// GetNodeStatus is not implemented for the containerd backend: it
// returns zeros, the degraded reading the heartbeat's capacity clamp
// treats as "no live sample available" rather than a hard failure.
func (b *ContainerdBackend) GetNodeStatus(ctx context.Context) (NodeStatus, error) {
	return NodeStatus{}, nil
}

// GetContainerIP uses nsenter to read the container's eth0 address from
// its network namespace.
func (b *ContainerdBackend) GetContainerIP(ctx context.Context, id int64) (string, error) {
	ctx = b.ctx(ctx)

	container, err := b.client.LoadContainer(ctx, containerName(id))
	if err != nil {
		return "", fmt.Errorf("failed to load container: %w", err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get task: %w", err)
	}

	pid := task.Pid()
	if pid == 0 {
		return "", fmt.Errorf("container task has no pid")
	}

	cmd := exec.CommandContext(ctx, "nsenter", "-t", strconv.Itoa(int(pid)), "-n", "ip", "-4", "addr", "show", "eth0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to get container ip: %w (output: %s)", err, string(output))
	}

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "inet ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip, _, err := net.ParseCIDR(fields[1])
		if err != nil {
			return "", fmt.Errorf("failed to parse container ip %s: %w", fields[1], err)
		}
		return ip.String(), nil
	}

	return "", fmt.Errorf("no ipv4 address found for container")
}
