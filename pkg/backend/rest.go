package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/cuemby/podlease/pkg/metrics"
)

// pollTimeout bounds how long REST waits for an async task to finish.
const pollTimeout = 120 * time.Second

const pollInterval = 2 * time.Second

// RESTBackend talks to a remote privileged host API over HTTPS: a
// hardened retryablehttp.Client, with async operations polled to
// completion. Certificates are verified by default; WithInsecureSkipVerify
// turns verification off for a host with a self-signed cert.
type RESTBackend struct {
	baseURL string
	token   string
	client  *retryablehttp.Client
}

// RESTBackendOption configures a RESTBackend at construction.
type RESTBackendOption func(*RESTBackend)

// WithInsecureSkipVerify disables TLS certificate verification, for
// providers fronted by a self-signed cert.
func WithInsecureSkipVerify() RESTBackendOption {
	return func(b *RESTBackend) {
		transport := b.client.HTTPClient.Transport.(*http.Transport)
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
}

// NewRESTBackend builds a RESTBackend pointed at baseURL, authenticating
// with a bearer token.
func NewRESTBackend(baseURL, token string, opts ...RESTBackendOption) *RESTBackend {
	client := retryablehttp.NewClient()
	client.RetryMax = 5
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil
	client.HTTPClient.Transport = &http.Transport{}

	b := &RESTBackend{
		baseURL: baseURL,
		token:   token,
		client:  client,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RESTBackend) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

type taskStatus struct {
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// pollTask repeatedly fetches /tasks/{id} until it reports done or
// pollTimeout elapses.
func (b *RESTBackend) pollTask(ctx context.Context, taskID string) error {
	deadline := time.Now().Add(pollTimeout)
	for {
		var st taskStatus
		if err := b.do(ctx, http.MethodGet, "/tasks/"+taskID, nil, &st); err != nil {
			return fmt.Errorf("failed to poll task %s: %w", taskID, err)
		}
		if st.Done {
			if st.Error != "" {
				return fmt.Errorf("task %s failed: %s", taskID, st.Error)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("task %s did not complete within %s", taskID, pollTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

type findIDRequest struct {
	Low  int64 `json:"low"`
	High int64 `json:"high"`
}

type findIDResponse struct {
	ID int64 `json:"id"`
}

func (b *RESTBackend) FindAvailableID(ctx context.Context, lo, hi int64) (int64, error) {
	var resp findIDResponse
	if err := b.do(ctx, http.MethodPost, "/containers/find-id", findIDRequest{Low: lo, High: hi}, &resp); err != nil {
		return 0, err
	}
	if resp.ID == 0 {
		return 0, ErrNoFreeID
	}
	return resp.ID, nil
}

type createContainerRequest struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	CPUCores  float64 `json:"cpu_cores"`
	MemoryMB  int64  `json:"memory_mb"`
	StorageGB int64  `json:"storage_gb"`
	Password  string `json:"password"`
	ShellUser string `json:"shell_user"`
	HostPort  *int   `json:"host_port,omitempty"`
	GuestPort int    `json:"guest_port"`
}

type taskRef struct {
	TaskID string `json:"task_id"`
}

func (b *RESTBackend) CreateContainer(ctx context.Context, cfg ContainerConfig) (err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ContainerCreateDuration)
		if err != nil {
			metrics.ContainerOperationsFailed.WithLabelValues("create").Inc()
		}
	}()

	req := createContainerRequest{
		ID:        cfg.ID,
		Name:      cfg.Name,
		Image:     cfg.Image,
		CPUCores:  cfg.CPUCores,
		MemoryMB:  cfg.MemoryMB,
		StorageGB: cfg.StorageGB,
		Password:  cfg.Password,
		ShellUser: cfg.ShellUser,
		HostPort:  cfg.HostPort,
		GuestPort: cfg.GuestPort,
	}

	var ref taskRef
	if err := b.do(ctx, http.MethodPost, "/containers", req, &ref); err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	return b.pollTask(ctx, ref.TaskID)
}

func (b *RESTBackend) StartContainer(ctx context.Context, id int64) (err error) {
	defer func() {
		if err != nil {
			metrics.ContainerOperationsFailed.WithLabelValues("start").Inc()
		}
	}()

	var ref taskRef
	if err := b.do(ctx, http.MethodPost, fmt.Sprintf("/containers/%d/start", id), nil, &ref); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return b.pollTask(ctx, ref.TaskID)
}

func (b *RESTBackend) StopContainer(ctx context.Context, id int64) (err error) {
	defer func() {
		if err != nil {
			metrics.ContainerOperationsFailed.WithLabelValues("stop").Inc()
		}
	}()

	var ref taskRef
	if err := b.do(ctx, http.MethodPost, fmt.Sprintf("/containers/%d/stop", id), nil, &ref); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return b.pollTask(ctx, ref.TaskID)
}

func (b *RESTBackend) DeleteContainer(ctx context.Context, id int64) (err error) {
	defer func() {
		if err != nil {
			metrics.ContainerOperationsFailed.WithLabelValues("delete").Inc()
		}
	}()

	var ref taskRef
	if err := b.do(ctx, http.MethodDelete, fmt.Sprintf("/containers/%d", id), nil, &ref); err != nil {
		return fmt.Errorf("failed to delete container: %w", err)
	}
	if ref.TaskID == "" {
		return nil
	}
	return b.pollTask(ctx, ref.TaskID)
}

func (b *RESTBackend) GetNodeStatus(ctx context.Context) (NodeStatus, error) {
	var status NodeStatus
	if err := b.do(ctx, http.MethodGet, "/status", nil, &status); err != nil {
		return NodeStatus{}, fmt.Errorf("failed to get node status: %w", err)
	}
	return status, nil
}

type containerIPResponse struct {
	IP string `json:"ip"`
}

func (b *RESTBackend) GetContainerIP(ctx context.Context, id int64) (string, error) {
	var resp containerIPResponse
	if err := b.do(ctx, http.MethodGet, fmt.Sprintf("/containers/%d/ip", id), nil, &resp); err != nil {
		return "", fmt.Errorf("failed to get container ip: %w", err)
	}
	return resp.IP, nil
}
