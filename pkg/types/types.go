// Package types holds the wire and domain data model shared across podlease:
// pod tiers, provider offers, heartbeats, leases and the relay DM envelopes.
package types

import "time"

// PodSpec is a named, priced resource tier a Provider advertises. Immutable
// after the Provider starts.
type PodSpec struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	CPUMillicores   int64  `json:"cpu_millicores"`
	MemoryMB        int64  `json:"memory_mb"`
	RateMsatsPerSec int64  `json:"rate_msats_per_sec"`
}

// Capability tags a Provider can advertise.
const (
	CapabilityContainer = "container"
	CapabilityVM        = "vm"
)

// ProviderOffer is the self-describing advertisement a Provider publishes
// periodically to the relay fabric. Readers always use the latest one seen.
type ProviderOffer struct {
	ProviderNpub       string    `json:"provider_npub"`
	Hostname           string    `json:"hostname"`
	Location           *string   `json:"location"`
	Capabilities       []string  `json:"capabilities"`
	Specs              []PodSpec `json:"specs"`
	WhitelistedMints   []string  `json:"whitelisted_mints"`
	UptimePercent      float64   `json:"uptime_percent"`
	TotalJobsCompleted int64     `json:"total_jobs_completed"`
	APIEndpoint        *string   `json:"api_endpoint"`
}

// AvailableCapacity is the free resource pool reported in a Heartbeat.
type AvailableCapacity struct {
	CPUAvailable       int64 `json:"cpu_available"`
	MemoryMBAvailable  int64 `json:"memory_mb_available"`
	StorageGBAvailable int64 `json:"storage_gb_available"`
}

// Heartbeat is the Provider's periodic liveness beacon. A Provider is
// considered online iff a heartbeat within the last 120s exists.
type Heartbeat struct {
	ProviderNpub      string            `json:"provider_npub"`
	Timestamp         int64             `json:"timestamp"`
	ActiveWorkloads   int               `json:"active_workloads"`
	AvailableCapacity AvailableCapacity `json:"available_capacity"`
}

// OnlineWindow is the maximum heartbeat age for a Provider to be "online".
const OnlineWindow = 120 * time.Second

// IsOnline reports whether a heartbeat observed at ts (unix seconds) still
// counts as online relative to now.
func IsOnline(ts int64, now time.Time) bool {
	age := now.Sub(time.Unix(ts, 0))
	return age < OnlineWindow
}

// Lease is the Provider's in-memory (and persisted-mirror) record of one
// active workload lease.
type Lease struct {
	WorkloadID      int64     `json:"workload_id"`
	TierID          string    `json:"tier_id"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	OwnerIdentifier string    `json:"owner_identifier"`
	HostPort        int       `json:"host_port"`
	ShellUser       string    `json:"shell_user"`
	ShellPassword   string    `json:"shell_password"`
	DurationSeconds int64     `json:"duration_seconds"`
	PaymentMsats    int64     `json:"payment_msats"`
}

// LeaseState is the phase of a Lease's lifecycle.
type LeaseState string

const (
	LeaseStateInit       LeaseState = "init"
	LeaseStateActive     LeaseState = "active"
	LeaseStateReclaiming LeaseState = "reclaiming"
	LeaseStateDeleted    LeaseState = "deleted"
)

// --- Relay DM envelope types ---

// SpawnRequest asks the Provider to create a new workload.
type SpawnRequest struct {
	CashuToken  string  `json:"cashu_token"`
	PodSpecID   *string `json:"pod_spec_id,omitempty"`
	PodImage    string  `json:"pod_image"`
	SSHUsername string  `json:"ssh_username"`
	SSHPassword string  `json:"ssh_password"`
}

// TopupRequest asks the Provider to extend an existing lease.
type TopupRequest struct {
	PodNpub    string `json:"pod_npub"`
	CashuToken string `json:"cashu_token"`
}

// StatusRequest asks the Provider for the current state of a lease.
type StatusRequest struct {
	PodID string `json:"pod_id"`
}

// AccessDetails is the successful response to a SpawnRequest.
type AccessDetails struct {
	PodNpub            string   `json:"pod_npub"`
	NodePort           int      `json:"node_port"`
	ExpiresAt          string   `json:"expires_at"` // RFC-3339
	CPUMillicores      int64    `json:"cpu_millicores"`
	MemoryMB           int64    `json:"memory_mb"`
	PodSpecName        string   `json:"pod_spec_name"`
	PodSpecDescription string   `json:"pod_spec_description"`
	Instructions       []string `json:"instructions"`
}

// LeaseStatus is the coarse state reported in a StatusResponse.
type LeaseStatus string

const (
	LeaseStatusRunning LeaseStatus = "Running"
	LeaseStatusExpired LeaseStatus = "Expired"
)

// StatusResponse is the reply to a StatusRequest.
type StatusResponse struct {
	WorkloadID           int64       `json:"workload_id"`
	Status               LeaseStatus `json:"status"`
	ExpiresAt            string      `json:"expires_at"`
	TimeRemainingSeconds int64       `json:"time_remaining_seconds"`
	CPUMillicores        int64       `json:"cpu_millicores"`
	MemoryMB             int64       `json:"memory_mb"`
	Host                 string      `json:"host"`
	Port                 int         `json:"port"`
	User                 string      `json:"user"`
}

// TopupResponse is the reply to a TopupRequest.
type TopupResponse struct {
	WorkloadID   int64  `json:"workload_id"`
	ExpiresAt    string `json:"expires_at"`
	AddedSeconds int64  `json:"added_seconds"`
}

// ErrorKind enumerates the recognized error_type values.
type ErrorKind string

const (
	ErrInvalidRequest      ErrorKind = "invalid_request"
	ErrInvalidToken        ErrorKind = "invalid_token"
	ErrInsufficientPayment ErrorKind = "insufficient_payment"
	ErrMintNotWhitelisted  ErrorKind = "mint_not_whitelisted"
	ErrTokenAlreadyUsed    ErrorKind = "token_already_used"
	ErrTierNotFound        ErrorKind = "tier_not_found"
	ErrNoSpecs             ErrorKind = "no_specs"
	ErrBackendError        ErrorKind = "backend_error"
	ErrProvisioningError   ErrorKind = "provisioning_error"
	ErrNotFound            ErrorKind = "not_found"
	ErrNotImplemented      ErrorKind = "not_implemented"
)

// ErrorResponse is the typed error envelope sent back to a Client.
type ErrorResponse struct {
	ErrorType ErrorKind `json:"error_type"`
	Message   string    `json:"message"`
	Details   *string   `json:"details"`
}

// TypedError attaches an ErrorKind to an underlying error so the
// dispatcher can translate it into an ErrorResponse without re-deriving
// the kind from string matching. Components across the tree (payment,
// lease, backend) return these directly rather than a bespoke
// error-code type per package.
type TypedError struct {
	Kind ErrorKind
	Err  error
}

func (e *TypedError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *TypedError) Unwrap() error {
	return e.Err
}

// NewTypedError builds a TypedError from a kind and an underlying cause.
func NewTypedError(kind ErrorKind, err error) *TypedError {
	return &TypedError{Kind: kind, Err: err}
}
