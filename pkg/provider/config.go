package provider

import (
	"time"

	"github.com/cuemby/podlease/pkg/types"
)

// Config is a Provider process's static configuration.
type Config struct {
	Specs                    []types.PodSpec
	WhitelistedMints         []string
	Hostname                 string
	Location                 *string
	APIEndpoint              *string
	Instructions             []string
	HeartbeatInterval        time.Duration
	MinimumDurationSeconds   int64
	IDRangeLo, IDRangeHi     int64
	PortRangeLo, PortRangeHi int

	// Total* describe this node's self-declared capacity, used to derive
	// AvailableCapacity for the Heartbeat by subtracting what active
	// leases have reserved.
	TotalCPUMillicores int64
	TotalMemoryMB      int64
	TotalStorageGB     int64
}

func (c Config) specByID(id string) (types.PodSpec, bool) {
	for _, s := range c.Specs {
		if s.ID == id {
			return s, true
		}
	}
	return types.PodSpec{}, false
}

// DefaultHeartbeatInterval is used when Config.HeartbeatInterval is
// unset.
const DefaultHeartbeatInterval = 30 * time.Second

func (c Config) heartbeatInterval() time.Duration {
	if c.HeartbeatInterval > 0 {
		return c.HeartbeatInterval
	}
	return DefaultHeartbeatInterval
}
