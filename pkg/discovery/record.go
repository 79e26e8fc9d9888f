package discovery

import (
	"time"

	"github.com/cuemby/podlease/pkg/types"
)

// Record aggregates one Provider's latest Offer with its latest
// Heartbeat (if any has been seen within the query window).
type Record struct {
	Offer     types.ProviderOffer
	Heartbeat *types.Heartbeat
	Online    bool
}

// MinRateMsatsPerSec returns the cheapest tier's rate, or 0 if the
// Provider advertises no tiers at all.
func (r Record) MinRateMsatsPerSec() int64 {
	var min int64
	for i, s := range r.Offer.Specs {
		if i == 0 || s.RateMsatsPerSec < min {
			min = s.RateMsatsPerSec
		}
	}
	return min
}

// AvailableMemoryMB returns the Provider's free memory as of its last
// Heartbeat, or 0 if none has been observed.
func (r Record) AvailableMemoryMB() int64 {
	if r.Heartbeat == nil {
		return 0
	}
	return r.Heartbeat.AvailableCapacity.MemoryMBAvailable
}

// AvailableCPU returns the Provider's free CPU as of its last
// Heartbeat, or 0 if none has been observed.
func (r Record) AvailableCPU() int64 {
	if r.Heartbeat == nil {
		return 0
	}
	return r.Heartbeat.AvailableCapacity.CPUAvailable
}

// HasCapability reports whether the Provider advertises cap.
func (r Record) HasCapability(cap string) bool {
	for _, c := range r.Offer.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

func markOnline(offer types.ProviderOffer, hb *types.Heartbeat, now time.Time) Record {
	online := hb != nil && types.IsOnline(hb.Timestamp, now)
	return Record{Offer: offer, Heartbeat: hb, Online: online}
}
