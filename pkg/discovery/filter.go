package discovery

import "sort"

// Filter narrows a candidate list. Zero values are
// no-ops: a Filter with every field at its zero value matches
// everything.
type Filter struct {
	Capability  string
	MinUptime   float64
	MinMemoryMB int64
	MinCPU      int64
}

// Apply returns the subset of records matching f.
func Apply(records []Record, f Filter) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Capability != "" && !r.HasCapability(f.Capability) {
			continue
		}
		if f.MinUptime > 0 && r.Offer.UptimePercent < f.MinUptime {
			continue
		}
		if f.MinMemoryMB > 0 && r.AvailableMemoryMB() < f.MinMemoryMB {
			continue
		}
		if f.MinCPU > 0 && r.AvailableCPU() < f.MinCPU {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SortKey selects the ordering Sort applies.
type SortKey string

const (
	SortPrice        SortKey = "price"          // ascending, cheapest tier first
	SortUptimeDesc   SortKey = "uptime_desc"    // descending uptime percent
	SortCapacityDesc SortKey = "capacity_desc"  // descending available memory
	SortJobsDesc     SortKey = "jobs_desc"      // descending total jobs completed
)

// Sort orders records in place by key. Unknown keys leave the slice
// untouched.
func Sort(records []Record, key SortKey) {
	switch key {
	case SortPrice:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].MinRateMsatsPerSec() < records[j].MinRateMsatsPerSec()
		})
	case SortUptimeDesc:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Offer.UptimePercent > records[j].Offer.UptimePercent
		})
	case SortCapacityDesc:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].AvailableMemoryMB() > records[j].AvailableMemoryMB()
		})
	case SortJobsDesc:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Offer.TotalJobsCompleted > records[j].Offer.TotalJobsCompleted
		})
	}
}
