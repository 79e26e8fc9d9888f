package dispatcher

import (
	"fmt"

	"github.com/cuemby/podlease/pkg/types"
)

// resolveTier finds the named tier, or the first configured tier if
// tierID is nil").
func resolveTier(specs []types.PodSpec, tierID *string) (types.PodSpec, error) {
	if len(specs) == 0 {
		return types.PodSpec{}, fmt.Errorf("no tiers configured")
	}

	if tierID == nil {
		return specs[0], nil
	}

	for _, s := range specs {
		if s.ID == *tierID {
			return s, nil
		}
	}
	return types.PodSpec{}, fmt.Errorf("tier %q not found", *tierID)
}
