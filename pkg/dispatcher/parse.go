package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/podlease/pkg/types"
)

// envelope is the union of every field any request variant carries.
// There is no shared discriminator tag, so
// requests are told apart structurally by which fields are present.
type envelope struct {
	CashuToken  *string `json:"cashu_token"`
	PodSpecID   *string `json:"pod_spec_id"`
	PodImage    *string `json:"pod_image"`
	SSHUsername *string `json:"ssh_username"`
	SSHPassword *string `json:"ssh_password"`
	PodNpub     *string `json:"pod_npub"`
	PodID       *string `json:"pod_id"`
}

// parseRequest structurally matches data into a SpawnRequest,
// TopupRequest or StatusRequest. Anything else
// returns an error the caller turns into an invalid_request Error.
func parseRequest(data []byte) (interface{}, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("malformed request: %w", err)
	}

	switch {
	case e.PodImage != nil && e.CashuToken != nil:
		if e.SSHUsername == nil || e.SSHPassword == nil {
			return nil, fmt.Errorf("spawn request missing ssh_username/ssh_password")
		}
		return &types.SpawnRequest{
			CashuToken:  *e.CashuToken,
			PodSpecID:   e.PodSpecID,
			PodImage:    *e.PodImage,
			SSHUsername: *e.SSHUsername,
			SSHPassword: *e.SSHPassword,
		}, nil

	case e.PodNpub != nil && e.CashuToken != nil:
		return &types.TopupRequest{
			PodNpub:    *e.PodNpub,
			CashuToken: *e.CashuToken,
		}, nil

	case e.PodID != nil:
		return &types.StatusRequest{PodID: *e.PodID}, nil

	default:
		return nil, fmt.Errorf("request matches no known shape")
	}
}
