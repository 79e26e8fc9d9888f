package storage

import "github.com/cuemby/podlease/pkg/types"

// RedeemedToken is a persisted row recording a cashu token that has
// already been redeemed, keyed by its token identifier.
type RedeemedToken struct {
	ID          string `json:"id"`
	RedeemedAt  int64  `json:"redeemed_at"` // unix seconds
	AmountMsats int64  `json:"amount_msats"`
}

// Store is the persistence interface a Provider uses to survive a
// restart: which tokens have already been redeemed, and what leases it
// currently owns.
type Store interface {
	// Redemption set
	IsTokenRedeemed(id string) (bool, error)
	MarkTokenRedeemed(tok *RedeemedToken) error

	// Leases
	PutLease(lease *types.Lease) error
	GetLease(workloadID int64) (*types.Lease, error)
	ListLeases() ([]*types.Lease, error)
	DeleteLease(workloadID int64) error

	Close() error
}
