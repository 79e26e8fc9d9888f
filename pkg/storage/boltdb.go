package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/cuemby/podlease/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketRedeemedTokens = []byte("redeemed_tokens")
	bucketLeases         = []byte("leases")
)

// BoltStore implements Store using an embedded BoltDB file. One file per
// Provider, at <dataDir>/podlease.db.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the Provider's bbolt database
// and ensures both buckets exist.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "podlease.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRedeemedTokens, bucketLeases} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// IsTokenRedeemed reports whether a token identifier has already been
// recorded as redeemed.
func (s *BoltStore) IsTokenRedeemed(id string) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRedeemedTokens)
		found = b.Get([]byte(id)) != nil
		return nil
	})
	return found, err
}

// MarkTokenRedeemed records a token as redeemed. Idempotent: redeeming
// the same ID twice just overwrites the row with identical data.
func (s *BoltStore) MarkTokenRedeemed(tok *RedeemedToken) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRedeemedTokens)
		data, err := json.Marshal(tok)
		if err != nil {
			return err
		}
		return b.Put([]byte(tok.ID), data)
	})
}

// PutLease upserts a lease record, keyed by its workload ID.
func (s *BoltStore) PutLease(lease *types.Lease) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		data, err := json.Marshal(lease)
		if err != nil {
			return err
		}
		return b.Put(leaseKey(lease.WorkloadID), data)
	})
}

// GetLease fetches a single lease record by workload ID.
func (s *BoltStore) GetLease(workloadID int64) (*types.Lease, error) {
	var lease types.Lease
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		data := b.Get(leaseKey(workloadID))
		if data == nil {
			return fmt.Errorf("lease not found: %d", workloadID)
		}
		return json.Unmarshal(data, &lease)
	})
	if err != nil {
		return nil, err
	}
	return &lease, nil
}

// ListLeases returns every persisted lease record, used to rebuild the
// in-memory registry after a restart.
func (s *BoltStore) ListLeases() ([]*types.Lease, error) {
	var leases []*types.Lease
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		return b.ForEach(func(k, v []byte) error {
			var lease types.Lease
			if err := json.Unmarshal(v, &lease); err != nil {
				return err
			}
			leases = append(leases, &lease)
			return nil
		})
	})
	return leases, err
}

// DeleteLease removes a lease record, called once a lease is fully
// reclaimed and its backend workload torn down.
func (s *BoltStore) DeleteLease(workloadID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		return b.Delete(leaseKey(workloadID))
	})
}

func leaseKey(workloadID int64) []byte {
	return []byte(strconv.FormatInt(workloadID, 10))
}
