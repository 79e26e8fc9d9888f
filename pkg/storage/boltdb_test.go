package storage

import (
	"testing"
	"time"

	"github.com/cuemby/podlease/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewBoltStore(dir)
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedeemedTokenRoundtrip(t *testing.T) {
	s := newTestStore(t)

	redeemed, err := s.IsTokenRedeemed("tok-1")
	if err != nil {
		t.Fatalf("IsTokenRedeemed() error = %v", err)
	}
	if redeemed {
		t.Fatal("IsTokenRedeemed() = true before any redemption")
	}

	if err := s.MarkTokenRedeemed(&RedeemedToken{ID: "tok-1", RedeemedAt: time.Now().Unix(), AmountMsats: 5000}); err != nil {
		t.Fatalf("MarkTokenRedeemed() error = %v", err)
	}

	redeemed, err = s.IsTokenRedeemed("tok-1")
	if err != nil {
		t.Fatalf("IsTokenRedeemed() error = %v", err)
	}
	if !redeemed {
		t.Error("IsTokenRedeemed() = false after redemption")
	}
}

func TestLeaseRoundtrip(t *testing.T) {
	s := newTestStore(t)

	lease := &types.Lease{
		WorkloadID: 42,
		TierID:     "small",
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
		HostPort:   30001,
	}

	if err := s.PutLease(lease); err != nil {
		t.Fatalf("PutLease() error = %v", err)
	}

	got, err := s.GetLease(42)
	if err != nil {
		t.Fatalf("GetLease() error = %v", err)
	}
	if got.TierID != "small" || got.HostPort != 30001 {
		t.Errorf("GetLease() = %+v, want tier small port 30001", got)
	}

	list, err := s.ListLeases()
	if err != nil {
		t.Fatalf("ListLeases() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListLeases() returned %d leases, want 1", len(list))
	}

	if err := s.DeleteLease(42); err != nil {
		t.Fatalf("DeleteLease() error = %v", err)
	}

	if _, err := s.GetLease(42); err == nil {
		t.Error("GetLease() should fail after deletion")
	}
}

func TestListLeasesEmpty(t *testing.T) {
	s := newTestStore(t)

	list, err := s.ListLeases()
	if err != nil {
		t.Fatalf("ListLeases() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListLeases() = %d entries, want 0", len(list))
	}
}
