package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cuemby/podlease/pkg/security"
)

// Kind identifies the logical channel an Event was published on.
// Numbering uses small stable integers rather than free-form strings,
// so a filter can match on a cheap equality check.
type Kind int

const (
	KindOffer     Kind = 1000
	KindHeartbeat Kind = 1001
	KindDM        Kind = 4 // encrypted direct message
)

// Event is the signed envelope every Offer, Heartbeat and DM travels in,
// adapted from the NostrEvent shape the original relay client
// converted server-side events into (id, pubkey, created_at, kind,
// tags, content, sig).
type Event struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      Kind       `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// computeID derives the event id as the hex sha256 digest of its
// signable fields, mirroring the canonical-serialization-then-hash
// pattern relay protocols use so any party can recompute and verify id.
func computeID(pubkey string, createdAt int64, kind Kind, tags [][]string, content string) (string, []byte) {
	canonical, _ := json.Marshal([]interface{}{0, pubkey, createdAt, kind, tags, content})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), sum[:]
}

// NewEvent builds and signs an Event authored by identity.
func NewEvent(identity *security.Identity, kind Kind, tags [][]string, content string, createdAt int64) Event {
	pubkey := identity.Npub()
	id, digest := computeID(pubkey, createdAt, kind, tags, content)
	sig := identity.Sign(digest)

	return Event{
		ID:        id,
		Pubkey:    pubkey,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
		Sig:       hex.EncodeToString(sig),
	}
}

// Verify checks an event's id and signature against its author's
// claimed pubkey.
func (e Event) Verify() (bool, error) {
	wantID, digest := computeID(e.Pubkey, e.CreatedAt, e.Kind, e.Tags, e.Content)
	if wantID != e.ID {
		return false, fmt.Errorf("event id mismatch: computed %s, got %s", wantID, e.ID)
	}

	sig, err := hex.DecodeString(e.Sig)
	if err != nil {
		return false, fmt.Errorf("invalid signature encoding: %w", err)
	}

	return security.Verify(e.Pubkey, digest, sig)
}
