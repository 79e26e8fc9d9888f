package relay

import (
	"testing"

	"github.com/cuemby/podlease/pkg/security"
)

func newTestIdentity(t *testing.T) *security.Identity {
	t.Helper()
	id, err := security.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity() error = %v", err)
	}
	return id
}

func TestNewEventVerifies(t *testing.T) {
	id := newTestIdentity(t)
	event := NewEvent(id, KindOffer, nil, `{"hello":"world"}`, 1700000000)

	ok, err := event.Verify()
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !ok {
		t.Error("Verify() = false, want true")
	}
}

func TestEventVerifyRejectsTamperedContent(t *testing.T) {
	id := newTestIdentity(t)
	event := NewEvent(id, KindHeartbeat, nil, "original", 1700000000)

	event.Content = "tampered"

	ok, _ := event.Verify()
	if ok {
		t.Error("Verify() = true for tampered content, want false")
	}
}

func TestEventVerifyRejectsWrongSignature(t *testing.T) {
	id1 := newTestIdentity(t)
	id2 := newTestIdentity(t)

	event := NewEvent(id1, KindOffer, nil, "content", 1700000000)
	event.Pubkey = id2.Npub() // claim a different author without re-signing

	ok, _ := event.Verify()
	if ok {
		t.Error("Verify() = true with mismatched pubkey, want false")
	}
}

func TestComputeIDDeterministic(t *testing.T) {
	id1, _ := computeID("abc", 100, KindOffer, nil, "hello")
	id2, _ := computeID("abc", 100, KindOffer, nil, "hello")
	if id1 != id2 {
		t.Errorf("computeID() not deterministic: %s != %s", id1, id2)
	}

	id3, _ := computeID("abc", 100, KindOffer, nil, "goodbye")
	if id1 == id3 {
		t.Error("computeID() collided for different content")
	}
}
