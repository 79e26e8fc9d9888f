package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Identity is a Provider or workload's signing keypair. Offers and
// Heartbeats are signed with the private key; peers verify with the
// public key advertised alongside them.
type Identity struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// NewIdentity generates a fresh ed25519 keypair.
func NewIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity keypair: %w", err)
	}
	return &Identity{PublicKey: pub, PrivateKey: priv}, nil
}

// IdentityFromSeed rebuilds an Identity from a 32-byte seed, as loaded
// from a Provider config file. Deterministic: the same seed always
// yields the same keypair.
func IdentityFromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Identity{PublicKey: priv.Public().(ed25519.PublicKey), PrivateKey: priv}, nil
}

// Npub returns the hex-encoded public key used as the provider_npub /
// pod_npub identifier throughout the wire protocol. podlease does not
// implement bech32 npub encoding itself; hex is a valid, if less
// decorative, stand-in for the same identifier role.
func (id *Identity) Npub() string {
	return hex.EncodeToString(id.PublicKey)
}

// Seed returns the 32-byte seed suitable for persisting in a config file
// and reconstructing via IdentityFromSeed.
func (id *Identity) Seed() []byte {
	return id.PrivateKey.Seed()
}

// Sign signs data with the identity's private key.
func (id *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(id.PrivateKey, data)
}

// Verify checks a signature produced by Sign against a hex-encoded
// public key (as carried in provider_npub / pod_npub fields).
func Verify(npub string, data, sig []byte) (bool, error) {
	pub, err := hex.DecodeString(npub)
	if err != nil {
		return false, fmt.Errorf("invalid npub encoding: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid npub length: got %d bytes, want %d", len(pub), ed25519.PublicKeySize)
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig), nil
}
