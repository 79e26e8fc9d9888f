package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/podlease/pkg/security"
)

// LoadOrCreateIdentity reads a hex-encoded ed25519 seed from path,
// generating and persisting a new one if the file doesn't exist yet.
// Grounded on pkg/security/certs.go's GetCertDir/SaveCertToFile
// pattern (mkdir, write with restrictive permissions), generalized
// from a TLS certificate directory to a single seed file.
func LoadOrCreateIdentity(path string) (*security.Identity, error) {
	seedHex, err := os.ReadFile(path)
	if err == nil {
		seed, decodeErr := hex.DecodeString(string(trimNewline(seedHex)))
		if decodeErr != nil {
			return nil, fmt.Errorf("decoding identity seed at %s: %w", path, decodeErr)
		}
		return security.IdentityFromSeed(seed)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading identity seed at %s: %w", path, err)
	}

	identity, err := security.NewIdentity()
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(identity.Seed())), 0600); err != nil {
		return nil, fmt.Errorf("persisting identity seed to %s: %w", path, err)
	}

	return identity, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
