package relay

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"

	"github.com/cuemby/podlease/pkg/security"
)

// Cipher end-to-end encrypts a DirectMessage's payload to a single
// recipient, identified by the same npub used for Offer/Heartbeat
// signatures.
type Cipher interface {
	Encrypt(sender *security.Identity, recipientNpub string, plaintext []byte) ([]byte, error)
	Decrypt(self *security.Identity, senderNpub string, ciphertext []byte) ([]byte, error)
}

// NaClCipher is the default Cipher, using NaCl box (X25519 + XSalsa20 +
// Poly1305). Every identity's signing keypair doubles as its encryption
// keypair via the standard Edwards25519-to-Curve25519 birational map, so
// no separate encryption key needs to be distributed alongside a
// Provider's npub.
type NaClCipher struct{}

var fieldPrime = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 255)
	return p.Sub(p, big.NewInt(19))
}()

// edPublicKeyToX25519 converts an Ed25519 public key (the Edwards curve
// point's y-coordinate, little-endian with a sign bit in the top byte)
// to its Curve25519 Montgomery-form public key via u = (1+y)/(1-y) mod p.
func edPublicKeyToX25519(edPub []byte) (*[32]byte, error) {
	if len(edPub) != 32 {
		return nil, fmt.Errorf("ed25519 public key must be 32 bytes, got %d", len(edPub))
	}

	yBytes := make([]byte, 32)
	copy(yBytes, edPub)
	yBytes[31] &= 0x7f // clear the sign bit

	// Decode little-endian.
	for i, j := 0, len(yBytes)-1; i < j; i, j = i+1, j-1 {
		yBytes[i], yBytes[j] = yBytes[j], yBytes[i]
	}
	y := new(big.Int).SetBytes(yBytes)

	one := big.NewInt(1)
	numerator := new(big.Int).Add(one, y)
	numerator.Mod(numerator, fieldPrime)

	denominator := new(big.Int).Sub(one, y)
	denominator.Mod(denominator, fieldPrime)

	inv := new(big.Int).ModInverse(denominator, fieldPrime)
	if inv == nil {
		return nil, fmt.Errorf("public key has no valid curve25519 equivalent")
	}

	u := new(big.Int).Mul(numerator, inv)
	u.Mod(u, fieldPrime)

	var out [32]byte
	uBytes := u.FillBytes(make([]byte, 32)) // big-endian
	for i, j := 0, len(uBytes)-1; i < j; i, j = i+1, j-1 {
		uBytes[i], uBytes[j] = uBytes[j], uBytes[i]
	}
	copy(out[:], uBytes)
	return &out, nil
}

// edPrivateKeyToX25519 derives the Curve25519 private scalar from an
// Ed25519 private key's seed, using the same SHA-512-and-clamp step
// Ed25519 itself uses to derive its signing scalar (RFC 8032 §5.1.5).
func edPrivateKeyToX25519(edPriv []byte) (*[32]byte, error) {
	if len(edPriv) != 64 {
		return nil, fmt.Errorf("ed25519 private key must be 64 bytes, got %d", len(edPriv))
	}
	seed := edPriv[:32]

	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64

	var out [32]byte
	copy(out[:], h[:32])
	return &out, nil
}

func boxKeysFromIdentity(id *security.Identity) (pub, priv *[32]byte, err error) {
	priv, err = edPrivateKeyToX25519(id.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	var computedPub [32]byte
	curve25519.ScalarBaseMult(&computedPub, priv)
	return &computedPub, priv, nil
}

func boxPublicKeyFromNpub(npub string) (*[32]byte, error) {
	edPub, err := hex.DecodeString(npub)
	if err != nil {
		return nil, fmt.Errorf("invalid npub encoding: %w", err)
	}
	return edPublicKeyToX25519(edPub)
}

// Encrypt seals plaintext to recipientNpub using NaCl box, with a fresh
// random nonce prepended to the ciphertext.
func (NaClCipher) Encrypt(sender *security.Identity, recipientNpub string, plaintext []byte) ([]byte, error) {
	_, senderPriv, err := boxKeysFromIdentity(sender)
	if err != nil {
		return nil, fmt.Errorf("failed to derive sender box key: %w", err)
	}

	recipientPub, err := boxPublicKeyFromNpub(recipientNpub)
	if err != nil {
		return nil, fmt.Errorf("failed to derive recipient box key: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := box.Seal(nonce[:], plaintext, &nonce, recipientPub, senderPriv)
	return sealed, nil
}

// Decrypt opens a ciphertext produced by Encrypt, verifying it was
// sealed by senderNpub for self.
func (NaClCipher) Decrypt(self *security.Identity, senderNpub string, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24 {
		return nil, fmt.Errorf("ciphertext too short to contain a nonce")
	}

	_, selfPriv, err := boxKeysFromIdentity(self)
	if err != nil {
		return nil, fmt.Errorf("failed to derive recipient box key: %w", err)
	}

	senderPub, err := boxPublicKeyFromNpub(senderNpub)
	if err != nil {
		return nil, fmt.Errorf("failed to derive sender box key: %w", err)
	}

	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])

	plaintext, ok := box.Open(nil, ciphertext[24:], &nonce, senderPub, selfPriv)
	if !ok {
		return nil, fmt.Errorf("failed to decrypt: authentication failed")
	}
	return plaintext, nil
}
