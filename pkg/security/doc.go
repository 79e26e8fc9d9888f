/*
Package security provides cryptographic services for a podlease Provider:
an AES-256-GCM encrypt/decrypt helper (SecretsManager) and Provider/workload
identity keypairs used to sign Offers and Heartbeats and to derive
npub-style identifiers (ed25519, via Identity).

DeriveKeyFromProviderID derives a deterministic 32-byte key from a
Provider's identity. pkg/storage does not use SecretsManager: the bbolt
store keeps its redemption and lease records as plain JSON.
*/
package security
