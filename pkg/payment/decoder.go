package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/podlease/pkg/metrics"
	"github.com/cuemby/podlease/pkg/storage"
	"github.com/cuemby/podlease/pkg/types"
)

// RedemptionStore is the slice of storage.Store the Decoder needs. A
// narrow interface so tests can supply an in-memory fake instead of a
// real bbolt file.
type RedemptionStore interface {
	IsTokenRedeemed(id string) (bool, error)
	MarkTokenRedeemed(tok *storage.RedeemedToken) error
}

// Decoder verifies and redeems cashu tokens, enforcing at-most-once
// redemption against a RedemptionStore.
type Decoder struct {
	wallet           Wallet
	store            RedemptionStore
	whitelistedMints []string
}

// NewDecoder builds a Decoder. whitelistedMints is the Provider's
// configured set of acceptable mint URLs.
func NewDecoder(wallet Wallet, store RedemptionStore, whitelistedMints []string) *Decoder {
	return &Decoder{wallet: wallet, store: store, whitelistedMints: whitelistedMints}
}

// TokenID derives the redemption-set key for a raw token string. A
// SHA-256 digest rather than the wallet's own proof secrets, so the
// redemption set doesn't need wallet-internal knowledge to check.
func TokenID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Redeem runs the full verification sequence: decode, verify sufficient
// amount, verify mint whitelist, check-already-redeemed, receive, record.
// Returns the redeemed amount in msats.
func (d *Decoder) Redeem(token string, requiredMsats int64) (int64, error) {
	timer := metrics.NewTimer()
	amountMsats, err := d.redeem(token, requiredMsats)
	timer.ObserveDuration(metrics.RedemptionDuration)
	metrics.RedemptionsTotal.WithLabelValues(redemptionOutcome(err)).Inc()
	return amountMsats, err
}

// redemptionOutcome maps a Redeem error to the "outcome" label podlease_redemptions_total uses.
func redemptionOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var typed *types.TypedError
	if errors.As(err, &typed) {
		return string(typed.Kind)
	}
	return "error"
}

func (d *Decoder) redeem(token string, requiredMsats int64) (int64, error) {
	id := TokenID(token)

	decoded, err := d.wallet.Decode(token)
	if err != nil {
		return 0, types.NewTypedError(types.ErrInvalidToken, fmt.Errorf("decoding cashu token: %w", err))
	}

	amountMsats, err := normalizeUnit(decoded)
	if err != nil {
		return 0, types.NewTypedError(types.ErrInvalidToken, err)
	}

	if amountMsats < requiredMsats {
		return 0, types.NewTypedError(types.ErrInsufficientPayment,
			fmt.Errorf("token carries %d msats, need at least %d", amountMsats, requiredMsats))
	}

	if !IsMintWhitelisted(decoded.MintURL, d.whitelistedMints) {
		return 0, types.NewTypedError(types.ErrMintNotWhitelisted,
			fmt.Errorf("mint %q is not whitelisted", decoded.MintURL))
	}

	// Consulted before contacting the mint to avoid a wasted round-trip;
	// the mint's own redemption call remains the authoritative signal.
	alreadyRedeemed, err := d.store.IsTokenRedeemed(id)
	if err != nil {
		return 0, types.NewTypedError(types.ErrBackendError, fmt.Errorf("checking redemption set: %w", err))
	}
	if alreadyRedeemed {
		return 0, types.NewTypedError(types.ErrTokenAlreadyUsed, fmt.Errorf("token already redeemed"))
	}

	if err := d.wallet.Receive(token); err != nil {
		return 0, types.NewTypedError(types.ErrInvalidToken, fmt.Errorf("redeeming token: %w", err))
	}

	if err := d.store.MarkTokenRedeemed(&storage.RedeemedToken{
		ID:          id,
		RedeemedAt:  time.Now().Unix(),
		AmountMsats: amountMsats,
	}); err != nil {
		return 0, types.NewTypedError(types.ErrBackendError, fmt.Errorf("recording redemption: %w", err))
	}

	return amountMsats, nil
}

func normalizeUnit(decoded *DecodedToken) (int64, error) {
	switch decoded.Unit {
	case "sat":
		return decoded.Amount * MsatsPerSat, nil
	case "msat", "":
		return decoded.Amount, nil
	default:
		return 0, fmt.Errorf("unsupported token unit: %s", decoded.Unit)
	}
}
