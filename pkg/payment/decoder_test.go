package payment

import (
	"errors"
	"testing"

	"github.com/cuemby/podlease/pkg/types"
)

func TestRedeemSuccess(t *testing.T) {
	d := NewDecoder(&fakeWallet{}, newMemStore(), []string{"https://mint.example.com"})

	amount, err := d.Redeem(fakeToken("https://mint.example.com", "sat", 10), 1000)
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}
	if amount != 10000 {
		t.Errorf("Redeem() amount = %d, want 10000 msats", amount)
	}
}

func TestRedeemRejectsDoubleSpend(t *testing.T) {
	store := newMemStore()
	d := NewDecoder(&fakeWallet{}, store, []string{"https://mint.example.com"})

	token := fakeToken("https://mint.example.com", "msat", 5000)

	if _, err := d.Redeem(token, 1000); err != nil {
		t.Fatalf("first Redeem() error = %v", err)
	}

	_, err := d.Redeem(token, 1000)
	var typed *types.TypedError
	if !errors.As(err, &typed) || typed.Kind != types.ErrTokenAlreadyUsed {
		t.Fatalf("second Redeem() error = %v, want ErrTokenAlreadyUsed", err)
	}
}

func TestRedeemRejectsInsufficientPayment(t *testing.T) {
	d := NewDecoder(&fakeWallet{}, newMemStore(), []string{"https://mint.example.com"})

	_, err := d.Redeem(fakeToken("https://mint.example.com", "msat", 100), 1000)
	var typed *types.TypedError
	if !errors.As(err, &typed) || typed.Kind != types.ErrInsufficientPayment {
		t.Fatalf("Redeem() error = %v, want ErrInsufficientPayment", err)
	}
}

func TestRedeemRejectsUnwhitelistedMint(t *testing.T) {
	d := NewDecoder(&fakeWallet{}, newMemStore(), []string{"https://mint.example.com"})

	_, err := d.Redeem(fakeToken("https://evil.example.com", "msat", 5000), 1000)
	var typed *types.TypedError
	if !errors.As(err, &typed) || typed.Kind != types.ErrMintNotWhitelisted {
		t.Fatalf("Redeem() error = %v, want ErrMintNotWhitelisted", err)
	}
}

func TestRedeemRejectsUnsupportedUnit(t *testing.T) {
	d := NewDecoder(&fakeWallet{}, newMemStore(), []string{"https://mint.example.com"})

	_, err := d.Redeem(fakeToken("https://mint.example.com", "usd", 5000), 1000)
	var typed *types.TypedError
	if !errors.As(err, &typed) || typed.Kind != types.ErrInvalidToken {
		t.Fatalf("Redeem() error = %v, want ErrInvalidToken", err)
	}
}

func TestRedeemPropagatesWalletReceiveFailure(t *testing.T) {
	d := NewDecoder(&fakeWallet{receiveErr: errors.New("mint unreachable")}, newMemStore(), []string{"https://mint.example.com"})

	_, err := d.Redeem(fakeToken("https://mint.example.com", "msat", 5000), 1000)
	var typed *types.TypedError
	if !errors.As(err, &typed) || typed.Kind != types.ErrInvalidToken {
		t.Fatalf("Redeem() error = %v, want ErrInvalidToken on receive failure", err)
	}
}

func TestTokenIDIsStableAndDistinct(t *testing.T) {
	a := TokenID("token-a")
	b := TokenID("token-b")
	if a == b {
		t.Error("distinct tokens produced the same ID")
	}
	if a != TokenID("token-a") {
		t.Error("TokenID() is not deterministic")
	}
}
