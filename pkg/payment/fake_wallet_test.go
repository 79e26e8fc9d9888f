package payment

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/podlease/pkg/storage"
)

// fakeWallet is a deterministic stand-in for a real cashu Wallet, used
// only in this package's tests. Tokens are encoded as
// "mint|unit|amount|ok" so Decode is fully controlled by the test
// without needing a real mint connection; the fourth field is not read,
// and Receive returns receiveErr.
type fakeWallet struct {
	receiveErr error
}

func (w *fakeWallet) Decode(token string) (*DecodedToken, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 4 {
		return nil, fmt.Errorf("malformed fake token: %s", token)
	}
	amount, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed amount: %w", err)
	}
	return &DecodedToken{MintURL: parts[0], Unit: parts[1], Amount: amount}, nil
}

func (w *fakeWallet) Receive(token string) error {
	return w.receiveErr
}

func fakeToken(mint, unit string, amount int64) string {
	return fmt.Sprintf("%s|%s|%d|ok", mint, unit, amount)
}

// memStore is a minimal in-memory RedemptionStore fake.
type memStore struct {
	redeemed map[string]bool
}

func newMemStore() *memStore {
	return &memStore{redeemed: map[string]bool{}}
}

func (s *memStore) IsTokenRedeemed(id string) (bool, error) {
	return s.redeemed[id], nil
}

func (s *memStore) MarkTokenRedeemed(tok *storage.RedeemedToken) error {
	s.redeemed[tok.ID] = true
	return nil
}
