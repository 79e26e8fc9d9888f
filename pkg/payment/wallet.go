package payment

import "fmt"

// DecodedToken is the result of parsing a cashu token string without yet
// redeeming it: enough information to check amount and mint whitelist
// before touching the wallet's mint connection.
type DecodedToken struct {
	MintURL string
	Unit    string // "sat" or "msat"
	Amount  int64  // denominated in Unit, not yet converted to msats
}

// MsatsPerSat is the unit conversion used when a token's proofs are
// denominated in satoshis rather than millisatoshis.
const MsatsPerSat = 1000

// Wallet is the external collaborator that understands the actual
// cashu/ecash wire format and talks to mints. The wallet implementation
// itself is out of scope; podlease only needs to decode and redeem.
type Wallet interface {
	// Decode parses a token string and reports its mint and amount
	// without spending it. Must not have side effects.
	Decode(token string) (*DecodedToken, error)

	// Receive redeems the token against its mint. Returns an error if
	// the mint rejects it (already spent there, network failure, etc).
	Receive(token string) error
}

// NullWallet rejects every token it sees. It is the Wallet a provider
// starts up with until a real cashu mint client is wired in; without
// one, every spawn/topup request fails closed with ErrInvalidToken
// rather than a nil-pointer panic.
type NullWallet struct{}

// NewNullWallet builds a NullWallet.
func NewNullWallet() *NullWallet { return &NullWallet{} }

func (NullWallet) Decode(token string) (*DecodedToken, error) {
	return nil, fmt.Errorf("no cashu wallet configured for this provider")
}

func (NullWallet) Receive(token string) error {
	return fmt.Errorf("no cashu wallet configured for this provider")
}
