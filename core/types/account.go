package types

import "math/big"

// Account is the ledger entry backing every transacting identity. Balances
// are denominated in the smallest currency unit.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// Copy returns a deep copy with a non-nil balance so callers can mutate the
// result without touching the stored account.
func (a *Account) Copy() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}
