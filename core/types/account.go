package types

import "math/big"

// Account holds the balances tracked for a single address. BalanceNRV is the
// native asset, BalanceZRV the 1:1 reserve-backed token, and BalanceWNRV the
// wrapped-native representation accepted by the deposit path.
type Account struct {
	Nonce       uint64   `json:"nonce"`
	BalanceNRV  *big.Int `json:"balanceNRV"`
	BalanceZRV  *big.Int `json:"balanceZRV"`
	BalanceWNRV *big.Int `json:"balanceWNRV"`
}

// NewAccount returns an account with all balances initialised to zero.
func NewAccount() *Account {
	return &Account{
		BalanceNRV:  big.NewInt(0),
		BalanceZRV:  big.NewInt(0),
		BalanceWNRV: big.NewInt(0),
	}
}

// Normalize replaces nil balance pointers with zero values so callers can
// operate on the account without nil checks.
func (a *Account) Normalize() {
	if a.BalanceNRV == nil {
		a.BalanceNRV = big.NewInt(0)
	}
	if a.BalanceZRV == nil {
		a.BalanceZRV = big.NewInt(0)
	}
	if a.BalanceWNRV == nil {
		a.BalanceWNRV = big.NewInt(0)
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Nonce: a.Nonce}
	if a.BalanceNRV != nil {
		clone.BalanceNRV = new(big.Int).Set(a.BalanceNRV)
	}
	if a.BalanceZRV != nil {
		clone.BalanceZRV = new(big.Int).Set(a.BalanceZRV)
	}
	if a.BalanceWNRV != nil {
		clone.BalanceWNRV = new(big.Int).Set(a.BalanceWNRV)
	}
	clone.Normalize()
	return clone
}
