package yield

import (
	"errors"
	"math/big"

	"reservehook/core/types"
	"reservehook/crypto"
)

var (
	errNilState            = errors.New("yield venue: state not configured")
	errInvalidAmount       = errors.New("yield venue: amount must be positive")
	errInsufficientFunding = errors.New("yield venue: ledger balance insufficient")
	errInsufficientBalance = errors.New("yield venue: balance insufficient")
)

// Venue is the interface the reserve ledger consumes. Implementations hold
// invested native asset, report its current value, and honour withdrawals on
// the ledger's behalf.
type Venue interface {
	ConvertToYieldForm(amount *big.Int) error
	Withdraw(amount *big.Int, recipient crypto.Address) error
	BalanceInNative() (*big.Int, error)
	IsUnwinding() bool
}

type venueState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, acc *types.Account) error
}

// StrategyVenue is an account-backed venue: invested funds sit in the venue's
// own module account and external appreciation is reported by crediting that
// account. Fund movement is always between the ledger module address and the
// venue address, so no third party can route value through it.
type StrategyVenue struct {
	state         venueState
	venueAddress  crypto.Address
	ledgerAddress crypto.Address
	unwinding     bool
}

// NewStrategyVenue constructs a venue holding funds at venueAddr on behalf of
// the ledger module account at ledgerAddr.
func NewStrategyVenue(state venueState, venueAddr, ledgerAddr crypto.Address) *StrategyVenue {
	return &StrategyVenue{state: state, venueAddress: venueAddr, ledgerAddress: ledgerAddr}
}

// ConvertToYieldForm pulls native asset from the ledger module account into
// the venue's invested balance.
func (v *StrategyVenue) ConvertToYieldForm(amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	ledgerAcc, err := v.state.GetAccount(v.ledgerAddress)
	if err != nil {
		return err
	}
	if ledgerAcc.BalanceNRV.Cmp(amount) < 0 {
		return errInsufficientFunding
	}
	venueAcc, err := v.state.GetAccount(v.venueAddress)
	if err != nil {
		return err
	}
	ledgerAcc.BalanceNRV = new(big.Int).Sub(ledgerAcc.BalanceNRV, amount)
	venueAcc.BalanceNRV = new(big.Int).Add(venueAcc.BalanceNRV, amount)
	if err := v.state.PutAccount(v.ledgerAddress, ledgerAcc); err != nil {
		return err
	}
	return v.state.PutAccount(v.venueAddress, venueAcc)
}

// Withdraw releases exactly amount of native-equivalent value to recipient.
func (v *StrategyVenue) Withdraw(amount *big.Int, recipient crypto.Address) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	venueAcc, err := v.state.GetAccount(v.venueAddress)
	if err != nil {
		return err
	}
	if venueAcc.BalanceNRV.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	recipientAcc, err := v.state.GetAccount(recipient)
	if err != nil {
		return err
	}
	venueAcc.BalanceNRV = new(big.Int).Sub(venueAcc.BalanceNRV, amount)
	recipientAcc.BalanceNRV = new(big.Int).Add(recipientAcc.BalanceNRV, amount)
	if err := v.state.PutAccount(v.venueAddress, venueAcc); err != nil {
		return err
	}
	return v.state.PutAccount(recipient, recipientAcc)
}

// BalanceInNative reports the venue's current invested value.
func (v *StrategyVenue) BalanceInNative() (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	acc, err := v.state.GetAccount(v.venueAddress)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.BalanceNRV), nil
}

// IsUnwinding reports the transitional flag; while set, rebalance pushes are
// suppressed by the ledger.
func (v *StrategyVenue) IsUnwinding() bool {
	if v == nil {
		return false
	}
	return v.unwinding
}

// SetUnwinding toggles the transitional flag. Gated on the ledger's owner by
// the reserve engine, not here.
func (v *StrategyVenue) SetUnwinding(unwinding bool) {
	if v == nil {
		return
	}
	v.unwinding = unwinding
}

// UnwindToNative pushes invested funds back to the ledger module account.
func (v *StrategyVenue) UnwindToNative(amount *big.Int) error {
	return v.Withdraw(amount, v.ledgerAddress)
}

// EmergencyRescue sweeps the venue's entire invested balance to recipient,
// bypassing accounting checks.
func (v *StrategyVenue) EmergencyRescue(recipient crypto.Address) (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	balance, err := v.BalanceInNative()
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := v.Withdraw(balance, recipient); err != nil {
		return nil, err
	}
	return balance, nil
}

// CreditYield models external appreciation of the invested balance, e.g.
// interest reported by the underlying protocol.
func (v *StrategyVenue) CreditYield(amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	acc, err := v.state.GetAccount(v.venueAddress)
	if err != nil {
		return err
	}
	acc.BalanceNRV = new(big.Int).Add(acc.BalanceNRV, amount)
	return v.state.PutAccount(v.venueAddress, acc)
}
