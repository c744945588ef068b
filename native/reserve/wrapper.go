package reserve

import (
	"errors"
	"math/big"

	"reservehook/core/types"
	"reservehook/crypto"
)

var (
	errWrapperNilState    = errors.New("wrapper: state not configured")
	errWrapperAmount      = errors.New("wrapper: amount must be positive")
	errWrapperBalance     = errors.New("wrapper: wrapped balance insufficient")
	errWrapperUnderfunded = errors.New("wrapper: native backing insufficient")
)

type wrapperState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// AccountWrapper models the wrapped-native collaborator: WNRV is fully backed
// by native asset parked at the wrapper's module address, and unwrapping burns
// WNRV against a matching native release.
type AccountWrapper struct {
	state         wrapperState
	moduleAddress crypto.Address
}

// NewAccountWrapper constructs a wrapper whose native backing sits at moduleAddr.
func NewAccountWrapper(state wrapperState, moduleAddr crypto.Address) *AccountWrapper {
	return &AccountWrapper{state: state, moduleAddress: moduleAddr}
}

// Wrap converts owner's native asset into WNRV 1:1.
func (w *AccountWrapper) Wrap(owner crypto.Address, amount *big.Int) error {
	if w == nil || w.state == nil {
		return errWrapperNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return errWrapperAmount
	}
	ownerAcc, err := w.state.GetAccount(owner)
	if err != nil {
		return err
	}
	if ownerAcc.BalanceNRV.Cmp(amount) < 0 {
		return errWrapperUnderfunded
	}
	moduleAcc, err := w.state.GetAccount(w.moduleAddress)
	if err != nil {
		return err
	}
	ownerAcc.BalanceNRV = new(big.Int).Sub(ownerAcc.BalanceNRV, amount)
	ownerAcc.BalanceWNRV = new(big.Int).Add(ownerAcc.BalanceWNRV, amount)
	moduleAcc.BalanceNRV = new(big.Int).Add(moduleAcc.BalanceNRV, amount)
	if err := w.state.PutAccount(owner, ownerAcc); err != nil {
		return err
	}
	return w.state.PutAccount(w.moduleAddress, moduleAcc)
}

// Unwrap burns owner's WNRV and releases the backing native asset to recipient.
func (w *AccountWrapper) Unwrap(owner crypto.Address, amount *big.Int, recipient crypto.Address) error {
	if w == nil || w.state == nil {
		return errWrapperNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return errWrapperAmount
	}
	ownerAcc, err := w.state.GetAccount(owner)
	if err != nil {
		return err
	}
	if ownerAcc.BalanceWNRV.Cmp(amount) < 0 {
		return errWrapperBalance
	}
	moduleAcc, err := w.state.GetAccount(w.moduleAddress)
	if err != nil {
		return err
	}
	if moduleAcc.BalanceNRV.Cmp(amount) < 0 {
		return errWrapperUnderfunded
	}
	ownerAcc.BalanceWNRV = new(big.Int).Sub(ownerAcc.BalanceWNRV, amount)
	moduleAcc.BalanceNRV = new(big.Int).Sub(moduleAcc.BalanceNRV, amount)
	if err := w.state.PutAccount(owner, ownerAcc); err != nil {
		return err
	}
	if err := w.state.PutAccount(w.moduleAddress, moduleAcc); err != nil {
		return err
	}
	recipientAcc, err := w.state.GetAccount(recipient)
	if err != nil {
		return err
	}
	recipientAcc.BalanceNRV = new(big.Int).Add(recipientAcc.BalanceNRV, amount)
	return w.state.PutAccount(recipient, recipientAcc)
}
