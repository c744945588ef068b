package hook

import (
	"errors"
	"math/big"

	"reservehook/crypto"
	"reservehook/native/pool"
)

var (
	errNilDependency    = errors.New("settlement hook: manager or ledger not configured")
	errWrongPair        = errors.New("settlement hook: pair must be exactly NRV/ZRV")
	errNonzeroFee       = errors.New("settlement hook: fee must be zero")
	errLiquidityBlocked = errors.New("settlement hook: liquidity provisioning not allowed")
	errInvalidAmount    = errors.New("settlement hook: amount must be nonzero")
)

type escrow interface {
	Take(caller crypto.Address, asset string, recipient crypto.Address, amount *big.Int) error
	Settle(caller crypto.Address, asset string, payer crypto.Address, amount *big.Int) error
}

type ledger interface {
	Deposit(caller crypto.Address, nativeAmount, wrappedAmount *big.Int) (*big.Int, error)
	Withdraw(caller crypto.Address, amount *big.Int) (*big.Int, error)
}

// ReserveHook reroutes every swap on the NRV/ZRV pair through the reserve
// ledger's fixed 1:1 conversion. It admits exactly one pair at fee zero,
// blocks all liquidity provisioning, and settles each trade fully inside
// BeforeSwap so the venue applies no pricing of its own.
type ReserveHook struct {
	address crypto.Address
	escrow  escrow
	ledger  ledger
}

// NewReserveHook constructs a hook with its own custody account at addr.
func NewReserveHook(addr crypto.Address, escrow escrow, ledger ledger) *ReserveHook {
	return &ReserveHook{address: addr, escrow: escrow, ledger: ledger}
}

// Address returns the hook's custody account.
func (h *ReserveHook) Address() crypto.Address { return h.address }

// Permissions declares the four dispatch points this hook participates in.
func (h *ReserveHook) Permissions() pool.HookPermissions {
	return pool.HookPermissions{
		BeforeInitialize:       true,
		BeforeAddLiquidity:     true,
		BeforeSwap:             true,
		BeforeSwapReturnsDelta: true,
	}
}

// BeforeInitialize admits only the {NRV, ZRV} pair, in that order, at fee
// zero. Any fee would leak value against the 1:1 guarantee.
func (h *ReserveHook) BeforeInitialize(_ crypto.Address, key pool.PoolKey) error {
	if pool.NormalizeAsset(key.Asset0) != pool.AssetNRV || pool.NormalizeAsset(key.Asset1) != pool.AssetZRV {
		return errWrongPair
	}
	if key.FeeBps != 0 {
		return errNonzeroFee
	}
	return nil
}

// BeforeAddLiquidity fails unconditionally: the pair exists only as a routing
// surface for the ledger's conversion, not as a constant-product market.
func (h *ReserveHook) BeforeAddLiquidity(crypto.Address, pool.PoolKey, *big.Int) error {
	return errLiquidityBlocked
}

// BeforeSwap pulls the input out of escrow, converts it through the ledger
// (deposit for NRV in, withdraw for ZRV in), pushes the output back, and
// returns the override delta that marks the trade fully settled.
func (h *ReserveHook) BeforeSwap(_ crypto.Address, key pool.PoolKey, params pool.SwapParams) (pool.BalanceDelta, bool, error) {
	if h == nil || h.escrow == nil || h.ledger == nil {
		return pool.BalanceDelta{}, false, errNilDependency
	}
	if params.AmountSpecified == nil || params.AmountSpecified.Sign() == 0 {
		return pool.BalanceDelta{}, false, errInvalidAmount
	}
	amount := new(big.Int).Abs(params.AmountSpecified)

	assetIn := pool.NormalizeAsset(key.Asset0)
	assetOut := pool.NormalizeAsset(key.Asset1)
	if !params.ZeroForOne {
		assetIn, assetOut = assetOut, assetIn
	}

	if err := h.escrow.Take(h.address, assetIn, h.address, amount); err != nil {
		return pool.BalanceDelta{}, false, err
	}
	if assetIn == pool.AssetNRV {
		if _, err := h.ledger.Deposit(h.address, amount, nil); err != nil {
			return pool.BalanceDelta{}, false, err
		}
	} else {
		if _, err := h.ledger.Withdraw(h.address, amount); err != nil {
			return pool.BalanceDelta{}, false, err
		}
	}
	if err := h.escrow.Settle(h.address, assetOut, h.address, amount); err != nil {
		return pool.BalanceDelta{}, false, err
	}

	// The conversion is 1:1: the swapper owes exactly the requested amount of
	// the input and is owed the same amount of the output.
	negAmount := new(big.Int).Neg(amount)
	if params.ZeroForOne {
		return pool.NewBalanceDelta(negAmount, amount), true, nil
	}
	return pool.NewBalanceDelta(amount, negAmount), true, nil
}
