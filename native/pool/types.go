package pool

import (
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"reservehook/crypto"
)

// Asset identifiers escrowed by the manager.
const (
	AssetNRV = "NRV"
	AssetZRV = "ZRV"
)

// PoolKey identifies a pool by its ordered asset tuple, fee, and granularity.
type PoolKey struct {
	Asset0  string
	Asset1  string
	FeeBps  uint32
	Spacing int32
}

// ID returns the keccak digest registered pools are keyed by.
func (k PoolKey) ID() [32]byte {
	return ethcrypto.Keccak256Hash(
		[]byte(NormalizeAsset(k.Asset0)),
		[]byte(NormalizeAsset(k.Asset1)),
		[]byte{byte(k.FeeBps >> 24), byte(k.FeeBps >> 16), byte(k.FeeBps >> 8), byte(k.FeeBps)},
		[]byte{byte(uint32(k.Spacing) >> 24), byte(uint32(k.Spacing) >> 16), byte(uint32(k.Spacing) >> 8), byte(uint32(k.Spacing))},
	)
}

// NormalizeAsset canonicalises an asset identifier.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// SwapParams carries one swap request. AmountSpecified is signed: negative
// requests exact-input semantics, positive (or zero) exact-output.
type SwapParams struct {
	ZeroForOne      bool
	AmountSpecified *big.Int
}

// ExactInput reports whether the request uses exact-input semantics.
func (p SwapParams) ExactInput() bool {
	return p.AmountSpecified != nil && p.AmountSpecified.Sign() < 0
}

// BalanceDelta is a signed pair of balance changes from the swapper's
// perspective: negative means the swapper owes the asset, positive that the
// swapper is owed it.
type BalanceDelta struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// NewBalanceDelta returns a delta with both legs set, defaulting nils to zero.
func NewBalanceDelta(amount0, amount1 *big.Int) BalanceDelta {
	d := BalanceDelta{Amount0: big.NewInt(0), Amount1: big.NewInt(0)}
	if amount0 != nil {
		d.Amount0 = new(big.Int).Set(amount0)
	}
	if amount1 != nil {
		d.Amount1 = new(big.Int).Set(amount1)
	}
	return d
}

// HookPermissions declares the capability flags a hook registers interest in.
// Exactly these four dispatch points exist.
type HookPermissions struct {
	BeforeInitialize       bool
	BeforeAddLiquidity     bool
	BeforeSwap             bool
	BeforeSwapReturnsDelta bool
}

// Hook is invoked by the manager ahead of the operations its permissions
// declare. A hook that returns an override delta from BeforeSwap (and holds
// the return-override permission) fully settles the swap itself; the manager
// then applies no pricing of its own.
type Hook interface {
	Address() crypto.Address
	Permissions() HookPermissions
	BeforeInitialize(sender crypto.Address, key PoolKey) error
	BeforeAddLiquidity(sender crypto.Address, key PoolKey, liquidityDelta *big.Int) error
	BeforeSwap(sender crypto.Address, key PoolKey, params SwapParams) (BalanceDelta, bool, error)
}

// UnlockCallback is the single reentrant callback invoked inside the
// transactional context opened by Unlock.
type UnlockCallback interface {
	UnlockCallback(payload []byte) ([]byte, error)
}
