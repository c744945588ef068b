package events

import (
	"encoding/hex"
	"math/big"

	"reservehook/core/types"
	"reservehook/crypto"
)

const (
	TypePairInitialized = "settlement.pairInitialized"
	TypeSwapSettled     = "settlement.swapSettled"
	TypeSwapAborted     = "settlement.swapAborted"
)

// PairInitialized records a pool passing hook admission.
type PairInitialized struct {
	PoolID [32]byte
	Asset0 string
	Asset1 string
	FeeBps uint32
}

func (PairInitialized) EventType() string { return TypePairInitialized }

func (e PairInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypePairInitialized,
		Attributes: map[string]string{
			"poolId": hex.EncodeToString(e.PoolID[:]),
			"asset0": normalizeAsset(e.Asset0),
			"asset1": normalizeAsset(e.Asset1),
			"feeBps": intToString(int64(e.FeeBps)),
		},
	}
}

// SwapSettled records a swap fully settled through the reserve conversion.
type SwapSettled struct {
	Requester  [20]byte
	AssetIn    string
	AssetOut   string
	AmountIn   *big.Int
	AmountOut  *big.Int
	ExactInput bool
}

func (SwapSettled) EventType() string { return TypeSwapSettled }

func (e SwapSettled) Event() *types.Event {
	exact := "exactOutput"
	if e.ExactInput {
		exact = "exactInput"
	}
	return &types.Event{
		Type: TypeSwapSettled,
		Attributes: map[string]string{
			"requester": crypto.NewAddress(crypto.NRVPrefix, e.Requester[:]).String(),
			"assetIn":   normalizeAsset(e.AssetIn),
			"assetOut":  normalizeAsset(e.AssetOut),
			"amountIn":  formatAmount(e.AmountIn),
			"amountOut": formatAmount(e.AmountOut),
			"mode":      exact,
		},
	}
}

// SwapAborted records a swap request rejected with no effects.
type SwapAborted struct {
	Requester [20]byte
	Reason    string
}

func (SwapAborted) EventType() string { return TypeSwapAborted }

func (e SwapAborted) Event() *types.Event {
	return &types.Event{
		Type: TypeSwapAborted,
		Attributes: map[string]string{
			"requester": crypto.NewAddress(crypto.NRVPrefix, e.Requester[:]).String(),
			"reason":    e.Reason,
		},
	}
}
