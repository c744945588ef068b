package events

import (
	"math/big"

	"reservehook/core/types"
	"reservehook/crypto"
)

const (
	TypeReserveDeposited       = "reserve.deposited"
	TypeReserveWithdrawn       = "reserve.withdrawn"
	TypeReserveRebalanced      = "reserve.rebalanced"
	TypeReserveHarvested       = "reserve.harvested"
	TypeReserveThresholdSet    = "reserve.thresholdSet"
	TypeReserveReceiverSet     = "reserve.receiverSet"
	TypeReserveVenueChanged    = "reserve.venueChanged"
	TypeReserveRescued         = "reserve.rescued"
	TypeReserveOwnerNominated  = "reserve.ownerNominated"
	TypeReserveOwnerAccepted   = "reserve.ownerAccepted"
)

// ReserveDeposited records principal entering the ledger and the ZRV minted
// against it.
type ReserveDeposited struct {
	Depositor     [20]byte
	NativeAmount  *big.Int
	WrappedAmount *big.Int
	Minted        *big.Int
	TotalIssued   *big.Int
}

func (ReserveDeposited) EventType() string { return TypeReserveDeposited }

func (e ReserveDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeReserveDeposited,
		Attributes: map[string]string{
			"depositor":     crypto.NewAddress(crypto.NRVPrefix, e.Depositor[:]).String(),
			"nativeAmount":  formatAmount(e.NativeAmount),
			"wrappedAmount": formatAmount(e.WrappedAmount),
			"minted":        formatAmount(e.Minted),
			"totalIssued":   formatAmount(e.TotalIssued),
		},
	}
}

// ReserveWithdrawn records a burn and the sourcing split between idle reserve
// and the yield venue.
type ReserveWithdrawn struct {
	Withdrawer  [20]byte
	Amount      *big.Int
	FromIdle    *big.Int
	FromVenue   *big.Int
	TotalIssued *big.Int
}

func (ReserveWithdrawn) EventType() string { return TypeReserveWithdrawn }

func (e ReserveWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeReserveWithdrawn,
		Attributes: map[string]string{
			"withdrawer":  crypto.NewAddress(crypto.NRVPrefix, e.Withdrawer[:]).String(),
			"amount":      formatAmount(e.Amount),
			"fromIdle":    formatAmount(e.FromIdle),
			"fromVenue":   formatAmount(e.FromVenue),
			"totalIssued": formatAmount(e.TotalIssued),
		},
	}
}

// ReserveRebalanced records idle reserve pushed into the yield venue.
type ReserveRebalanced struct {
	Pushed    *big.Int
	Idle      *big.Int
	Threshold *big.Int
}

func (ReserveRebalanced) EventType() string { return TypeReserveRebalanced }

func (e ReserveRebalanced) Event() *types.Event {
	return &types.Event{
		Type: TypeReserveRebalanced,
		Attributes: map[string]string{
			"pushed":    formatAmount(e.Pushed),
			"idle":      formatAmount(e.Idle),
			"threshold": formatAmount(e.Threshold),
		},
	}
}

// ReserveHarvested records yield paid out to the configured receiver.
type ReserveHarvested struct {
	Receiver  [20]byte
	Amount    *big.Int
	FromVenue *big.Int
	FromIdle  *big.Int
}

func (ReserveHarvested) EventType() string { return TypeReserveHarvested }

func (e ReserveHarvested) Event() *types.Event {
	return &types.Event{
		Type: TypeReserveHarvested,
		Attributes: map[string]string{
			"receiver":  crypto.NewAddress(crypto.NRVPrefix, e.Receiver[:]).String(),
			"amount":    formatAmount(e.Amount),
			"fromVenue": formatAmount(e.FromVenue),
			"fromIdle":  formatAmount(e.FromIdle),
		},
	}
}

// ReserveThresholdSet records an owner updating the rebalance threshold.
type ReserveThresholdSet struct {
	ThresholdWad *big.Int
}

func (ReserveThresholdSet) EventType() string { return TypeReserveThresholdSet }

func (e ReserveThresholdSet) Event() *types.Event {
	return &types.Event{
		Type: TypeReserveThresholdSet,
		Attributes: map[string]string{
			"thresholdWad": formatAmount(e.ThresholdWad),
		},
	}
}

// ReserveReceiverSet records an owner updating the yield receiver.
type ReserveReceiverSet struct {
	Receiver [20]byte
}

func (ReserveReceiverSet) EventType() string { return TypeReserveReceiverSet }

func (e ReserveReceiverSet) Event() *types.Event {
	return &types.Event{
		Type: TypeReserveReceiverSet,
		Attributes: map[string]string{
			"receiver": crypto.NewAddress(crypto.NRVPrefix, e.Receiver[:]).String(),
		},
	}
}

// ReserveVenueChanged records the yield venue reference being swapped.
type ReserveVenueChanged struct {
	Configured bool
}

func (ReserveVenueChanged) EventType() string { return TypeReserveVenueChanged }

func (e ReserveVenueChanged) Event() *types.Event {
	configured := "false"
	if e.Configured {
		configured = "true"
	}
	return &types.Event{
		Type: TypeReserveVenueChanged,
		Attributes: map[string]string{
			"configured": configured,
		},
	}
}

// ReserveRescued records the emergency sweep of idle reserve to the owner.
type ReserveRescued struct {
	Owner  [20]byte
	Amount *big.Int
}

func (ReserveRescued) EventType() string { return TypeReserveRescued }

func (e ReserveRescued) Event() *types.Event {
	return &types.Event{
		Type: TypeReserveRescued,
		Attributes: map[string]string{
			"owner":  crypto.NewAddress(crypto.NRVPrefix, e.Owner[:]).String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

// ReserveOwnerNominated records the first leg of the two-phase handoff.
type ReserveOwnerNominated struct {
	Owner   [20]byte
	Nominee [20]byte
}

func (ReserveOwnerNominated) EventType() string { return TypeReserveOwnerNominated }

func (e ReserveOwnerNominated) Event() *types.Event {
	return &types.Event{
		Type: TypeReserveOwnerNominated,
		Attributes: map[string]string{
			"owner":   crypto.NewAddress(crypto.NRVPrefix, e.Owner[:]).String(),
			"nominee": crypto.NewAddress(crypto.NRVPrefix, e.Nominee[:]).String(),
		},
	}
}

// ReserveOwnerAccepted records the nominee completing the handoff.
type ReserveOwnerAccepted struct {
	Owner [20]byte
}

func (ReserveOwnerAccepted) EventType() string { return TypeReserveOwnerAccepted }

func (e ReserveOwnerAccepted) Event() *types.Event {
	return &types.Event{
		Type: TypeReserveOwnerAccepted,
		Attributes: map[string]string{
			"owner": crypto.NewAddress(crypto.NRVPrefix, e.Owner[:]).String(),
		},
	}
}
