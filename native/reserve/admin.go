package reserve

import (
	"math/big"

	"reservehook/core/events"
	"reservehook/crypto"
	"reservehook/native/yield"
)

// SetRebalanceThreshold updates the fraction of issued supply kept idle.
// Values are wad-scaled; anything above 100% is rejected.
func (e *Engine) SetRebalanceThreshold(caller crypto.Address, thresholdWad *big.Int) error {
	account, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	if thresholdWad == nil || thresholdWad.Sign() < 0 {
		return errInvalidAmount
	}
	if thresholdWad.Cmp(wad) > 0 {
		return errThresholdTooHigh
	}
	account.ThresholdWad = new(big.Int).Set(thresholdWad)
	if err := e.putReserve(account); err != nil {
		return err
	}
	e.emit(events.ReserveThresholdSet{ThresholdWad: thresholdWad})
	return nil
}

// SetYieldReceiver updates the address credited with harvested yield.
func (e *Engine) SetYieldReceiver(caller, receiver crypto.Address) error {
	account, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	receiverKey, err := addrKey(receiver)
	if err != nil {
		return err
	}
	if isZeroAddr(receiverKey) {
		return errZeroReceiver
	}
	account.YieldReceiver = receiverKey
	if err := e.putReserve(account); err != nil {
		return err
	}
	e.emit(events.ReserveReceiverSet{Receiver: receiverKey})
	return nil
}

// SetVenue swaps the yield venue reference. Refused while the currently
// configured venue still reports a balance, so funds cannot be orphaned.
func (e *Engine) SetVenue(caller crypto.Address, venue yield.Venue) error {
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	if e.venue != nil {
		balance, err := e.venue.BalanceInNative()
		if err != nil {
			return err
		}
		if balance != nil && balance.Sign() > 0 {
			return errVenueNonzero
		}
	}
	e.venue = venue
	e.emit(events.ReserveVenueChanged{Configured: venue != nil})
	return nil
}

// EmergencyRescue sweeps the entire idle reserve to the owner. It is an
// escape hatch and bypasses all accounting checks.
func (e *Engine) EmergencyRescue(caller crypto.Address) (*big.Int, error) {
	account, err := e.requireOwner(caller)
	if err != nil {
		return nil, err
	}
	idle, err := e.IdleReserve()
	if err != nil {
		return nil, err
	}
	owner := crypto.NewAddress(crypto.NRVPrefix, account.Owner[:])
	if idle.Sign() > 0 {
		if err := e.payFromIdle(owner, idle); err != nil {
			return nil, err
		}
	}
	e.emit(events.ReserveRescued{Owner: account.Owner, Amount: idle})
	return idle, nil
}

// TransferOwnership nominates a new owner. The handoff completes only when
// the nominee calls AcceptOwnership.
func (e *Engine) TransferOwnership(caller, nominee crypto.Address) error {
	account, err := e.requireOwner(caller)
	if err != nil {
		return err
	}
	nomineeKey, err := addrKey(nominee)
	if err != nil {
		return err
	}
	account.PendingOwner = nomineeKey
	if err := e.putReserve(account); err != nil {
		return err
	}
	e.emit(events.ReserveOwnerNominated{Owner: account.Owner, Nominee: nomineeKey})
	return nil
}

// AcceptOwnership completes a pending handoff; only the nominee may call it.
func (e *Engine) AcceptOwnership(caller crypto.Address) error {
	account, err := e.loadReserve()
	if err != nil {
		return err
	}
	callerKey, err := addrKey(caller)
	if err != nil {
		return err
	}
	if isZeroAddr(account.PendingOwner) || callerKey != account.PendingOwner {
		return errNotPendingOwner
	}
	account.Owner = callerKey
	account.PendingOwner = [20]byte{}
	if err := e.putReserve(account); err != nil {
		return err
	}
	e.emit(events.ReserveOwnerAccepted{Owner: callerKey})
	return nil
}

// VenueSetUnwinding toggles the venue's transitional flag. Gated on the
// ledger's owner, not the venue's.
func (e *Engine) VenueSetUnwinding(caller crypto.Address, unwinding bool) error {
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	admin, err := e.adminVenue()
	if err != nil {
		return err
	}
	admin.SetUnwinding(unwinding)
	return nil
}

// VenueUnwind pushes invested funds back into the idle reserve.
func (e *Engine) VenueUnwind(caller crypto.Address, amount *big.Int) error {
	if _, err := e.requireOwner(caller); err != nil {
		return err
	}
	admin, err := e.adminVenue()
	if err != nil {
		return err
	}
	return admin.UnwindToNative(amount)
}

// VenueEmergencyRescue sweeps the venue's invested balance to the owner.
func (e *Engine) VenueEmergencyRescue(caller crypto.Address) (*big.Int, error) {
	account, err := e.requireOwner(caller)
	if err != nil {
		return nil, err
	}
	admin, err := e.adminVenue()
	if err != nil {
		return nil, err
	}
	owner := crypto.NewAddress(crypto.NRVPrefix, account.Owner[:])
	return admin.EmergencyRescue(owner)
}

// AdminVenue is the owner-facing surface a venue may expose on top of the
// balance-reporting contract consumed by the accounting paths.
type AdminVenue interface {
	yield.Venue
	SetUnwinding(bool)
	UnwindToNative(amount *big.Int) error
	EmergencyRescue(recipient crypto.Address) (*big.Int, error)
}

func (e *Engine) adminVenue() (AdminVenue, error) {
	admin, ok := e.venue.(AdminVenue)
	if !ok || admin == nil {
		return nil, errVenueNotAdmin
	}
	return admin, nil
}

func (e *Engine) requireOwner(caller crypto.Address) (*ReserveAccount, error) {
	account, err := e.loadReserve()
	if err != nil {
		return nil, err
	}
	callerKey, err := addrKey(caller)
	if err != nil {
		return nil, err
	}
	if callerKey != account.Owner {
		return nil, errNotOwner
	}
	return account, nil
}
