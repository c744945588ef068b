package reserve

import (
	"math/big"

	"reservehook/core/events"
	"reservehook/core/types"
	"reservehook/crypto"
	nativecommon "reservehook/native/common"
	"reservehook/native/yield"
)

const moduleName = "reserve"

type engineState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Wrapper converts the wrapped-native representation held by owner into
// native asset credited to recipient. It is an external collaborator; only
// its transfer failures surface through the deposit path.
type Wrapper interface {
	Unwrap(owner crypto.Address, amount *big.Int, recipient crypto.Address) error
}

// Engine owns the reserve accounting for the 1:1 backed issued token. The
// idle reserve is the native balance of the engine's module address; the
// invested reserve is whatever the configured yield venue reports.
type Engine struct {
	state         engineState
	moduleAddress crypto.Address
	venue         yield.Venue
	wrapper       Wrapper
	emitter       events.Emitter
	pauses        nativecommon.PauseView
}

// NewEngine constructs a reserve engine whose idle reserve lives at moduleAddr.
func NewEngine(moduleAddr crypto.Address) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		emitter:       events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetWrapper configures the wrapped-native collaborator used by Deposit.
func (e *Engine) SetWrapper(w Wrapper) {
	if e == nil {
		return
	}
	e.wrapper = w
}

// AttachVenue reconnects the in-memory venue reference on process start.
// Runtime wiring only; governance-level swaps go through SetVenue.
func (e *Engine) AttachVenue(venue yield.Venue) {
	if e == nil {
		return
	}
	e.venue = venue
}

// ModuleAddress returns the address holding the idle reserve.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress }

// Bootstrapped reports whether the singleton reserve account exists.
func (e *Engine) Bootstrapped() (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	var stored storedReserveAccount
	return e.state.KVGet(reserveAccountKey, &stored)
}

// Bootstrap creates the singleton reserve account. It can only run once.
func (e *Engine) Bootstrap(owner, receiver crypto.Address, thresholdWad *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	var stored storedReserveAccount
	ok, err := e.state.KVGet(reserveAccountKey, &stored)
	if err != nil {
		return err
	}
	if ok {
		return errAlreadyBootstrapped
	}
	if thresholdWad == nil || thresholdWad.Sign() < 0 {
		return errInvalidAmount
	}
	if thresholdWad.Cmp(wad) > 0 {
		return errThresholdTooHigh
	}
	receiverKey, err := addrKey(receiver)
	if err != nil {
		return err
	}
	if isZeroAddr(receiverKey) {
		return errZeroReceiver
	}
	ownerKey, err := addrKey(owner)
	if err != nil {
		return err
	}
	account := &ReserveAccount{
		TotalIssued:   big.NewInt(0),
		ThresholdWad:  new(big.Int).Set(thresholdWad),
		YieldReceiver: receiverKey,
		Owner:         ownerKey,
	}
	return e.putReserve(account)
}

// Deposit converts native asset (plus an optional wrapped amount) into issued
// tokens 1:1, increases total issued supply, and rebalances the idle reserve.
func (e *Engine) Deposit(caller crypto.Address, nativeAmount, wrappedAmount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	native := big.NewInt(0)
	if nativeAmount != nil {
		if nativeAmount.Sign() < 0 {
			return nil, errInvalidAmount
		}
		native = new(big.Int).Set(nativeAmount)
	}
	wrapped := big.NewInt(0)
	if wrappedAmount != nil {
		if wrappedAmount.Sign() < 0 {
			return nil, errInvalidAmount
		}
		wrapped = new(big.Int).Set(wrappedAmount)
	}
	minted := new(big.Int).Add(native, wrapped)
	if minted.Sign() == 0 {
		return nil, errInvalidAmount
	}
	account, err := e.loadReserve()
	if err != nil {
		return nil, err
	}

	// Unwrap first so the caller account read below observes the debit.
	if wrapped.Sign() > 0 {
		if e.wrapper == nil {
			return nil, errNoWrapper
		}
		if err := e.wrapper.Unwrap(caller, wrapped, e.moduleAddress); err != nil {
			return nil, err
		}
	}

	callerAcc, err := e.state.GetAccount(caller)
	if err != nil {
		return nil, err
	}
	if native.Sign() > 0 && callerAcc.BalanceNRV.Cmp(native) < 0 {
		return nil, errInsufficientNative
	}
	moduleAcc, err := e.state.GetAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}

	callerAcc.BalanceNRV = new(big.Int).Sub(callerAcc.BalanceNRV, native)
	callerAcc.BalanceZRV = new(big.Int).Add(callerAcc.BalanceZRV, minted)
	moduleAcc.BalanceNRV = new(big.Int).Add(moduleAcc.BalanceNRV, native)

	if err := e.state.PutAccount(caller, callerAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return nil, err
	}

	account.TotalIssued = new(big.Int).Add(account.TotalIssued, minted)
	if err := e.putReserve(account); err != nil {
		return nil, err
	}

	callerKey, err := addrKey(caller)
	if err != nil {
		return nil, err
	}
	e.emit(events.ReserveDeposited{
		Depositor:     callerKey,
		NativeAmount:  native,
		WrappedAmount: wrapped,
		Minted:        minted,
		TotalIssued:   new(big.Int).Set(account.TotalIssued),
	})

	if _, err := e.Rebalance(); err != nil {
		return nil, err
	}
	return minted, nil
}

// Rebalance pushes idle reserve above the threshold-implied level into the
// yield venue. It is idempotent, callable by anyone, and never pulls funds
// back; it is a no-op while no venue is configured or the venue is unwinding.
func (e *Engine) Rebalance() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	account, err := e.loadReserve()
	if err != nil {
		return nil, err
	}
	if e.venue == nil || e.venue.IsUnwinding() {
		return big.NewInt(0), nil
	}
	threshold := thresholdAmount(account.TotalIssued, account.ThresholdWad)
	idle, err := e.IdleReserve()
	if err != nil {
		return nil, err
	}
	if idle.Cmp(threshold) <= 0 {
		return big.NewInt(0), nil
	}
	excess := new(big.Int).Sub(idle, threshold)
	if err := e.venue.ConvertToYieldForm(excess); err != nil {
		return nil, err
	}
	e.emit(events.ReserveRebalanced{
		Pushed:    excess,
		Idle:      threshold,
		Threshold: threshold,
	})
	return excess, nil
}

// Withdraw burns the caller's issued tokens and returns native asset, sourcing
// it from idle reserve and the venue so that idle reserve lands back at the
// threshold-implied level whenever the venue can cover it.
func (e *Engine) Withdraw(caller crypto.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	account, err := e.loadReserve()
	if err != nil {
		return nil, err
	}
	callerAcc, err := e.state.GetAccount(caller)
	if err != nil {
		return nil, err
	}
	if callerAcc.BalanceZRV.Cmp(amount) < 0 {
		return nil, errInsufficientTokens
	}
	// Idle reserve sampled before any side-effect of this call.
	idleBefore, err := e.IdleReserve()
	if err != nil {
		return nil, err
	}

	// Burn before any external interaction.
	callerAcc.BalanceZRV = new(big.Int).Sub(callerAcc.BalanceZRV, amount)
	account.TotalIssued = new(big.Int).Sub(account.TotalIssued, amount)
	if err := e.state.PutAccount(caller, callerAcc); err != nil {
		return nil, err
	}
	if err := e.putReserve(account); err != nil {
		return nil, err
	}

	fromIdle := big.NewInt(0)
	fromVenue := big.NewInt(0)
	switch {
	case amount.Cmp(idleBefore) <= 0:
		if err := e.payFromIdle(caller, amount); err != nil {
			return nil, err
		}
		fromIdle = amount
	case e.venue == nil:
		return nil, errInsufficientReserve
	default:
		newThreshold := thresholdAmount(account.TotalIssued, account.ThresholdWad)
		if newThreshold.Cmp(idleBefore) <= 0 {
			// Idle stays at the new threshold: pay the spare idle directly and
			// route the remainder from the venue straight to the caller.
			direct := new(big.Int).Sub(idleBefore, newThreshold)
			remainder := new(big.Int).Sub(amount, direct)
			if err := e.venue.Withdraw(remainder, caller); err != nil {
				return nil, err
			}
			if direct.Sign() > 0 {
				if err := e.payFromIdle(caller, direct); err != nil {
					return nil, err
				}
			}
			fromIdle = direct
			fromVenue = remainder
		} else {
			// Pull enough to cover the request and to replenish idle reserve
			// up to the new threshold, then pay from the replenished idle.
			pull := new(big.Int).Add(amount, new(big.Int).Sub(newThreshold, idleBefore))
			if err := e.venue.Withdraw(pull, e.moduleAddress); err != nil {
				return nil, err
			}
			if err := e.payFromIdle(caller, amount); err != nil {
				return nil, err
			}
			fromIdle = amount
		}
	}

	callerKey, err := addrKey(caller)
	if err != nil {
		return nil, err
	}
	e.emit(events.ReserveWithdrawn{
		Withdrawer:  callerKey,
		Amount:      amount,
		FromIdle:    fromIdle,
		FromVenue:   fromVenue,
		TotalIssued: new(big.Int).Set(account.TotalIssued),
	})
	return new(big.Int).Set(amount), nil
}

// Harvest pays the instantaneous excess of total holdings over issued supply
// to the yield receiver, preferring venue funds and covering any shortfall
// from idle reserve.
func (e *Engine) Harvest() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	account, err := e.loadReserve()
	if err != nil {
		return nil, err
	}
	idle, err := e.IdleReserve()
	if err != nil {
		return nil, err
	}
	venueBalance, err := e.venueBalance()
	if err != nil {
		return nil, err
	}
	accumulated := new(big.Int).Add(idle, venueBalance)
	accumulated.Sub(accumulated, account.TotalIssued)
	if accumulated.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	receiver := crypto.NewAddress(crypto.NRVPrefix, account.YieldReceiver[:])
	fromVenue := big.NewInt(0)
	fromIdle := big.NewInt(0)
	if venueBalance.Cmp(accumulated) >= 0 {
		if err := e.venue.Withdraw(accumulated, receiver); err != nil {
			return nil, err
		}
		fromVenue = accumulated
	} else {
		if venueBalance.Sign() > 0 {
			if err := e.venue.Withdraw(venueBalance, receiver); err != nil {
				return nil, err
			}
			fromVenue = venueBalance
		}
		fromIdle = new(big.Int).Sub(accumulated, venueBalance)
		if err := e.payFromIdle(receiver, fromIdle); err != nil {
			return nil, err
		}
	}

	e.emit(events.ReserveHarvested{
		Receiver:  account.YieldReceiver,
		Amount:    accumulated,
		FromVenue: fromVenue,
		FromIdle:  fromIdle,
	})
	return accumulated, nil
}

// YieldAccumulated reports underlyingBalance − totalIssued. A negative value
// signals an economic backing violation; it is reported, never corrected.
func (e *Engine) YieldAccumulated() (*big.Int, error) {
	account, err := e.loadReserve()
	if err != nil {
		return nil, err
	}
	underlying, err := e.UnderlyingBalance()
	if err != nil {
		return nil, err
	}
	return underlying.Sub(underlying, account.TotalIssued), nil
}

// UnderlyingBalance reports idle reserve plus the venue's invested value.
func (e *Engine) UnderlyingBalance() (*big.Int, error) {
	idle, err := e.IdleReserve()
	if err != nil {
		return nil, err
	}
	venueBalance, err := e.venueBalance()
	if err != nil {
		return nil, err
	}
	return idle.Add(idle, venueBalance), nil
}

// IdleReserve reports the native balance directly held by the ledger.
func (e *Engine) IdleReserve() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.BalanceNRV), nil
}

// TotalIssued reports the outstanding issued-token supply.
func (e *Engine) TotalIssued() (*big.Int, error) {
	account, err := e.loadReserve()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.TotalIssued), nil
}

// Account returns a copy of the singleton reserve record.
func (e *Engine) Account() (*ReserveAccount, error) {
	account, err := e.loadReserve()
	if err != nil {
		return nil, err
	}
	return account.Clone(), nil
}

func (e *Engine) venueBalance() (*big.Int, error) {
	if e.venue == nil {
		return big.NewInt(0), nil
	}
	balance, err := e.venue.BalanceInNative()
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (e *Engine) payFromIdle(recipient crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	moduleAcc, err := e.state.GetAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	if moduleAcc.BalanceNRV.Cmp(amount) < 0 {
		return errInsufficientNative
	}
	recipientAcc, err := e.state.GetAccount(recipient)
	if err != nil {
		return err
	}
	moduleAcc.BalanceNRV = new(big.Int).Sub(moduleAcc.BalanceNRV, amount)
	recipientAcc.BalanceNRV = new(big.Int).Add(recipientAcc.BalanceNRV, amount)
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	return e.state.PutAccount(recipient, recipientAcc)
}

func (e *Engine) loadReserve() (*ReserveAccount, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var stored storedReserveAccount
	ok, err := e.state.KVGet(reserveAccountKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotBootstrapped
	}
	return fromStoredReserve(&stored), nil
}

func (e *Engine) putReserve(account *ReserveAccount) error {
	return e.state.KVPut(reserveAccountKey, toStoredReserve(account))
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func thresholdAmount(totalIssued, thresholdWad *big.Int) *big.Int {
	if totalIssued == nil || thresholdWad == nil {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(totalIssued, thresholdWad)
	return amount.Quo(amount, wad)
}

func addrKey(addr crypto.Address) ([20]byte, error) {
	var key [20]byte
	b := addr.Bytes()
	if len(b) != 20 {
		return key, errInvalidAddress
	}
	copy(key[:], b)
	return key, nil
}
