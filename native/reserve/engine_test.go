package reserve

import (
	"errors"
	"math/big"
	"testing"

	"reservehook/core/state"
	"reservehook/crypto"
	nativecommon "reservehook/native/common"
	"reservehook/native/yield"
	"reservehook/storage"
)

func makeAddress(b byte) crypto.Address {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = b
	}
	return crypto.NewAddress(crypto.NRVPrefix, raw)
}

// tenths returns n * 0.1 in wei-scale units, so tenths(10) is one whole unit.
func tenths(n int64) *big.Int {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)
	return new(big.Int).Mul(big.NewInt(n), unit)
}

type fixture struct {
	engine *Engine
	state  *state.Manager
	venue  *yield.StrategyVenue

	ledgerAddr crypto.Address
	venueAddr  crypto.Address
	owner      crypto.Address
	receiver   crypto.Address
}

// newFixture bootstraps a ledger with the given wad-scaled threshold and an
// attached account-backed venue.
func newFixture(t *testing.T, thresholdWad *big.Int) *fixture {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	f := &fixture{
		state:      st,
		ledgerAddr: makeAddress(0x01),
		venueAddr:  makeAddress(0x02),
		owner:      makeAddress(0x03),
		receiver:   makeAddress(0x04),
	}
	f.venue = yield.NewStrategyVenue(st, f.venueAddr, f.ledgerAddr)
	f.engine = NewEngine(f.ledgerAddr)
	f.engine.SetState(st)
	f.engine.AttachVenue(f.venue)
	if err := f.engine.Bootstrap(f.owner, f.receiver, thresholdWad); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return f
}

func (f *fixture) fund(t *testing.T, addr crypto.Address, nativeAmount *big.Int) {
	t.Helper()
	acc, err := f.state.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	acc.BalanceNRV = new(big.Int).Set(nativeAmount)
	if err := f.state.PutAccount(addr, acc); err != nil {
		t.Fatalf("put account: %v", err)
	}
}

func (f *fixture) balanceNRV(t *testing.T, addr crypto.Address) *big.Int {
	t.Helper()
	acc, err := f.state.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc.BalanceNRV
}

func (f *fixture) balanceZRV(t *testing.T, addr crypto.Address) *big.Int {
	t.Helper()
	acc, err := f.state.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc.BalanceZRV
}

func TestBootstrapOnce(t *testing.T) {
	f := newFixture(t, tenths(1))
	if err := f.engine.Bootstrap(f.owner, f.receiver, tenths(1)); !errors.Is(err, errAlreadyBootstrapped) {
		t.Fatalf("expected errAlreadyBootstrapped, got %v", err)
	}
}

func TestBootstrapValidation(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	engine := NewEngine(makeAddress(0x01))
	engine.SetState(st)

	over := new(big.Int).Add(wad, big.NewInt(1))
	if err := engine.Bootstrap(makeAddress(0x03), makeAddress(0x04), over); !errors.Is(err, errThresholdTooHigh) {
		t.Fatalf("expected errThresholdTooHigh, got %v", err)
	}
	zero := crypto.NewAddress(crypto.NRVPrefix, make([]byte, 20))
	if err := engine.Bootstrap(makeAddress(0x03), zero, tenths(1)); !errors.Is(err, errZeroReceiver) {
		t.Fatalf("expected errZeroReceiver, got %v", err)
	}
}

func TestDepositMintsAndRebalances(t *testing.T) {
	f := newFixture(t, tenths(1)) // keep 10% idle
	depositor := makeAddress(0x10)
	f.fund(t, depositor, tenths(100))

	minted, err := f.engine.Deposit(depositor, tenths(100), nil)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if minted.Cmp(tenths(100)) != 0 {
		t.Fatalf("expected 10 units minted, got %s", minted)
	}
	if got := f.balanceZRV(t, depositor); got.Cmp(tenths(100)) != 0 {
		t.Fatalf("expected depositor ZRV 10 units, got %s", got)
	}
	if got := f.balanceNRV(t, f.ledgerAddr); got.Cmp(tenths(10)) != 0 {
		t.Fatalf("expected idle 1 unit after rebalance, got %s", got)
	}
	if got := f.balanceNRV(t, f.venueAddr); got.Cmp(tenths(90)) != 0 {
		t.Fatalf("expected venue 9 units, got %s", got)
	}
	total, err := f.engine.TotalIssued()
	if err != nil {
		t.Fatalf("total issued: %v", err)
	}
	if total.Cmp(tenths(100)) != 0 {
		t.Fatalf("expected total issued 10 units, got %s", total)
	}
}

func TestDepositInsufficientNative(t *testing.T) {
	f := newFixture(t, tenths(1))
	depositor := makeAddress(0x10)
	f.fund(t, depositor, tenths(5))

	if _, err := f.engine.Deposit(depositor, tenths(10), nil); !errors.Is(err, errInsufficientNative) {
		t.Fatalf("expected errInsufficientNative, got %v", err)
	}
}

func TestDepositWrappedRoundTrip(t *testing.T) {
	f := newFixture(t, wad) // 100% idle: no venue push
	wrapper := NewAccountWrapper(f.state, makeAddress(0x05))
	f.engine.SetWrapper(wrapper)

	depositor := makeAddress(0x10)
	f.fund(t, depositor, tenths(50))
	if err := wrapper.Wrap(depositor, tenths(30)); err != nil {
		t.Fatalf("wrap: %v", err)
	}

	minted, err := f.engine.Deposit(depositor, tenths(20), tenths(30))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if minted.Cmp(tenths(50)) != 0 {
		t.Fatalf("expected 5 units minted, got %s", minted)
	}
	if got := f.balanceZRV(t, depositor); got.Cmp(tenths(50)) != 0 {
		t.Fatalf("expected depositor ZRV 5 units, got %s", got)
	}
	if got := f.balanceNRV(t, f.ledgerAddr); got.Cmp(tenths(50)) != 0 {
		t.Fatalf("expected idle 5 units, got %s", got)
	}
}

func TestDepositWrappedWithoutWrapper(t *testing.T) {
	f := newFixture(t, wad)
	depositor := makeAddress(0x10)
	f.fund(t, depositor, tenths(10))

	if _, err := f.engine.Deposit(depositor, nil, tenths(10)); !errors.Is(err, errNoWrapper) {
		t.Fatalf("expected errNoWrapper, got %v", err)
	}
}

func TestDepositPaused(t *testing.T) {
	f := newFixture(t, tenths(1))
	f.engine.SetPauses(nativecommon.StaticPauses{moduleName: true})
	depositor := makeAddress(0x10)
	f.fund(t, depositor, tenths(10))

	if _, err := f.engine.Deposit(depositor, tenths(10), nil); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestRebalanceIdempotent(t *testing.T) {
	f := newFixture(t, tenths(1))
	depositor := makeAddress(0x10)
	f.fund(t, depositor, tenths(100))
	if _, err := f.engine.Deposit(depositor, tenths(100), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	moved, err := f.engine.Rebalance()
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if moved.Sign() != 0 {
		t.Fatalf("expected no movement on second rebalance, got %s", moved)
	}
}

func TestRebalanceSuppressedWhileUnwinding(t *testing.T) {
	f := newFixture(t, tenths(1))
	depositor := makeAddress(0x10)
	f.fund(t, depositor, tenths(100))
	f.venue.SetUnwinding(true)

	if _, err := f.engine.Deposit(depositor, tenths(100), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := f.balanceNRV(t, f.ledgerAddr); got.Cmp(tenths(100)) != 0 {
		t.Fatalf("expected all funds idle while unwinding, got %s", got)
	}
	if got := f.balanceNRV(t, f.venueAddr); got.Sign() != 0 {
		t.Fatalf("expected empty venue while unwinding, got %s", got)
	}
}

func TestWithdrawFromIdle(t *testing.T) {
	f := newFixture(t, tenths(1))
	holder := makeAddress(0x10)
	f.fund(t, holder, tenths(100))
	if _, err := f.engine.Deposit(holder, tenths(100), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// idle 1 unit, venue 9 units; withdrawing 0.5 fits in idle.
	paid, err := f.engine.Withdraw(holder, tenths(5))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if paid.Cmp(tenths(5)) != 0 {
		t.Fatalf("expected 0.5 units paid, got %s", paid)
	}
	if got := f.balanceNRV(t, holder); got.Cmp(tenths(5)) != 0 {
		t.Fatalf("expected holder NRV 0.5 units, got %s", got)
	}
	if got := f.balanceNRV(t, f.ledgerAddr); got.Cmp(tenths(5)) != 0 {
		t.Fatalf("expected idle 0.5 units, got %s", got)
	}
	if got := f.balanceNRV(t, f.venueAddr); got.Cmp(tenths(90)) != 0 {
		t.Fatalf("expected venue untouched at 9 units, got %s", got)
	}
}

func TestWithdrawReplenishesIdleToThreshold(t *testing.T) {
	f := newFixture(t, tenths(1))
	holder := makeAddress(0x10)
	f.fund(t, holder, tenths(100))
	if _, err := f.engine.Deposit(holder, tenths(100), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Model accrued yield and a drained idle reserve: idle 0.5, venue 20.
	if err := f.venue.CreditYield(tenths(110)); err != nil {
		t.Fatalf("credit yield: %v", err)
	}
	f.fund(t, f.ledgerAddr, tenths(5))

	paid, err := f.engine.Withdraw(holder, tenths(20))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if paid.Cmp(tenths(20)) != 0 {
		t.Fatalf("expected 2 units paid, got %s", paid)
	}
	// Post-burn supply 8 units, threshold 0.8: venue covers 2 plus the 0.3
	// idle top-up, idle lands exactly at the new threshold.
	if got := f.balanceNRV(t, f.ledgerAddr); got.Cmp(tenths(8)) != 0 {
		t.Fatalf("expected idle 0.8 units, got %s", got)
	}
	if got := f.balanceNRV(t, f.venueAddr); got.Cmp(tenths(177)) != 0 {
		t.Fatalf("expected venue 17.7 units, got %s", got)
	}
	if got := f.balanceNRV(t, holder); got.Cmp(tenths(20)) != 0 {
		t.Fatalf("expected holder 2 units, got %s", got)
	}
}

func TestWithdrawPaysSpareIdleDirect(t *testing.T) {
	f := newFixture(t, tenths(1))
	holder := makeAddress(0x10)
	f.fund(t, holder, tenths(100))
	if _, err := f.engine.Deposit(holder, tenths(100), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// idle 2, venue 8: withdraw 5 leaves post-burn threshold 0.5 below the
	// sampled idle, so 1.5 comes from idle and 3.5 from the venue.
	f.fund(t, f.ledgerAddr, tenths(20))
	f.fund(t, f.venueAddr, tenths(80))

	if _, err := f.engine.Withdraw(holder, tenths(50)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := f.balanceNRV(t, holder); got.Cmp(tenths(50)) != 0 {
		t.Fatalf("expected holder 5 units, got %s", got)
	}
	if got := f.balanceNRV(t, f.ledgerAddr); got.Cmp(tenths(5)) != 0 {
		t.Fatalf("expected idle 0.5 units, got %s", got)
	}
	if got := f.balanceNRV(t, f.venueAddr); got.Cmp(tenths(45)) != 0 {
		t.Fatalf("expected venue 4.5 units, got %s", got)
	}
}

func TestWithdrawWithoutVenueNeedsIdle(t *testing.T) {
	f := newFixture(t, tenths(1))
	f.engine.AttachVenue(nil)
	holder := makeAddress(0x10)
	f.fund(t, holder, tenths(100))
	if _, err := f.engine.Deposit(holder, tenths(100), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.fund(t, f.ledgerAddr, tenths(5))

	if _, err := f.engine.Withdraw(holder, tenths(10)); !errors.Is(err, errInsufficientReserve) {
		t.Fatalf("expected errInsufficientReserve, got %v", err)
	}
}

func TestWithdrawInsufficientTokens(t *testing.T) {
	f := newFixture(t, tenths(1))
	holder := makeAddress(0x10)
	f.fund(t, holder, tenths(10))
	if _, err := f.engine.Deposit(holder, tenths(10), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := f.engine.Withdraw(holder, tenths(20)); !errors.Is(err, errInsufficientTokens) {
		t.Fatalf("expected errInsufficientTokens, got %v", err)
	}
}

func TestHarvestFromVenue(t *testing.T) {
	f := newFixture(t, tenths(1))
	holder := makeAddress(0x10)
	f.fund(t, holder, tenths(100))
	if _, err := f.engine.Deposit(holder, tenths(100), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.venue.CreditYield(tenths(5)); err != nil {
		t.Fatalf("credit yield: %v", err)
	}

	harvested, err := f.engine.Harvest()
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if harvested.Cmp(tenths(5)) != 0 {
		t.Fatalf("expected 0.5 units harvested, got %s", harvested)
	}
	if got := f.balanceNRV(t, f.receiver); got.Cmp(tenths(5)) != 0 {
		t.Fatalf("expected receiver 0.5 units, got %s", got)
	}
	accrued, err := f.engine.YieldAccumulated()
	if err != nil {
		t.Fatalf("yield accumulated: %v", err)
	}
	if accrued.Sign() != 0 {
		t.Fatalf("expected zero accumulated yield after harvest, got %s", accrued)
	}
}

func TestHarvestCoversShortfallFromIdle(t *testing.T) {
	f := newFixture(t, wad) // everything idle
	f.engine.AttachVenue(nil)
	holder := makeAddress(0x10)
	f.fund(t, holder, tenths(50))
	if _, err := f.engine.Deposit(holder, tenths(50), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// External top-up lands on the module account directly.
	f.fund(t, f.ledgerAddr, tenths(53))

	harvested, err := f.engine.Harvest()
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if harvested.Cmp(tenths(3)) != 0 {
		t.Fatalf("expected 0.3 units harvested, got %s", harvested)
	}
	if got := f.balanceNRV(t, f.receiver); got.Cmp(tenths(3)) != 0 {
		t.Fatalf("expected receiver 0.3 units, got %s", got)
	}
	if got := f.balanceNRV(t, f.ledgerAddr); got.Cmp(tenths(50)) != 0 {
		t.Fatalf("expected idle back at 5 units, got %s", got)
	}
}

func TestHarvestNothingToPay(t *testing.T) {
	f := newFixture(t, tenths(1))
	holder := makeAddress(0x10)
	f.fund(t, holder, tenths(100))
	if _, err := f.engine.Deposit(holder, tenths(100), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	harvested, err := f.engine.Harvest()
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if harvested.Sign() != 0 {
		t.Fatalf("expected nothing harvested, got %s", harvested)
	}
}

func TestYieldAccumulatedNegativeIsReported(t *testing.T) {
	f := newFixture(t, wad)
	f.engine.AttachVenue(nil)
	holder := makeAddress(0x10)
	f.fund(t, holder, tenths(50))
	if _, err := f.engine.Deposit(holder, tenths(50), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Simulate a backing shortfall.
	f.fund(t, f.ledgerAddr, tenths(40))

	accrued, err := f.engine.YieldAccumulated()
	if err != nil {
		t.Fatalf("yield accumulated: %v", err)
	}
	if accrued.Cmp(tenths(-10)) != 0 {
		t.Fatalf("expected -1 unit, got %s", accrued)
	}
}

func TestConservationAcrossFlows(t *testing.T) {
	f := newFixture(t, tenths(1))
	alice := makeAddress(0x10)
	bob := makeAddress(0x11)
	f.fund(t, alice, tenths(60))
	f.fund(t, bob, tenths(40))

	if _, err := f.engine.Deposit(alice, tenths(60), nil); err != nil {
		t.Fatalf("deposit alice: %v", err)
	}
	if _, err := f.engine.Deposit(bob, tenths(40), nil); err != nil {
		t.Fatalf("deposit bob: %v", err)
	}
	if _, err := f.engine.Withdraw(alice, tenths(25)); err != nil {
		t.Fatalf("withdraw alice: %v", err)
	}

	total, err := f.engine.TotalIssued()
	if err != nil {
		t.Fatalf("total issued: %v", err)
	}
	supply := new(big.Int).Add(f.balanceZRV(t, alice), f.balanceZRV(t, bob))
	if supply.Cmp(total) != 0 {
		t.Fatalf("issued supply mismatch: holders %s vs ledger %s", supply, total)
	}
	underlying, err := f.engine.UnderlyingBalance()
	if err != nil {
		t.Fatalf("underlying: %v", err)
	}
	if underlying.Cmp(total) < 0 {
		t.Fatalf("backing violated: %s underlying vs %s issued", underlying, total)
	}
}

func TestAdminRequiresOwner(t *testing.T) {
	f := newFixture(t, tenths(1))
	stranger := makeAddress(0x66)

	if err := f.engine.SetRebalanceThreshold(stranger, tenths(2)); !errors.Is(err, errNotOwner) {
		t.Fatalf("expected errNotOwner, got %v", err)
	}
	if err := f.engine.SetYieldReceiver(stranger, makeAddress(0x67)); !errors.Is(err, errNotOwner) {
		t.Fatalf("expected errNotOwner, got %v", err)
	}
	if _, err := f.engine.EmergencyRescue(stranger); !errors.Is(err, errNotOwner) {
		t.Fatalf("expected errNotOwner, got %v", err)
	}
}

func TestSetVenueRefusedWhileFunded(t *testing.T) {
	f := newFixture(t, tenths(1))
	holder := makeAddress(0x10)
	f.fund(t, holder, tenths(100))
	if _, err := f.engine.Deposit(holder, tenths(100), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	replacement := yield.NewStrategyVenue(f.state, makeAddress(0x20), f.ledgerAddr)
	if err := f.engine.SetVenue(f.owner, replacement); !errors.Is(err, errVenueNonzero) {
		t.Fatalf("expected errVenueNonzero, got %v", err)
	}

	// Drain the venue, then the swap succeeds.
	if err := f.engine.VenueUnwind(f.owner, tenths(90)); err != nil {
		t.Fatalf("unwind: %v", err)
	}
	if err := f.engine.SetVenue(f.owner, replacement); err != nil {
		t.Fatalf("set venue after drain: %v", err)
	}
}

func TestOwnershipHandoff(t *testing.T) {
	f := newFixture(t, tenths(1))
	nominee := makeAddress(0x30)

	if err := f.engine.TransferOwnership(f.owner, nominee); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	// Old owner keeps control until the nominee accepts.
	if err := f.engine.SetRebalanceThreshold(f.owner, tenths(2)); err != nil {
		t.Fatalf("owner action during handoff: %v", err)
	}
	if err := f.engine.AcceptOwnership(makeAddress(0x31)); !errors.Is(err, errNotPendingOwner) {
		t.Fatalf("expected errNotPendingOwner, got %v", err)
	}
	if err := f.engine.AcceptOwnership(nominee); err != nil {
		t.Fatalf("accept ownership: %v", err)
	}
	if err := f.engine.SetRebalanceThreshold(f.owner, tenths(3)); !errors.Is(err, errNotOwner) {
		t.Fatalf("expected old owner locked out, got %v", err)
	}
	if err := f.engine.SetRebalanceThreshold(nominee, tenths(3)); err != nil {
		t.Fatalf("new owner action: %v", err)
	}
}

func TestVenueEmergencyRescue(t *testing.T) {
	f := newFixture(t, tenths(1))
	holder := makeAddress(0x10)
	f.fund(t, holder, tenths(100))
	if _, err := f.engine.Deposit(holder, tenths(100), nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	rescued, err := f.engine.VenueEmergencyRescue(f.owner)
	if err != nil {
		t.Fatalf("venue rescue: %v", err)
	}
	if rescued.Cmp(tenths(90)) != 0 {
		t.Fatalf("expected 9 units rescued, got %s", rescued)
	}
	if got := f.balanceNRV(t, f.owner); got.Cmp(tenths(90)) != 0 {
		t.Fatalf("expected owner holding rescued funds, got %s", got)
	}
}
