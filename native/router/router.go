package router

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"reservehook/core/events"
	"reservehook/core/types"
	"reservehook/crypto"
	"reservehook/native/pool"
)

var (
	errNilState        = errors.New("swap coordinator: state not configured")
	errNilManager      = errors.New("swap coordinator: venue manager not configured")
	errInvalidAmount   = errors.New("swap coordinator: amount must be nonzero")
	errInvalidIntent   = errors.New("swap coordinator: malformed intent payload")
	errUnexpectedParty = errors.New("swap coordinator: callback invoked by unexpected party")
	errDanglingDelta   = errors.New("swap coordinator: pre-trade delta not zero")
	errInputExceeded   = errors.New("swap coordinator: input delta exceeds requested amount")
	errReportMismatch  = errors.New("swap coordinator: venue-reported delta mismatch")
	errOutputNegative  = errors.New("swap coordinator: output delta negative")
	errInputPositive   = errors.New("swap coordinator: input delta positive")
	errOutputExceeded  = errors.New("swap coordinator: output delta exceeds requested amount")
)

type routerState interface {
	Snapshot() int
	RevertToSnapshot(rev int)
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

type venue interface {
	Unlock(cb pool.UnlockCallback, payload []byte) ([]byte, error)
	Locker() pool.UnlockCallback
	Swap(caller crypto.Address, key pool.PoolKey, params pool.SwapParams) (pool.BalanceDelta, error)
	Take(caller crypto.Address, asset string, recipient crypto.Address, amount *big.Int) error
	Settle(caller crypto.Address, asset string, payer crypto.Address, amount *big.Int) error
	PendingDelta(holder crypto.Address, asset string) *big.Int
}

// storedIntent is the capability payload handed into the unlock context: one
// per settlement, discarded when the context closes. rlp cannot encode signed
// big.Int, so the amount travels as an absolute value plus the ExactInput flag.
type storedIntent struct {
	ZeroForOne bool
	ExactInput bool
	Amount     *big.Int
	Requester  [20]byte
	Referrer   string
}

type storedDelta struct {
	Neg0 bool
	Abs0 *big.Int
	Neg1 bool
	Abs1 *big.Int
}

// Router coordinates an atomic swap settlement: it opens the venue's unlock
// context, executes the trade inside its own callback, verifies the observed
// balance deltas against the requested direction and amount-sign semantics,
// and settles the net effect with the requester. Each request either fully
// settles or aborts with every state change reverted.
type Router struct {
	state   routerState
	manager venue
	key     pool.PoolKey
	address crypto.Address
	emitter events.Emitter
}

// NewRouter constructs a coordinator for the given pool key. The router's own
// module address is the holder all pending deltas accrue to.
func NewRouter(addr crypto.Address, manager venue, key pool.PoolKey) *Router {
	key.Asset0 = pool.NormalizeAsset(key.Asset0)
	key.Asset1 = pool.NormalizeAsset(key.Asset1)
	return &Router{
		manager: manager,
		key:     key,
		address: addr,
		emitter: events.NoopEmitter{},
	}
}

// SetState wires the coordinator to the journaled persistence layer.
func (r *Router) SetState(state routerState) { r.state = state }

// SetEmitter configures the event emitter used by the coordinator.
func (r *Router) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// ExecuteSwap runs one settlement end to end. amountSpecified is signed:
// negative requests exact-input semantics, positive exact-output. On any
// failure the state is reverted to its pre-request snapshot and the error is
// surfaced to the caller; there are no partial effects.
func (r *Router) ExecuteSwap(requester crypto.Address, zeroForOne bool, amountSpecified *big.Int, referrer string) (pool.BalanceDelta, error) {
	if r == nil || r.state == nil {
		return pool.BalanceDelta{}, errNilState
	}
	if r.manager == nil {
		return pool.BalanceDelta{}, errNilManager
	}
	if amountSpecified == nil || amountSpecified.Sign() == 0 {
		return pool.BalanceDelta{}, errInvalidAmount
	}
	requesterKey, err := holderKey(requester)
	if err != nil {
		return pool.BalanceDelta{}, err
	}
	intent := storedIntent{
		ZeroForOne: zeroForOne,
		ExactInput: amountSpecified.Sign() < 0,
		Amount:     new(big.Int).Abs(amountSpecified),
		Requester:  requesterKey,
		Referrer:   referrer,
	}
	payload, err := encodeIntent(intent)
	if err != nil {
		return pool.BalanceDelta{}, err
	}

	snapshot := r.state.Snapshot()
	out, err := r.manager.Unlock(r, payload)
	if err != nil {
		r.state.RevertToSnapshot(snapshot)
		r.emitter.Emit(events.SwapAborted{Requester: requesterKey, Reason: err.Error()})
		return pool.BalanceDelta{}, err
	}
	result, err := decodeDelta(out)
	if err != nil {
		r.state.RevertToSnapshot(snapshot)
		return pool.BalanceDelta{}, err
	}

	if err := r.sweepNative(requester); err != nil {
		r.state.RevertToSnapshot(snapshot)
		return pool.BalanceDelta{}, err
	}

	assetIn, assetOut := r.key.Asset0, r.key.Asset1
	amountIn, amountOut := result.Amount0, result.Amount1
	if !zeroForOne {
		assetIn, assetOut = assetOut, assetIn
		amountIn, amountOut = amountOut, amountIn
	}
	r.emitter.Emit(events.SwapSettled{
		Requester:  requesterKey,
		AssetIn:    assetIn,
		AssetOut:   assetOut,
		AmountIn:   new(big.Int).Abs(amountIn),
		AmountOut:  new(big.Int).Set(amountOut),
		ExactInput: intent.ExactInput,
	})
	return result, nil
}

// UnlockCallback runs inside the venue's transactional context. It verifies
// the context belongs to this coordinator, asserts a clean slate, executes
// the trade, checks the four direction/amount-sign cases, and settles the
// observed deltas with the requester.
func (r *Router) UnlockCallback(payload []byte) ([]byte, error) {
	if r.manager.Locker() != pool.UnlockCallback(r) {
		return nil, errUnexpectedParty
	}
	var intent storedIntent
	if err := rlp.DecodeBytes(payload, &intent); err != nil {
		return nil, errInvalidIntent
	}
	if intent.Amount == nil || intent.Amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	requester := crypto.NewAddress(crypto.NRVPrefix, intent.Requester[:])

	// Reentrancy / state-leak guard: no claims may predate this trade.
	if r.manager.PendingDelta(r.address, r.key.Asset0).Sign() != 0 {
		return nil, errDanglingDelta
	}
	if r.manager.PendingDelta(r.address, r.key.Asset1).Sign() != 0 {
		return nil, errDanglingDelta
	}

	amountSpecified := new(big.Int).Set(intent.Amount)
	if intent.ExactInput {
		amountSpecified.Neg(amountSpecified)
	}
	params := pool.SwapParams{ZeroForOne: intent.ZeroForOne, AmountSpecified: amountSpecified}
	reported, err := r.manager.Swap(r.address, r.key, params)
	if err != nil {
		return nil, err
	}

	post0 := r.manager.PendingDelta(r.address, r.key.Asset0)
	post1 := r.manager.PendingDelta(r.address, r.key.Asset1)
	if err := verifyDeltas(params.ZeroForOne, params.ExactInput(), amountSpecified, reported, post0, post1); err != nil {
		return nil, err
	}

	if err := r.settleDelta(r.key.Asset0, post0, requester); err != nil {
		return nil, err
	}
	if err := r.settleDelta(r.key.Asset1, post1, requester); err != nil {
		return nil, err
	}

	return rlp.EncodeToBytes(encodeDelta(pool.NewBalanceDelta(post0, post1)))
}

// verifyDeltas checks the post-trade deltas against the requested direction
// and amount-sign semantics. The four cases mirror each other across the
// trade direction.
func verifyDeltas(zeroForOne, exactInput bool, amountSpecified *big.Int, reported pool.BalanceDelta, post0, post1 *big.Int) error {
	postIn, postOut := post0, post1
	reportedIn, reportedOut := reported.Amount0, reported.Amount1
	if !zeroForOne {
		postIn, postOut = post1, post0
		reportedIn, reportedOut = reported.Amount1, reported.Amount0
	}
	if exactInput {
		// amountSpecified is negative: the input delta may not be more
		// negative than requested, must match the venue's report exactly,
		// and the output may not be owed by the requester.
		if postIn.Cmp(amountSpecified) < 0 {
			return errInputExceeded
		}
		if reportedIn == nil || reportedIn.Cmp(postIn) != 0 {
			return errReportMismatch
		}
		if postOut.Sign() < 0 {
			return errOutputNegative
		}
		return nil
	}
	// Exact output: the requester never ends up owed on the input side, the
	// output must match the venue's report exactly and stay within the
	// requested amount.
	if postIn.Sign() > 0 {
		return errInputPositive
	}
	if reportedOut == nil || reportedOut.Cmp(postOut) != 0 {
		return errReportMismatch
	}
	if postOut.Cmp(amountSpecified) > 0 {
		return errOutputExceeded
	}
	return nil
}

// settleDelta pays in a negative delta from the requester and claims a
// positive delta to the requester.
func (r *Router) settleDelta(asset string, delta *big.Int, requester crypto.Address) error {
	switch {
	case delta.Sign() < 0:
		return r.manager.Settle(r.address, asset, requester, new(big.Int).Neg(delta))
	case delta.Sign() > 0:
		return r.manager.Take(r.address, asset, requester, delta)
	default:
		return nil
	}
}

// sweepNative returns any native asset left in the coordinator's transient
// custody to the requester once the context has closed.
func (r *Router) sweepNative(requester crypto.Address) error {
	routerAcc, err := r.state.GetAccount(r.address)
	if err != nil {
		return err
	}
	leftover := new(big.Int).Set(routerAcc.BalanceNRV)
	if leftover.Sign() == 0 {
		return nil
	}
	requesterAcc, err := r.state.GetAccount(requester)
	if err != nil {
		return err
	}
	routerAcc.BalanceNRV = big.NewInt(0)
	requesterAcc.BalanceNRV = new(big.Int).Add(requesterAcc.BalanceNRV, leftover)
	if err := r.state.PutAccount(r.address, routerAcc); err != nil {
		return err
	}
	return r.state.PutAccount(requester, requesterAcc)
}

func encodeIntent(intent storedIntent) ([]byte, error) {
	return rlp.EncodeToBytes(intent)
}

func encodeDelta(delta pool.BalanceDelta) storedDelta {
	stored := storedDelta{
		Abs0: new(big.Int).Abs(delta.Amount0),
		Abs1: new(big.Int).Abs(delta.Amount1),
	}
	stored.Neg0 = delta.Amount0.Sign() < 0
	stored.Neg1 = delta.Amount1.Sign() < 0
	return stored
}

func decodeDelta(raw []byte) (pool.BalanceDelta, error) {
	var stored storedDelta
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return pool.BalanceDelta{}, err
	}
	delta := pool.NewBalanceDelta(stored.Abs0, stored.Abs1)
	if stored.Neg0 {
		delta.Amount0.Neg(delta.Amount0)
	}
	if stored.Neg1 {
		delta.Amount1.Neg(delta.Amount1)
	}
	return delta, nil
}

func holderKey(addr crypto.Address) ([20]byte, error) {
	var key [20]byte
	b := addr.Bytes()
	if len(b) != 20 {
		return key, errInvalidIntent
	}
	copy(key[:], b)
	return key, nil
}
