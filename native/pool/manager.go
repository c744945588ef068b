package pool

import (
	"errors"
	"math/big"

	"reservehook/core/events"
	"reservehook/core/types"
	"reservehook/crypto"
	nativecommon "reservehook/native/common"
)

const moduleName = "pool"

var (
	errNilState          = errors.New("pool manager: state not configured")
	errNotUnlocked       = errors.New("pool manager: not inside an unlock context")
	errAlreadyUnlocked   = errors.New("pool manager: unlock context already open")
	errPoolExists        = errors.New("pool manager: pool already initialized")
	errPoolUnknown       = errors.New("pool manager: pool not initialized")
	errInvalidKey        = errors.New("pool manager: invalid pool key")
	errInvalidAmount     = errors.New("pool manager: amount must be positive")
	errUnknownAsset      = errors.New("pool manager: unknown asset")
	errEscrowBalance     = errors.New("pool manager: escrow balance insufficient")
	errPayerBalance      = errors.New("pool manager: payer balance insufficient")
	errAssetNotSettled   = errors.New("pool manager: asset deltas not settled")
	errNoPricingSource   = errors.New("pool manager: pool has no pricing source")
	errLiquidityBlocked  = errors.New("pool manager: liquidity provisioning not supported")
	errAmountUnspecified = errors.New("pool manager: swap amount not specified")
	errInvalidHolder     = errors.New("pool manager: holder address must be 20 bytes")
)

type managerState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

type poolRecord struct {
	key  PoolKey
	hook Hook
}

type deltaKey struct {
	holder [20]byte
	asset  string
}

// Manager is the trading venue's escrow and settlement surface: it holds the
// escrowed assets in its own module account, keeps per-holder signed pending
// deltas inside a single-use unlock context, and dispatches hook callbacks
// ahead of pool operations.
type Manager struct {
	state         managerState
	moduleAddress crypto.Address
	emitter       events.Emitter
	pauses        nativecommon.PauseView

	pools  map[[32]byte]*poolRecord
	escrow map[string]*big.Int

	unlocked bool
	locker   UnlockCallback
	deltas   map[deltaKey]*big.Int
}

// NewManager constructs a manager escrowing funds at moduleAddr.
func NewManager(moduleAddr crypto.Address) *Manager {
	return &Manager{
		moduleAddress: moduleAddr,
		emitter:       events.NoopEmitter{},
		pools:         make(map[[32]byte]*poolRecord),
		escrow:        make(map[string]*big.Int),
	}
}

// SetState wires the manager to the external persistence layer.
func (m *Manager) SetState(state managerState) { m.state = state }

// SetEmitter configures the event emitter used by the manager.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

func (m *Manager) SetPauses(p nativecommon.PauseView) {
	if m == nil {
		return
	}
	m.pauses = p
}

// ModuleAddress returns the escrow account address.
func (m *Manager) ModuleAddress() crypto.Address { return m.moduleAddress }

// Initialize registers a pool after the hook admits it. A hook failure leaves
// the pool unregistered.
func (m *Manager) Initialize(sender crypto.Address, key PoolKey, hook Hook) ([32]byte, error) {
	var id [32]byte
	if m == nil || m.state == nil {
		return id, errNilState
	}
	if err := nativecommon.Guard(m.pauses, moduleName); err != nil {
		return id, err
	}
	key.Asset0 = NormalizeAsset(key.Asset0)
	key.Asset1 = NormalizeAsset(key.Asset1)
	if key.Asset0 == "" || key.Asset1 == "" || key.Asset0 == key.Asset1 {
		return id, errInvalidKey
	}
	id = key.ID()
	if _, exists := m.pools[id]; exists {
		return id, errPoolExists
	}
	if hook != nil && hook.Permissions().BeforeInitialize {
		if err := hook.BeforeInitialize(sender, key); err != nil {
			return id, err
		}
	}
	m.pools[id] = &poolRecord{key: key, hook: hook}
	m.emitter.Emit(events.PairInitialized{
		PoolID: id,
		Asset0: key.Asset0,
		Asset1: key.Asset1,
		FeeBps: key.FeeBps,
	})
	return id, nil
}

// ModifyLiquidity routes a liquidity change through the pool's hook. The
// manager itself provides no liquidity positions; pools exist only as routing
// surfaces for hook-settled conversion.
func (m *Manager) ModifyLiquidity(sender crypto.Address, key PoolKey, liquidityDelta *big.Int) error {
	if m == nil || m.state == nil {
		return errNilState
	}
	record, err := m.lookup(key)
	if err != nil {
		return err
	}
	if liquidityDelta == nil || liquidityDelta.Sign() == 0 {
		return errInvalidAmount
	}
	if liquidityDelta.Sign() > 0 && record.hook != nil && record.hook.Permissions().BeforeAddLiquidity {
		if err := record.hook.BeforeAddLiquidity(sender, record.key, liquidityDelta); err != nil {
			return err
		}
	}
	return errLiquidityBlocked
}

// Unlock opens the single-use transactional context, invokes the callback,
// and refuses to close while any pending delta remains nonzero. The callback
// error aborts the whole context.
func (m *Manager) Unlock(cb UnlockCallback, payload []byte) ([]byte, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(m.pauses, moduleName); err != nil {
		return nil, err
	}
	if m.unlocked {
		return nil, errAlreadyUnlocked
	}
	if cb == nil {
		return nil, errNotUnlocked
	}
	m.unlocked = true
	m.locker = cb
	m.deltas = make(map[deltaKey]*big.Int)
	// Escrow tracking must roll back together with the caller's state
	// snapshot when the context aborts.
	saved := make(map[string]*big.Int, len(m.escrow))
	for asset, held := range m.escrow {
		saved[asset] = new(big.Int).Set(held)
	}
	defer func() {
		m.unlocked = false
		m.locker = nil
		m.deltas = nil
	}()

	out, err := cb.UnlockCallback(payload)
	if err != nil {
		m.escrow = saved
		return nil, err
	}
	for _, delta := range m.deltas {
		if delta.Sign() != 0 {
			m.escrow = saved
			return nil, errAssetNotSettled
		}
	}
	return out, nil
}

// Locker exposes the party that opened the current unlock context so the
// callback can verify it is the expected one.
func (m *Manager) Locker() UnlockCallback {
	if m == nil || !m.unlocked {
		return nil
	}
	return m.locker
}

// Take pays amount of asset out of escrow to recipient now, decreasing the
// caller's pending delta.
func (m *Manager) Take(caller crypto.Address, asset string, recipient crypto.Address, amount *big.Int) error {
	if m == nil || m.state == nil {
		return errNilState
	}
	if !m.unlocked {
		return errNotUnlocked
	}
	asset = NormalizeAsset(asset)
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	held, err := m.trackedEscrow(asset)
	if err != nil {
		return err
	}
	if held.Cmp(amount) < 0 {
		return errEscrowBalance
	}
	moduleAcc, err := m.state.GetAccount(m.moduleAddress)
	if err != nil {
		return err
	}
	recipientAcc, err := m.state.GetAccount(recipient)
	if err != nil {
		return err
	}
	if err := adjustAssetBalance(moduleAcc, asset, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	if err := adjustAssetBalance(recipientAcc, asset, amount); err != nil {
		return err
	}
	if err := m.state.PutAccount(m.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := m.state.PutAccount(recipient, recipientAcc); err != nil {
		return err
	}
	m.escrow[asset] = new(big.Int).Sub(held, amount)
	m.applyDelta(caller, asset, new(big.Int).Neg(amount))
	return nil
}

// Settle draws amount of asset from payer into escrow now, increasing the
// caller's pending delta.
func (m *Manager) Settle(caller crypto.Address, asset string, payer crypto.Address, amount *big.Int) error {
	if m == nil || m.state == nil {
		return errNilState
	}
	if !m.unlocked {
		return errNotUnlocked
	}
	asset = NormalizeAsset(asset)
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	held, err := m.trackedEscrow(asset)
	if err != nil {
		return err
	}
	payerAcc, err := m.state.GetAccount(payer)
	if err != nil {
		return err
	}
	balance, err := assetBalance(payerAcc, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return errPayerBalance
	}
	moduleAcc, err := m.state.GetAccount(m.moduleAddress)
	if err != nil {
		return err
	}
	if err := adjustAssetBalance(payerAcc, asset, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	if err := adjustAssetBalance(moduleAcc, asset, amount); err != nil {
		return err
	}
	if err := m.state.PutAccount(payer, payerAcc); err != nil {
		return err
	}
	if err := m.state.PutAccount(m.moduleAddress, moduleAcc); err != nil {
		return err
	}
	m.escrow[asset] = new(big.Int).Add(held, amount)
	m.applyDelta(caller, asset, amount)
	return nil
}

// Sync adopts the manager's on-account balance as the tracked escrow holding
// for the asset, absorbing donations or drift.
func (m *Manager) Sync(asset string) (*big.Int, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	asset = NormalizeAsset(asset)
	moduleAcc, err := m.state.GetAccount(m.moduleAddress)
	if err != nil {
		return nil, err
	}
	balance, err := assetBalance(moduleAcc, asset)
	if err != nil {
		return nil, err
	}
	m.escrow[asset] = new(big.Int).Set(balance)
	return new(big.Int).Set(balance), nil
}

// PendingDelta reports the holder's transient claim for the asset within the
// current unlock context.
func (m *Manager) PendingDelta(holder crypto.Address, asset string) *big.Int {
	if m == nil || !m.unlocked {
		return big.NewInt(0)
	}
	key, err := holderKey(holder)
	if err != nil {
		return big.NewInt(0)
	}
	delta, ok := m.deltas[deltaKey{holder: key, asset: NormalizeAsset(asset)}]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(delta)
}

// Swap dispatches the pool's hook and, when the hook fully settles the trade
// via an override delta, accrues the swap result to the caller without
// applying any pricing of its own. Pools without a settling hook cannot swap.
func (m *Manager) Swap(caller crypto.Address, key PoolKey, params SwapParams) (BalanceDelta, error) {
	if m == nil || m.state == nil {
		return BalanceDelta{}, errNilState
	}
	if !m.unlocked {
		return BalanceDelta{}, errNotUnlocked
	}
	record, err := m.lookup(key)
	if err != nil {
		return BalanceDelta{}, err
	}
	if params.AmountSpecified == nil || params.AmountSpecified.Sign() == 0 {
		return BalanceDelta{}, errAmountUnspecified
	}
	hook := record.hook
	if hook == nil || !hook.Permissions().BeforeSwap {
		return BalanceDelta{}, errNoPricingSource
	}
	hookDelta, override, err := hook.BeforeSwap(caller, record.key, params)
	if err != nil {
		return BalanceDelta{}, err
	}
	if !override || !hook.Permissions().BeforeSwapReturnsDelta {
		return BalanceDelta{}, errNoPricingSource
	}
	hookDelta = NewBalanceDelta(hookDelta.Amount0, hookDelta.Amount1)
	// The override supersedes the hook's own take/settle bookkeeping and
	// assigns the trade to the swapper.
	m.applyDelta(hook.Address(), record.key.Asset0, new(big.Int).Neg(hookDelta.Amount0))
	m.applyDelta(hook.Address(), record.key.Asset1, new(big.Int).Neg(hookDelta.Amount1))
	m.applyDelta(caller, record.key.Asset0, hookDelta.Amount0)
	m.applyDelta(caller, record.key.Asset1, hookDelta.Amount1)
	return hookDelta, nil
}

func (m *Manager) lookup(key PoolKey) (*poolRecord, error) {
	key.Asset0 = NormalizeAsset(key.Asset0)
	key.Asset1 = NormalizeAsset(key.Asset1)
	record, ok := m.pools[key.ID()]
	if !ok {
		return nil, errPoolUnknown
	}
	return record, nil
}

func (m *Manager) trackedEscrow(asset string) (*big.Int, error) {
	if held, ok := m.escrow[asset]; ok {
		return held, nil
	}
	return m.Sync(asset)
}

func (m *Manager) applyDelta(holder crypto.Address, asset string, delta *big.Int) {
	if delta == nil || delta.Sign() == 0 {
		return
	}
	key, err := holderKey(holder)
	if err != nil {
		return
	}
	dk := deltaKey{holder: key, asset: NormalizeAsset(asset)}
	current, ok := m.deltas[dk]
	if !ok {
		current = big.NewInt(0)
	}
	m.deltas[dk] = new(big.Int).Add(current, delta)
}

func holderKey(addr crypto.Address) ([20]byte, error) {
	var key [20]byte
	b := addr.Bytes()
	if len(b) != 20 {
		return key, errInvalidHolder
	}
	copy(key[:], b)
	return key, nil
}

func assetBalance(acc *types.Account, asset string) (*big.Int, error) {
	switch asset {
	case AssetNRV:
		return new(big.Int).Set(acc.BalanceNRV), nil
	case AssetZRV:
		return new(big.Int).Set(acc.BalanceZRV), nil
	default:
		return nil, errUnknownAsset
	}
}

func adjustAssetBalance(acc *types.Account, asset string, delta *big.Int) error {
	switch asset {
	case AssetNRV:
		acc.BalanceNRV = new(big.Int).Add(acc.BalanceNRV, delta)
	case AssetZRV:
		acc.BalanceZRV = new(big.Int).Add(acc.BalanceZRV, delta)
	default:
		return errUnknownAsset
	}
	return nil
}
