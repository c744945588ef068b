package reserve

import (
	"errors"
	"math/big"
)

var (
	errNilState            = errors.New("reserve engine: state not configured")
	errNotBootstrapped     = errors.New("reserve engine: ledger not bootstrapped")
	errAlreadyBootstrapped = errors.New("reserve engine: ledger already bootstrapped")
	errInvalidAmount       = errors.New("reserve engine: amount must be positive")
	errInvalidAddress      = errors.New("reserve engine: address must be 20 bytes")
	errInsufficientNative  = errors.New("reserve engine: native balance insufficient")
	errInsufficientTokens  = errors.New("reserve engine: issued-token balance insufficient")
	errInsufficientReserve = errors.New("reserve engine: reserve insufficient and no venue configured")
	errNoWrapper           = errors.New("reserve engine: wrapper not configured")
	errThresholdTooHigh    = errors.New("reserve engine: threshold above 100%")
	errZeroReceiver        = errors.New("reserve engine: yield receiver must not be zero address")
	errVenueNonzero        = errors.New("reserve engine: venue still holds balance")
	errVenueNotAdmin       = errors.New("reserve engine: venue does not expose admin surface")
	errNotOwner            = errors.New("reserve engine: caller is not the owner")
	errNotPendingOwner     = errors.New("reserve engine: caller is not the nominated owner")
)

var reserveAccountKey = []byte("reserve/account")

// wad is the fixed-point scale for the threshold fraction: 1e18 = 100%.
var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ReserveAccount is the singleton accounting record for the ledger. The idle
// reserve is not a field; it is the native balance of the ledger's module
// address.
type ReserveAccount struct {
	TotalIssued   *big.Int
	ThresholdWad  *big.Int
	YieldReceiver [20]byte
	Owner         [20]byte
	PendingOwner  [20]byte
}

// Clone returns a deep copy to avoid callers mutating shared pointers.
func (r *ReserveAccount) Clone() *ReserveAccount {
	if r == nil {
		return nil
	}
	clone := *r
	if r.TotalIssued != nil {
		clone.TotalIssued = new(big.Int).Set(r.TotalIssued)
	}
	if r.ThresholdWad != nil {
		clone.ThresholdWad = new(big.Int).Set(r.ThresholdWad)
	}
	return &clone
}

type storedReserveAccount struct {
	TotalIssued   *big.Int
	ThresholdWad  *big.Int
	YieldReceiver [20]byte
	Owner         [20]byte
	PendingOwner  [20]byte
}

func toStoredReserve(r *ReserveAccount) storedReserveAccount {
	stored := storedReserveAccount{
		YieldReceiver: r.YieldReceiver,
		Owner:         r.Owner,
		PendingOwner:  r.PendingOwner,
	}
	stored.TotalIssued = big.NewInt(0)
	if r.TotalIssued != nil {
		stored.TotalIssued = new(big.Int).Set(r.TotalIssued)
	}
	stored.ThresholdWad = big.NewInt(0)
	if r.ThresholdWad != nil {
		stored.ThresholdWad = new(big.Int).Set(r.ThresholdWad)
	}
	return stored
}

func fromStoredReserve(stored *storedReserveAccount) *ReserveAccount {
	record := &ReserveAccount{
		YieldReceiver: stored.YieldReceiver,
		Owner:         stored.Owner,
		PendingOwner:  stored.PendingOwner,
		TotalIssued:   big.NewInt(0),
		ThresholdWad:  big.NewInt(0),
	}
	if stored.TotalIssued != nil {
		record.TotalIssued = new(big.Int).Set(stored.TotalIssued)
	}
	if stored.ThresholdWad != nil {
		record.ThresholdWad = new(big.Int).Set(stored.ThresholdWad)
	}
	return record
}

func isZeroAddr(addr [20]byte) bool {
	for _, b := range addr {
		if b != 0 {
			return false
		}
	}
	return true
}
