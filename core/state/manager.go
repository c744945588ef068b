package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"reservehook/core/types"
	"reservehook/crypto"
	"reservehook/storage"
)

var accountPrefix = []byte("state/account/")

// Manager is a journaled account and key-value store layered over a storage
// backend. Engines mutate the in-memory layer through Get/Put; callers that
// need all-or-nothing semantics bracket their work with Snapshot and
// RevertToSnapshot, and flush surviving changes with Commit.
type Manager struct {
	db storage.Database

	accounts map[string]*types.Account
	kv       map[string][]byte

	dirtyAccounts map[string]struct{}
	dirtyKV       map[string]struct{}

	journal []func()
}

// NewManager constructs a state manager over the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:            db,
		accounts:      make(map[string]*types.Account),
		kv:            make(map[string][]byte),
		dirtyAccounts: make(map[string]struct{}),
		dirtyKV:       make(map[string]struct{}),
	}
}

// GetAccount loads the account for the address, returning a fresh zero-balance
// account when none has been persisted yet. The returned value is a copy; the
// caller must PutAccount to make changes visible.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	key := string(addr.Bytes())
	if acc, ok := m.accounts[key]; ok {
		return acc.Clone(), nil
	}
	raw, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) || (err == nil && len(raw) == 0) {
		// Missing accounts materialise as empty ones.
		return types.NewAccount(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: load account: %w", err)
	}
	acc := new(types.Account)
	if err := rlp.DecodeBytes(raw, acc); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	acc.Normalize()
	m.accounts[key] = acc.Clone()
	return acc, nil
}

// PutAccount records the account in the journaled in-memory layer.
func (m *Manager) PutAccount(addr crypto.Address, acc *types.Account) error {
	if acc == nil {
		return fmt.Errorf("state: nil account")
	}
	key := string(addr.Bytes())
	prev, hadPrev := m.accounts[key]
	_, wasDirty := m.dirtyAccounts[key]
	m.journal = append(m.journal, func() {
		if hadPrev {
			m.accounts[key] = prev
		} else {
			delete(m.accounts, key)
		}
		if !wasDirty {
			delete(m.dirtyAccounts, key)
		}
	})
	stored := acc.Clone()
	stored.Normalize()
	m.accounts[key] = stored
	m.dirtyAccounts[key] = struct{}{}
	return nil
}

// KVGet decodes the value stored under key into out, reporting whether the key
// exists.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	k := string(key)
	raw, ok := m.kv[k]
	if !ok {
		persisted, err := m.db.Get(key)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && len(persisted) == 0) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("state: load %q: %w", k, err)
		}
		raw = persisted
		m.kv[k] = raw
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", k, err)
	}
	return true, nil
}

// KVPut encodes and stores the value under key in the journaled layer.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", string(key), err)
	}
	k := string(key)
	prev, hadPrev := m.kv[k]
	_, wasDirty := m.dirtyKV[k]
	m.journal = append(m.journal, func() {
		if hadPrev {
			m.kv[k] = prev
		} else {
			delete(m.kv, k)
		}
		if !wasDirty {
			delete(m.dirtyKV, k)
		}
	})
	m.kv[k] = encoded
	m.dirtyKV[k] = struct{}{}
	return nil
}

// Snapshot returns a revision identifier for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot unwinds every mutation recorded after the supplied
// revision, most recent first.
func (m *Manager) RevertToSnapshot(rev int) {
	if rev < 0 || rev > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= rev; i-- {
		m.journal[i]()
	}
	m.journal = m.journal[:rev]
}

// Commit flushes all dirty entries to the backing database and resets the
// journal. Changes become irrevocable once committed.
func (m *Manager) Commit() error {
	for key := range m.dirtyAccounts {
		acc := m.accounts[key]
		encoded, err := rlp.EncodeToBytes(acc)
		if err != nil {
			return fmt.Errorf("state: encode account: %w", err)
		}
		dbKey := append(append([]byte{}, accountPrefix...), key...)
		if err := m.db.Put(dbKey, encoded); err != nil {
			return err
		}
	}
	for key := range m.dirtyKV {
		if err := m.db.Put([]byte(key), m.kv[key]); err != nil {
			return err
		}
	}
	m.dirtyAccounts = make(map[string]struct{})
	m.dirtyKV = make(map[string]struct{})
	m.journal = nil
	return nil
}

func accountKey(addr crypto.Address) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr.Bytes()))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr.Bytes())
	return buf
}
