package crypto

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ModuleAddress derives a deterministic account address for a named system
// module. No private key exists for these accounts.
func ModuleAddress(name string) Address {
	digest := ethcrypto.Keccak256([]byte("module/" + name))
	return NewAddress(NRVPrefix, digest[len(digest)-20:])
}
