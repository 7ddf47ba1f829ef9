// Package predict computes the deterministic address a singleton factory
// produces for a given init code and salt, per the CREATE2 rules:
// keccak256(0xff ++ factory ++ salt ++ keccak256(initCode))[12:].
package predict

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SingletonFactoryAddress is the canonical ERC-2470 singleton factory,
// present at the same address on every chain it has been deployed to.
var SingletonFactoryAddress = common.HexToAddress("0xce0042B868300000d44A59004Da54A005ffdcf9f")

// Address computes the CREATE2 address for initCode deployed through factory
// with the given salt.
func Address(factory common.Address, salt [32]byte, initCode []byte) common.Address {
	initCodeHash := crypto.Keccak256Hash(initCode)
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

// CodeHash returns the keccak hash of runtime bytecode, as compared against
// an artifact's expected code hash during verification.
func CodeHash(code []byte) common.Hash {
	return crypto.Keccak256Hash(code)
}
