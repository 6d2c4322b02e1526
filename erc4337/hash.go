package erc4337

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// HashUserOp returns the intrinsic hash of op, keccak256 of its signature encoding.
// It does not bind the entry point or chain; use GetUserOpHash for the value accounts sign.
func HashUserOp(op Operation) (common.Hash, error) {
	encoded, err := EncodeUserOp(op, true)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// GetUserOpHash returns the v0.7 user operation hash:
// keccak256(abi.encode(HashUserOp(op), entryPoint, chainID)).
func GetUserOpHash(op Operation, entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	if chainID == nil {
		return common.Hash{}, &FieldError{Field: "chainId", Err: ErrValueOutOfRange, Reason: "missing"}
	}
	if err := checkWidth("chainId", chainID, uint256Bits); err != nil {
		return common.Hash{}, err
	}

	intrinsic, err := HashUserOp(op)
	if err != nil {
		return common.Hash{}, err
	}
	return DomainHash(intrinsic, entryPoint, chainID)
}

// DomainHash binds an intrinsic hash to an entry point and chain.
func DomainHash(intrinsic common.Hash, entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	if err := checkWidth("chainId", chainID, uint256Bits); err != nil {
		return common.Hash{}, err
	}
	encoded, err := domainArguments.Pack([32]byte(intrinsic), entryPoint, bigOrZero(chainID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode user operation hash domain: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}
