package erc4337

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	addressType = mustNewType("address")
	uint256Type = mustNewType("uint256")
	bytes32Type = mustNewType("bytes32")
	bytesType   = mustNewType("bytes")

	// signatureArguments hashes every dynamic field so the tuple is 8 static words.
	signatureArguments = abi.Arguments{
		{Name: "sender", Type: addressType},
		{Name: "nonce", Type: uint256Type},
		{Name: "hashInitCode", Type: bytes32Type},
		{Name: "hashCallData", Type: bytes32Type},
		{Name: "accountGasLimits", Type: bytes32Type},
		{Name: "preVerificationGas", Type: uint256Type},
		{Name: "gasFees", Type: bytes32Type},
		{Name: "hashPaymasterAndData", Type: bytes32Type},
	}

	// calldataArguments mirrors the PackedUserOperation struct field by field.
	calldataArguments = abi.Arguments{
		{Name: "sender", Type: addressType},
		{Name: "nonce", Type: uint256Type},
		{Name: "initCode", Type: bytesType},
		{Name: "callData", Type: bytesType},
		{Name: "accountGasLimits", Type: bytes32Type},
		{Name: "preVerificationGas", Type: uint256Type},
		{Name: "gasFees", Type: bytes32Type},
		{Name: "paymasterAndData", Type: bytesType},
		{Name: "signature", Type: bytesType},
	}

	domainArguments = abi.Arguments{
		{Name: "userOpHash", Type: bytes32Type},
		{Name: "entryPoint", Type: addressType},
		{Name: "chainId", Type: uint256Type},
	}
)

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

// EncodeUserOp ABI-encodes the packed form of op.
//
// With forSignature set, initCode, callData and paymasterAndData are replaced by their
// keccak256 hashes and the signature is omitted; the result is always 256 bytes. Otherwise
// the raw fields and the signature are encoded with the usual head/tail layout.
func EncodeUserOp(op Operation, forSignature bool) ([]byte, error) {
	packed, err := op.Pack()
	if err != nil {
		return nil, err
	}
	nonce := bigOrZero(packed.Nonce)
	preVerificationGas := bigOrZero(packed.PreVerificationGas)

	if forSignature {
		encoded, err := signatureArguments.Pack(
			packed.Sender,
			nonce,
			[32]byte(crypto.Keccak256Hash(packed.InitCode)),
			[32]byte(crypto.Keccak256Hash(packed.CallData)),
			[32]byte(packed.AccountGasLimits),
			preVerificationGas,
			[32]byte(packed.GasFees),
			[32]byte(crypto.Keccak256Hash(packed.PaymasterAndData)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to encode user operation for signature: %w", err)
		}
		return encoded, nil
	}

	encoded, err := calldataArguments.Pack(
		packed.Sender,
		nonce,
		nonNilBytes(packed.InitCode),
		nonNilBytes(packed.CallData),
		[32]byte(packed.AccountGasLimits),
		preVerificationGas,
		[32]byte(packed.GasFees),
		nonNilBytes(packed.PaymasterAndData),
		nonNilBytes(packed.Signature),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user operation: %w", err)
	}
	return encoded, nil
}

// CalldataCost returns the EIP-2028 intrinsic calldata gas of b: 4 per zero byte, 16 per
// non-zero byte.
func CalldataCost(b []byte) uint64 {
	var gas uint64
	for _, c := range b {
		if c == 0 {
			gas += 4
		} else {
			gas += 16
		}
	}
	return gas
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
