package erc4337

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	uint128Bits = 128
	uint256Bits = 256

	// paymasterDataOffset is the length of paymaster address plus the two 16-byte gas limits.
	paymasterDataOffset = common.AddressLength + 32
)

// checkWidth rejects negative values and values wider than bits.
func checkWidth(field string, v *big.Int, bits int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 {
		return &FieldError{Field: field, Err: ErrValueOutOfRange, Reason: "negative value"}
	}
	if v.BitLen() > bits {
		return outOfRange(field, bits)
	}
	return nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// PackUint128 packs two uint128 values into one big-endian word: high in the upper
// 16 bytes, low in the lower 16 bytes. Nil values are treated as zero.
func PackUint128(high, low *big.Int) (common.Hash, error) {
	return packUint128("high128", "low128", high, low)
}

func packUint128(highField, lowField string, high, low *big.Int) (common.Hash, error) {
	if err := checkWidth(highField, high, uint128Bits); err != nil {
		return common.Hash{}, err
	}
	if err := checkWidth(lowField, low, uint128Bits); err != nil {
		return common.Hash{}, err
	}

	var word common.Hash
	bigOrZero(high).FillBytes(word[:16])
	bigOrZero(low).FillBytes(word[16:])
	return word, nil
}

// UnpackUint128 splits a packed word back into its high and low halves.
func UnpackUint128(word common.Hash) (high, low *big.Int) {
	high = new(big.Int).SetBytes(word[:16])
	low = new(big.Int).SetBytes(word[16:])
	return high, low
}

// PackPaymasterData builds paymasterAndData as
// paymaster ++ uint128(verificationGasLimit) ++ uint128(postOpGasLimit) ++ data.
// Deciding whether a paymaster is present at all is up to the caller.
func PackPaymasterData(paymaster common.Address, verificationGasLimit, postOpGasLimit *big.Int, data []byte) ([]byte, error) {
	gasLimits, err := packUint128("paymasterVerificationGasLimit", "paymasterPostOpGasLimit", verificationGasLimit, postOpGasLimit)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, paymasterDataOffset+len(data))
	out = append(out, paymaster.Bytes()...)
	out = append(out, gasLimits.Bytes()...)
	out = append(out, data...)
	return out, nil
}

// unpackPaymasterData is the inverse of PackPaymasterData.
func unpackPaymasterData(b []byte) (paymaster common.Address, verificationGasLimit, postOpGasLimit *big.Int, data []byte, err error) {
	if len(b) < paymasterDataOffset {
		return common.Address{}, nil, nil, nil, invalidEncoding("paymasterAndData", "shorter than 52 bytes")
	}
	paymaster = common.BytesToAddress(b[:common.AddressLength])
	verificationGasLimit, postOpGasLimit = UnpackUint128(common.BytesToHash(b[common.AddressLength:paymasterDataOffset]))
	data = common.CopyBytes(b[paymasterDataOffset:])
	if data == nil {
		data = []byte{}
	}
	return paymaster, verificationGasLimit, postOpGasLimit, data, nil
}
