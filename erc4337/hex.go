package erc4337

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseHexBig parses a 0x-prefixed hex quantity. Bundlers commonly send "0x", "0x00" or
// zero-padded values, so leading zeros are accepted; anything that is not hex is rejected.
func ParseHexBig(field, s string) (*big.Int, error) {
	if s == "" || s == "0x" || s == "0X" {
		return new(big.Int), nil
	}
	if !has0xPrefix(s) {
		return nil, invalidEncoding(field, "missing 0x prefix")
	}
	digits := s[2:]
	result, ok := new(big.Int).SetString(digits, 16)
	// SetString accepts a sign and underscores, hex quantities never carry either.
	if !ok || strings.ContainsAny(digits, "+-_") {
		return nil, invalidEncoding(field, "invalid hex quantity "+s)
	}
	if result.BitLen() > uint256Bits {
		return nil, outOfRange(field, uint256Bits)
	}
	if result.Sign() == 0 {
		return new(big.Int), nil
	}
	return result, nil
}

// ParseHexBytes decodes a 0x-prefixed, even-length hex string. An empty string decodes to
// an empty byte slice.
func ParseHexBytes(field, s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, invalidEncoding(field, err.Error())
	}
	return b, nil
}

// ParseAddress decodes a 20-byte hex address.
func ParseAddress(field, s string) (common.Address, error) {
	if !has0xPrefix(s) || !common.IsHexAddress(s) {
		return common.Address{}, invalidEncoding(field, "invalid address "+s)
	}
	return common.HexToAddress(s), nil
}

// ParseOptionalAddress decodes an address that may be absent. Null, "" and "0x" all mean
// absent.
func ParseOptionalAddress(field string, s *string) (*common.Address, error) {
	if s == nil || *s == "" || *s == "0x" || *s == "0X" {
		return nil, nil
	}
	addr, err := ParseAddress(field, *s)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func parseOptionalBig(field string, s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	return ParseHexBig(field, *s)
}

func parseWord(field, s string) (common.Hash, error) {
	b, err := ParseHexBytes(field, s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, invalidEncoding(field, "expected 32 bytes")
	}
	return common.BytesToHash(b), nil
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func encodeBig(v *big.Int) string {
	return hexutil.EncodeBig(bigOrZero(v))
}

func encodeOptionalBig(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := encodeBig(v)
	return &s
}
