package service

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces the account signature over a user operation hash.
type Signer interface {
	Address() common.Address
	SignUserOpHash(ctx context.Context, userOpHash common.Hash) ([]byte, error)
}

// ECDSASigner signs with a single secp256k1 key. In personal mode the hash is wrapped in the
// EIP-191 "Ethereum Signed Message" prefix first, which is what most smart accounts validate.
type ECDSASigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	personal   bool
}

func NewECDSASigner(privateKeyHex string, personalSign bool) (*ECDSASigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &ECDSASigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		personal:   personalSign,
	}, nil
}

func (s *ECDSASigner) Address() common.Address {
	return s.address
}

// SignUserOpHash returns a 65-byte [R || S || V] signature with V in {27, 28}.
func (s *ECDSASigner) SignUserOpHash(_ context.Context, userOpHash common.Hash) ([]byte, error) {
	digest := userOpHash.Bytes()
	if s.personal {
		digest = accounts.TextHash(digest)
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign user operation hash: %w", err)
	}
	signature[crypto.RecoveryIDOffset] += 27

	return signature, nil
}
