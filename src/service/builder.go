package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethaccount/userop/erc4337"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
)

const entryPointNonceABI = `[{"inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"name":"getNonce","outputs":[{"name":"nonce","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// DummySignature is a well-formed 65-byte ECDSA signature used while estimating gas, so
// signature validation costs the same as with the real one.
var DummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

var entryPointABI = mustParseABI(entryPointNonceABI)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed
}

// BuildParams describes the operation to build. Factory is only set for accounts that are
// not deployed yet.
type BuildParams struct {
	Sender                  common.Address
	NonceKey                *big.Int
	Factory                 *common.Address
	FactoryData             []byte
	CallData                []byte
	Paymaster               *common.Address
	PaymasterPostOpGasLimit *big.Int
	PaymasterData           []byte
}

// BuildRequest is the JSON form of BuildParams. Quantities and byte strings are hex.
type BuildRequest struct {
	Sender                  string  `json:"sender"`
	NonceKey                string  `json:"nonceKey"`
	Factory                 *string `json:"factory"`
	FactoryData             string  `json:"factoryData"`
	CallData                string  `json:"callData"`
	Paymaster               *string `json:"paymaster"`
	PaymasterPostOpGasLimit *string `json:"paymasterPostOpGasLimit"`
	PaymasterData           string  `json:"paymasterData"`
}

// Params decodes the request. Factory and paymaster data are ignored when the matching
// address is absent.
func (r BuildRequest) Params() (BuildParams, error) {
	var params BuildParams
	var err error

	if params.Sender, err = erc4337.ParseAddress("sender", r.Sender); err != nil {
		return params, err
	}
	if params.NonceKey, err = erc4337.ParseHexBig("nonceKey", r.NonceKey); err != nil {
		return params, err
	}
	if params.CallData, err = erc4337.ParseHexBytes("callData", r.CallData); err != nil {
		return params, err
	}

	if params.Factory, err = erc4337.ParseOptionalAddress("factory", r.Factory); err != nil {
		return params, err
	}
	if params.Factory != nil {
		if params.FactoryData, err = erc4337.ParseHexBytes("factoryData", r.FactoryData); err != nil {
			return params, err
		}
	}

	if params.Paymaster, err = erc4337.ParseOptionalAddress("paymaster", r.Paymaster); err != nil {
		return params, err
	}
	if params.Paymaster != nil {
		if params.PaymasterData, err = erc4337.ParseHexBytes("paymasterData", r.PaymasterData); err != nil {
			return params, err
		}
		if r.PaymasterPostOpGasLimit != nil {
			if params.PaymasterPostOpGasLimit, err = erc4337.ParseHexBig("paymasterPostOpGasLimit", *r.PaymasterPostOpGasLimit); err != nil {
				return params, err
			}
		}
	}

	return params, nil
}

type UserOpBuilder struct {
	chain          ChainReader
	estimator      *GasEstimator
	feeOracle      *FeeOracle
	entryPoint     common.Address
	dummySignature []byte
}

func NewUserOpBuilder(chain ChainReader, estimator *GasEstimator, feeOracle *FeeOracle, entryPoint common.Address) *UserOpBuilder {
	return &UserOpBuilder{
		chain:          chain,
		estimator:      estimator,
		feeOracle:      feeOracle,
		entryPoint:     entryPoint,
		dummySignature: DummySignature,
	}
}

func (b *UserOpBuilder) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "builder").Logger()
	return &l
}

// GetNonce reads EntryPoint.getNonce(sender, key).
func (b *UserOpBuilder) GetNonce(ctx context.Context, sender common.Address, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = new(big.Int)
	}

	calldata, err := entryPointABI.Pack("getNonce", sender, key)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getNonce call: %w", err)
	}

	entryPoint := b.entryPoint
	result, err := b.chain.CallContract(ctx, ethereum.CallMsg{
		To:   &entryPoint,
		Data: calldata,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call getNonce: %w", err)
	}

	unpacked, err := entryPointABI.Unpack("getNonce", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getNonce result: %w", err)
	}
	nonce, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce result type %T", unpacked[0])
	}
	return nonce, nil
}

// CreateUserOperation returns an unsigned operation with nonce, gas limits and fees filled
// in. The signature field holds the dummy signature used for estimation.
func (b *UserOpBuilder) CreateUserOperation(ctx context.Context, params BuildParams) (*erc4337.UserOperation, error) {
	nonce, err := b.GetNonce(ctx, params.Sender, params.NonceKey)
	if err != nil {
		return nil, err
	}

	userOp := &erc4337.UserOperation{
		Sender:               params.Sender,
		Nonce:                nonce,
		CallData:             params.CallData,
		CallGasLimit:         new(big.Int),
		VerificationGasLimit: new(big.Int),
		PreVerificationGas:   new(big.Int),
		MaxFeePerGas:         new(big.Int),
		MaxPriorityFeePerGas: new(big.Int),
		Signature:            append([]byte(nil), b.dummySignature...),
	}
	if params.Factory != nil {
		factory := *params.Factory
		userOp.Factory = &factory
		userOp.FactoryData = params.FactoryData
	}

	estimates, err := b.estimator.Estimate(ctx, userOp, b.entryPoint)
	if err != nil {
		return nil, err
	}

	fees, err := b.feeOracle.GetFeeData(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get fee data: %w", err)
	}

	userOp.CallGasLimit = estimates.CallGasLimit.ToInt()
	userOp.VerificationGasLimit = estimates.VerificationGasLimit.ToInt()
	userOp.PreVerificationGas = estimates.PreVerificationGas.ToInt()
	userOp.MaxFeePerGas = fees.MaxFeePerGas
	userOp.MaxPriorityFeePerGas = fees.MaxPriorityFeePerGas

	if params.Paymaster != nil {
		paymaster := *params.Paymaster
		userOp.Paymaster = &paymaster
		userOp.PaymasterVerificationGasLimit = estimates.PaymasterVerificationGasLimit.ToInt()
		userOp.PaymasterPostOpGasLimit = params.PaymasterPostOpGasLimit
		if userOp.PaymasterPostOpGasLimit == nil && estimates.PaymasterPostOpGasLimit != nil {
			userOp.PaymasterPostOpGasLimit = estimates.PaymasterPostOpGasLimit.ToInt()
		}
		userOp.PaymasterData = params.PaymasterData
	}

	b.logger(ctx).Info().
		Str("sender", userOp.Sender.Hex()).
		Str("nonce", nonce.String()).
		Str("max_fee_per_gas", userOp.MaxFeePerGas.String()).
		Bool("paymaster", userOp.Paymaster != nil).
		Msg("user operation created")

	return userOp, nil
}
