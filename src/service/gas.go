package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethaccount/userop/erc4337"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingBaseFee      = errors.New("latest block has no base fee")
	ErrIncompleteEstimates = errors.New("bundler returned incomplete gas estimates")
)

var (
	DefaultBaseFeeMultiplier        = decimal.NewFromFloat(1.5)
	DefaultVerificationGasMargin    = decimal.NewFromInt(100)
	DefaultPreVerificationGasMargin = decimal.NewFromInt(10)
)

// ChainReader is the part of the execution client used for fees and contract reads.
// *ethclient.Client satisfies it.
type ChainReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type FeeData struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

type FeeOracle struct {
	chain             ChainReader
	baseFeeMultiplier decimal.Decimal
}

func NewFeeOracle(chain ChainReader, baseFeeMultiplier decimal.Decimal) *FeeOracle {
	if !baseFeeMultiplier.IsPositive() {
		baseFeeMultiplier = DefaultBaseFeeMultiplier
	}
	return &FeeOracle{
		chain:             chain,
		baseFeeMultiplier: baseFeeMultiplier,
	}
}

// GetFeeData returns maxFeePerGas = baseFee * multiplier + tip and the suggested tip.
func (o *FeeOracle) GetFeeData(ctx context.Context) (*FeeData, error) {
	header, err := o.chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block header: %w", err)
	}
	if header.BaseFee == nil {
		return nil, ErrMissingBaseFee
	}

	tip, err := o.chain.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get max priority fee: %w", err)
	}
	if tip == nil {
		return nil, errors.New("max priority fee is missing")
	}

	maxFee := decimal.NewFromBigInt(header.BaseFee, 0).Mul(o.baseFeeMultiplier).Floor().BigInt()
	maxFee.Add(maxFee, tip)

	return &FeeData{
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: new(big.Int).Set(tip),
	}, nil
}

// GasEstimator wraps eth_estimateUserOperationGas with safety margins. Margins are
// percentages added on top of the bundler's figure.
type GasEstimator struct {
	bundler                  erc4337.Bundler
	verificationGasMargin    decimal.Decimal
	preVerificationGasMargin decimal.Decimal
}

func NewGasEstimator(bundler erc4337.Bundler, verificationGasMargin, preVerificationGasMargin decimal.Decimal) *GasEstimator {
	return &GasEstimator{
		bundler:                  bundler,
		verificationGasMargin:    verificationGasMargin,
		preVerificationGasMargin: preVerificationGasMargin,
	}
}

func (e *GasEstimator) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "gas").Logger()
	return &l
}

// Estimate returns the bundler's estimates with margins applied. The paymaster verification
// limit takes the inflated verification limit.
func (e *GasEstimator) Estimate(ctx context.Context, op *erc4337.UserOperation, entryPoint common.Address) (*erc4337.GasEstimates, error) {
	estimates, err := e.bundler.EstimateUserOperationGas(ctx, op, entryPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate user operation gas: %w", err)
	}
	if estimates == nil || estimates.CallGasLimit == nil || estimates.VerificationGasLimit == nil || estimates.PreVerificationGas == nil {
		return nil, ErrIncompleteEstimates
	}

	verificationGasLimit := addMargin(estimates.VerificationGasLimit.ToInt(), e.verificationGasMargin)
	preVerificationGas := addMargin(estimates.PreVerificationGas.ToInt(), e.preVerificationGasMargin)

	e.logger(ctx).Debug().
		Str("sender", op.Sender.Hex()).
		Str("call_gas_limit", estimates.CallGasLimit.ToInt().String()).
		Str("verification_gas_limit", verificationGasLimit.String()).
		Str("pre_verification_gas", preVerificationGas.String()).
		Msg("estimated user operation gas")

	return &erc4337.GasEstimates{
		CallGasLimit:                  (*hexutil.Big)(new(big.Int).Set(estimates.CallGasLimit.ToInt())),
		VerificationGasLimit:          (*hexutil.Big)(verificationGasLimit),
		PreVerificationGas:            (*hexutil.Big)(preVerificationGas),
		PaymasterVerificationGasLimit: (*hexutil.Big)(new(big.Int).Set(verificationGasLimit)),
		PaymasterPostOpGasLimit:       estimates.PaymasterPostOpGasLimit,
		MaxFeePerGas:                  estimates.MaxFeePerGas,
		MaxPriorityFeePerGas:          estimates.MaxPriorityFeePerGas,
	}, nil
}

// addMargin returns v + floor(v * percent / 100).
func addMargin(v *big.Int, percent decimal.Decimal) *big.Int {
	base := decimal.NewFromBigInt(v, 0)
	margin := base.Mul(percent).Div(decimal.NewFromInt(100)).Floor()
	return base.Add(margin).BigInt()
}
