package erc4337

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// GasEstimates is the result of eth_estimateUserOperationGas. Fee fields are only
// returned by some bundlers.
type GasEstimates struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit,omitempty"`
	MaxFeePerGas                  *hexutil.Big `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas          *hexutil.Big `json:"maxPriorityFeePerGas,omitempty"`
}

type parsedTransaction struct {
	BlockHash         common.Hash    `json:"blockHash"`
	BlockNumber       *hexutil.Big   `json:"blockNumber"`
	From              common.Address `json:"from"`
	CumulativeGasUsed *hexutil.Big   `json:"cumulativeGasUsed"`
	GasUsed           *hexutil.Big   `json:"gasUsed"`
	Logs              []*types.Log   `json:"logs"`
	LogsBloom         types.Bloom    `json:"logsBloom"`
	TransactionHash   common.Hash    `json:"transactionHash"`
	TransactionIndex  *hexutil.Big   `json:"transactionIndex"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
}

// UserOperationReceipt is the bundler's confirmation record for an included operation.
type UserOperationReceipt struct {
	UserOpHash    common.Hash        `json:"userOpHash"`
	EntryPoint    common.Address     `json:"entryPoint"`
	Sender        common.Address     `json:"sender"`
	Paymaster     common.Address     `json:"paymaster"`
	Nonce         *hexutil.Big       `json:"nonce"`
	Success       bool               `json:"success"`
	Reason        string             `json:"reason,omitempty"`
	ActualGasCost *hexutil.Big       `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big       `json:"actualGasUsed"`
	Receipt       *parsedTransaction `json:"receipt"`
	Logs          []*types.Log       `json:"logs"`
}

// TransactionHash returns the hash of the bundle transaction, or the zero hash when the
// bundler omitted the inner receipt.
func (r *UserOperationReceipt) TransactionHash() common.Hash {
	if r == nil || r.Receipt == nil {
		return common.Hash{}
	}
	return r.Receipt.TransactionHash
}

// Bundler is the subset of the ERC-4337 bundler JSON-RPC API used by this module.
// GetUserOperationReceipt returns a nil receipt and nil error while the operation is pending.
type Bundler interface {
	ChainId(ctx context.Context) (*big.Int, error)
	SupportedEntryPoints(ctx context.Context) ([]common.Address, error)
	EstimateUserOperationGas(ctx context.Context, op *UserOperation, entryPoint common.Address) (*GasEstimates, error)
	SendUserOperation(ctx context.Context, op *UserOperation, entryPoint common.Address) (common.Hash, error)
	GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*UserOperationReceipt, error)
}

type BundlerClient struct {
	client *rpc.Client
}

func DialContext(ctx context.Context, rawurl string) (*BundlerClient, error) {
	c, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return NewBundlerClient(c), nil
}

func NewBundlerClient(c *rpc.Client) *BundlerClient {
	return &BundlerClient{c}
}

func (b *BundlerClient) Close() {
	b.client.Close()
}

func (b *BundlerClient) ChainId(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	err := b.client.CallContext(ctx, &result, "eth_chainId")
	if err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

func (b *BundlerClient) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var result []common.Address
	err := b.client.CallContext(ctx, &result, "eth_supportedEntryPoints")
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *BundlerClient) EstimateUserOperationGas(ctx context.Context, op *UserOperation, entryPoint common.Address) (*GasEstimates, error) {
	var estimate GasEstimates
	err := b.client.CallContext(ctx, &estimate, "eth_estimateUserOperationGas", op, entryPoint)
	if err != nil {
		return nil, err
	}
	return &estimate, nil
}

func (b *BundlerClient) SendUserOperation(ctx context.Context, op *UserOperation, entryPoint common.Address) (common.Hash, error) {
	var result common.Hash
	err := b.client.CallContext(ctx, &result, "eth_sendUserOperation", op, entryPoint)
	return result, err
}

func (b *BundlerClient) GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*UserOperationReceipt, error) {
	// null while pending
	var receipt *UserOperationReceipt
	err := b.client.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", userOpHash)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}
