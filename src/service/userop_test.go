package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethaccount/userop/erc4337"
	"github.com/ethaccount/userop/src/domain"
	"github.com/ethaccount/userop/src/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserOpService_Hash(t *testing.T) {
	svc := NewUserOpService(newMemStore(), newMemQueue(), erc4337.EntryPointV07, testChainID)
	op := testUserOp(senderA, 1)

	result, err := svc.Hash(erc4337.Unpacked(op), erc4337.EntryPointV07, testChainID)
	require.NoError(t, err)

	want, err := erc4337.GetUserOpHash(erc4337.Unpacked(op), erc4337.EntryPointV07, testChainID)
	require.NoError(t, err)
	intrinsic, err := erc4337.HashUserOp(erc4337.Unpacked(op))
	require.NoError(t, err)

	assert.Equal(t, want, result.UserOpHash)
	assert.Equal(t, intrinsic, result.IntrinsicHash)
	require.NotNil(t, result.Packed)
	assert.Equal(t, op.Sender, result.Packed.Sender)

	// packed input hashes the same
	packedResult, err := svc.Hash(erc4337.Packed(result.Packed), erc4337.EntryPointV07, testChainID)
	require.NoError(t, err)
	assert.Equal(t, result.UserOpHash, packedResult.UserOpHash)
}

func TestUserOpService_Hash_InvalidInput(t *testing.T) {
	svc := NewUserOpService(newMemStore(), newMemQueue(), erc4337.EntryPointV07, testChainID)

	tests := []struct {
		name      string
		op        *erc4337.UserOperation
		chainID   *big.Int
		wantField string
		wantErr   error
	}{
		{
			name: "call gas limit too wide",
			op: func() *erc4337.UserOperation {
				op := testUserOp(senderA, 1)
				op.CallGasLimit = new(big.Int).Lsh(big.NewInt(1), 128)
				return op
			}(),
			chainID:   testChainID,
			wantField: "callGasLimit",
			wantErr:   erc4337.ErrValueOutOfRange,
		},
		{
			name:      "missing chain id",
			op:        testUserOp(senderA, 1),
			wantField: "chainId",
			wantErr:   erc4337.ErrValueOutOfRange,
		},
		{
			name: "paymaster without limits",
			op: func() *erc4337.UserOperation {
				op := testUserOp(senderA, 1)
				paymaster := common.HexToAddress(senderC)
				op.Paymaster = &paymaster
				return op
			}(),
			chainID:   testChainID,
			wantField: "paymaster",
			wantErr:   erc4337.ErrMissingPaymasterGasLimits,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Hash(erc4337.Unpacked(tt.op), erc4337.EntryPointV07, tt.chainID)
			require.ErrorIs(t, err, tt.wantErr)

			var domainErr domain.DomainError
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, domain.ErrorCodeParameterInvalid.Name, domainErr.Name())
			assert.Equal(t, tt.wantField, domainErr.Detail()["field"])
		})
	}
}

func TestUserOpService_Encode(t *testing.T) {
	svc := NewUserOpService(newMemStore(), newMemQueue(), erc4337.EntryPointV07, testChainID)
	op := erc4337.Unpacked(testUserOp(senderA, 1))

	forSignature, err := svc.Encode(op, true)
	require.NoError(t, err)
	assert.Len(t, forSignature.Encoded, 256)
	assert.Equal(t, erc4337.CalldataCost(forSignature.Encoded), forSignature.CalldataGas)

	forCalldata, err := svc.Encode(op, false)
	require.NoError(t, err)
	assert.Greater(t, len(forCalldata.Encoded), 256)
	assert.Greater(t, forCalldata.CalldataGas, uint64(0))

	_, err = svc.Encode(erc4337.Operation{}, true)
	assert.ErrorIs(t, err, erc4337.ErrInvalidEncodingInput)
}

func TestUserOpService_Submit(t *testing.T) {
	store, queue := newMemStore(), newMemQueue()
	svc := NewUserOpService(store, queue, erc4337.EntryPointV07, testChainID)
	op := testUserOp(senderA, 7)

	submission, err := svc.Submit(context.Background(), op)
	require.NoError(t, err)

	wantHash, err := erc4337.GetUserOpHash(erc4337.Unpacked(op), erc4337.EntryPointV07, testChainID)
	require.NoError(t, err)
	assert.Equal(t, wantHash.Hex(), submission.UserOpHash)
	assert.Equal(t, domain.SubmissionStatusQueued, submission.Status)
	assert.Equal(t, int64(1337), submission.ChainID)
	assert.Equal(t, erc4337.EntryPointV07.Hex(), submission.EntryPoint)

	stored, err := submission.GetUserOperation()
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.Nonce.Int64())

	msg := <-queue.messages
	assert.Equal(t, repository.QueueMessage{SubmissionID: submission.ID, UserOpHash: wantHash}, msg)

	status, err := svc.GetStatus(context.Background(), wantHash)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStatusQueued, status.Status)

	// the same operation cannot be queued twice
	_, err = svc.Submit(context.Background(), op)
	var domainErr domain.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrorCodeParameterInvalid.Name, domainErr.Name())
}

func TestUserOpService_Submit_EnqueueFailure(t *testing.T) {
	store, queue := newMemStore(), newMemQueue()
	queue.enqueueErr = errors.New("redis unavailable")
	svc := NewUserOpService(store, queue, erc4337.EntryPointV07, testChainID)
	op := testUserOp(senderA, 1)

	_, err := svc.Submit(context.Background(), op)
	require.ErrorIs(t, err, queue.enqueueErr)

	hash, err := erc4337.GetUserOpHash(erc4337.Unpacked(op), erc4337.EntryPointV07, testChainID)
	require.NoError(t, err)
	stored, err := store.FindSubmissionByUserOpHash(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStatusFailed, stored.Status)
}

func TestValidateChainID(t *testing.T) {
	assert.NoError(t, ValidateChainID(big.NewInt(1)))
	assert.NoError(t, ValidateChainID(new(big.Int).SetUint64(1<<63-1)))

	for _, chainID := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1), new(big.Int).Lsh(big.NewInt(1), 63), new(big.Int).Lsh(big.NewInt(1), 64)} {
		err := ValidateChainID(chainID)
		var fieldErr *erc4337.FieldError
		require.ErrorAs(t, err, &fieldErr, "%v", chainID)
		assert.Equal(t, "chainId", fieldErr.Field)
		assert.ErrorIs(t, err, erc4337.ErrValueOutOfRange)
	}
}

func TestUserOpService_Submit_ChainIDTooWide(t *testing.T) {
	store, queue := newMemStore(), newMemQueue()
	chainID := new(big.Int).Lsh(big.NewInt(1), 64)
	svc := NewUserOpService(store, queue, erc4337.EntryPointV07, chainID)
	op := testUserOp(senderA, 1)

	_, err := svc.Submit(context.Background(), op)
	require.ErrorIs(t, err, erc4337.ErrValueOutOfRange)

	hash, err := erc4337.GetUserOpHash(erc4337.Unpacked(op), erc4337.EntryPointV07, chainID)
	require.NoError(t, err)
	_, err = store.FindSubmissionByUserOpHash(context.Background(), hash)
	assert.Error(t, err, "nothing is stored")

	length, err := queue.QueueLength(context.Background())
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestUserOpService_GetStatus(t *testing.T) {
	store, queue := newMemStore(), newMemQueue()
	svc := NewUserOpService(store, queue, erc4337.EntryPointV07, testChainID)

	submission := submitTestOp(t, store, queue, testUserOp(senderA, 1))
	hash := common.HexToHash(submission.UserOpHash)

	// falls back to the database once the cache entry is gone
	queue.dropStatus(hash)
	txHash := testTxHash.Hex()
	require.NoError(t, store.UpdateSubmission(context.Background(), submission.ID, domain.SubmissionUpdate{
		Status: domain.SubmissionStatusSucceeded,
		TxHash: &txHash,
	}))

	status, err := svc.GetStatus(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStatusSucceeded, status.Status)
	assert.Equal(t, txHash, status.TxHash)
	assert.Equal(t, submission.ID, status.SubmissionID)

	_, err = svc.GetStatus(context.Background(), common.HexToHash("0xdead"))
	var domainErr domain.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrorCodeResourceNotFound.Name, domainErr.Name())
}
