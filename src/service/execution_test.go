package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ethaccount/userop/erc4337"
	"github.com/ethaccount/userop/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	senderA = "0x1111111111111111111111111111111111111111"
	senderB = "0x2222222222222222222222222222222222222222"
	senderC = "0x3333333333333333333333333333333333333333"
)

func getTestExecutionService(t *testing.T, bundler *fakeBundler, store *memStore, queue *memQueue, maxAttempts int) *ExecutionService {
	t.Helper()

	signer, err := NewECDSASigner(TestPrivateKey, false)
	require.NoError(t, err, "Failed to create signer")

	return NewExecutionService(bundler, signer, store, queue, testWaitConfig(maxAttempts))
}

func TestExecute_Succeeded(t *testing.T) {
	store, queue := newMemStore(), newMemQueue()
	bundler := &fakeBundler{receiptAt: 2}
	executionService := getTestExecutionService(t, bundler, store, queue, 5)

	submission := submitTestOp(t, store, queue, testUserOp(senderA, 1))

	receipt, err := executionService.Execute(context.Background(), submission)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, submission.UserOpHash, receipt.UserOpHash.Hex())

	// the relay key signed the operation hash
	sent := bundler.sentOps()
	require.Len(t, sent, 1)
	userOpHash := common.HexToHash(submission.UserOpHash)
	assert.Equal(t, common.HexToAddress(TestSignerAddress), recoverSigner(t, userOpHash.Bytes(), sent[0].Signature))

	assert.Equal(t, []domain.SubmissionStatus{
		domain.SubmissionStatusQueued,
		domain.SubmissionStatusSubmitted,
		domain.SubmissionStatusSucceeded,
	}, store.statusHistory(submission.ID))

	stored, err := store.FindSubmissionByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TxHash)
	assert.Equal(t, testTxHash.Hex(), *stored.TxHash)
	assert.Nil(t, stored.ErrMsg)

	cached, err := queue.GetStatus(context.Background(), userOpHash)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStatusSucceeded, cached.Status)
	assert.Equal(t, testTxHash.Hex(), cached.TxHash)
}

func TestExecute_Reverted(t *testing.T) {
	store, queue := newMemStore(), newMemQueue()
	executionService := getTestExecutionService(t, &fakeBundler{receiptAt: 1, revert: true}, store, queue, 5)

	submission := submitTestOp(t, store, queue, testUserOp(senderA, 1))

	receipt, err := executionService.Execute(context.Background(), submission)
	require.NoError(t, err)
	assert.False(t, receipt.Success)

	stored, err := store.FindSubmissionByID(context.Background(), submission.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStatusReverted, stored.Status)
	require.NotNil(t, stored.ErrMsg)
	assert.Equal(t, "0x08c379a0", *stored.ErrMsg)
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name       string
		bundler    *fakeBundler
		wantStatus domain.SubmissionStatus
		wantErr    error
		wantSent   int
	}{
		{
			name:       "rejected by bundler",
			bundler:    &fakeBundler{rejectSenders: map[common.Address]error{common.HexToAddress(senderA): errors.New("AA25 invalid account nonce")}},
			wantStatus: domain.SubmissionStatusRejected,
			wantErr:    erc4337.ErrSubmissionRejected,
			wantSent:   1,
		},
		{
			name:       "no receipt",
			bundler:    &fakeBundler{},
			wantStatus: domain.SubmissionStatusTimeout,
			wantErr:    erc4337.ErrReceiptTimeout,
			wantSent:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, queue := newMemStore(), newMemQueue()
			executionService := getTestExecutionService(t, tt.bundler, store, queue, 3)
			submission := submitTestOp(t, store, queue, testUserOp(senderA, 1))

			_, err := executionService.Execute(context.Background(), submission)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Len(t, tt.bundler.sentOps(), tt.wantSent)

			stored, err := store.FindSubmissionByID(context.Background(), submission.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stored.Status)
			require.NotNil(t, stored.ErrMsg)
			assert.NotEmpty(t, *stored.ErrMsg)
		})
	}
}

func TestExecute_HashMismatch(t *testing.T) {
	store, queue := newMemStore(), newMemQueue()
	bundler := &fakeBundler{receiptAt: 1}
	executionService := getTestExecutionService(t, bundler, store, queue, 3)

	submission := submitTestOp(t, store, queue, testUserOp(senderA, 1))
	submission.UserOpHash = common.HexToHash("0x01").Hex()

	_, err := executionService.Execute(context.Background(), submission)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
	assert.Empty(t, bundler.sentOps())

	stored, err := store.FindSubmissionByID(context.Background(), submission.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStatusFailed, stored.Status)
}

func TestExecute_KeepsExistingSignature(t *testing.T) {
	store, queue := newMemStore(), newMemQueue()
	bundler := &fakeBundler{receiptAt: 1}
	executionService := getTestExecutionService(t, bundler, store, queue, 3)

	op := testUserOp(senderA, 1)
	op.Signature = []byte{0x01, 0x02, 0x03}
	submission := submitTestOp(t, store, queue, op)

	_, err := executionService.Execute(context.Background(), submission)
	require.NoError(t, err)

	sent := bundler.sentOps()
	require.Len(t, sent, 1)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, sent[0].Signature)
}

func TestExecute_ContextCancelled(t *testing.T) {
	store, queue := newMemStore(), newMemQueue()
	signer, err := NewECDSASigner(TestPrivateKey, false)
	require.NoError(t, err)
	executionService := NewExecutionService(&fakeBundler{}, signer, store, queue, erc4337.WaitConfig{Clock: neverClock{}})

	submission := submitTestOp(t, store, queue, testUserOp(senderA, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = executionService.Execute(ctx, submission)
	require.ErrorIs(t, err, context.Canceled)

	// the operation reached the bundler, so it stays submitted rather than failed
	assert.Equal(t, []domain.SubmissionStatus{
		domain.SubmissionStatusQueued,
		domain.SubmissionStatusSubmitted,
	}, store.statusHistory(submission.ID))
}

func TestExecuteAll(t *testing.T) {
	store, queue := newMemStore(), newMemQueue()
	rejection := errors.New("AA21 didn't pay prefund")
	bundler := &fakeBundler{
		receiptAt:     1,
		rejectSenders: map[common.Address]error{common.HexToAddress(senderB): rejection},
	}
	executionService := getTestExecutionService(t, bundler, store, queue, 3)

	submissions := []*domain.Submission{
		submitTestOp(t, store, queue, testUserOp(senderA, 1)),
		submitTestOp(t, store, queue, testUserOp(senderB, 1)),
		submitTestOp(t, store, queue, testUserOp(senderC, 1)),
	}

	results, err := executionService.ExecuteAll(context.Background(), submissions, 2)
	require.ErrorIs(t, err, rejection)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Receipt)
	assert.ErrorIs(t, results[1].Err, erc4337.ErrSubmissionRejected)
	assert.Nil(t, results[1].Receipt)
	assert.NoError(t, results[2].Err)

	assert.Equal(t, domain.SubmissionStatusSucceeded, results[0].Submission.Status)
	assert.Equal(t, domain.SubmissionStatusRejected, results[1].Submission.Status)
	assert.Equal(t, domain.SubmissionStatusSucceeded, results[2].Submission.Status)
	assert.Len(t, bundler.sentOps(), 3)
}

func TestResume(t *testing.T) {
	store, queue := newMemStore(), newMemQueue()
	bundler := &fakeBundler{receiptAt: 2}
	executionService := getTestExecutionService(t, bundler, store, queue, 5)

	submission := submitTestOp(t, store, queue, testUserOp(senderA, 1))

	_, err := executionService.Resume(context.Background(), submission)
	require.Error(t, err, "queued submissions are executed, not resumed")

	require.NoError(t, store.UpdateSubmission(context.Background(), submission.ID, domain.SubmissionUpdate{Status: domain.SubmissionStatusSubmitted}))
	submission.Status = domain.SubmissionStatusSubmitted

	receipt, err := executionService.Resume(context.Background(), submission)
	require.NoError(t, err)
	assert.Equal(t, submission.UserOpHash, receipt.UserOpHash.Hex())
	assert.Empty(t, bundler.sentOps())

	stored, err := store.FindSubmissionByID(context.Background(), submission.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStatusSucceeded, stored.Status)
	require.NotNil(t, stored.TxHash)
	assert.Equal(t, testTxHash.Hex(), *stored.TxHash)
}

func TestResume_Timeout(t *testing.T) {
	store, queue := newMemStore(), newMemQueue()
	executionService := getTestExecutionService(t, &fakeBundler{}, store, queue, 2)

	submission := submitTestOp(t, store, queue, testUserOp(senderA, 1))
	require.NoError(t, store.UpdateSubmission(context.Background(), submission.ID, domain.SubmissionUpdate{Status: domain.SubmissionStatusSubmitted}))
	submission.Status = domain.SubmissionStatusSubmitted

	_, err := executionService.Resume(context.Background(), submission)
	require.ErrorIs(t, err, erc4337.ErrReceiptTimeout)

	stored, err := store.FindSubmissionByID(context.Background(), submission.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStatusTimeout, stored.Status)
}
