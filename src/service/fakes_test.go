package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethaccount/userop/erc4337"
	"github.com/ethaccount/userop/src/domain"
	"github.com/ethaccount/userop/src/repository"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testChainID = big.NewInt(1337)

type immediateClock struct{}

func (immediateClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0)
	return ch
}

func testWaitConfig(maxAttempts int) erc4337.WaitConfig {
	return erc4337.WaitConfig{Clock: immediateClock{}, MaxAttempts: maxAttempts}
}

// fakeBundler accepts every operation under its real hash and reports a receipt on the
// receiptAt-th query for that hash.
type fakeBundler struct {
	mu sync.Mutex

	estimates     *erc4337.GasEstimates
	estimateErr   error
	rejectSenders map[common.Address]error
	receiptAt     int
	revert        bool

	estimated []*erc4337.UserOperation
	sent      []*erc4337.UserOperation
	queries   map[common.Hash]int
}

func (b *fakeBundler) ChainId(context.Context) (*big.Int, error) { return testChainID, nil }

func (b *fakeBundler) SupportedEntryPoints(context.Context) ([]common.Address, error) {
	return []common.Address{erc4337.EntryPointV07}, nil
}

func (b *fakeBundler) EstimateUserOperationGas(_ context.Context, op *erc4337.UserOperation, _ common.Address) (*erc4337.GasEstimates, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	copied := *op
	b.estimated = append(b.estimated, &copied)
	return b.estimates, b.estimateErr
}

func (b *fakeBundler) SendUserOperation(_ context.Context, op *erc4337.UserOperation, entryPoint common.Address) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sent = append(b.sent, op)
	if err, ok := b.rejectSenders[op.Sender]; ok {
		return common.Hash{}, err
	}
	return erc4337.GetUserOpHash(erc4337.Unpacked(op), entryPoint, testChainID)
}

func (b *fakeBundler) GetUserOperationReceipt(_ context.Context, userOpHash common.Hash) (*erc4337.UserOperationReceipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.queries == nil {
		b.queries = make(map[common.Hash]int)
	}
	b.queries[userOpHash]++
	if b.receiptAt == 0 || b.queries[userOpHash] < b.receiptAt {
		return nil, nil
	}

	raw := fmt.Sprintf(`{"userOpHash":%q,"success":%t,"reason":%q,"receipt":{"transactionHash":%q}}`,
		userOpHash.Hex(), !b.revert, revertReason(b.revert), testTxHash.Hex())
	var receipt erc4337.UserOperationReceipt
	if err := json.Unmarshal([]byte(raw), &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (b *fakeBundler) sentOps() []*erc4337.UserOperation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*erc4337.UserOperation(nil), b.sent...)
}

var testTxHash = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000ff")

func revertReason(revert bool) string {
	if revert {
		return "0x08c379a0"
	}
	return ""
}

type fakeChain struct {
	baseFee *big.Int
	tip     *big.Int
	nonce   *big.Int
	err     error

	calls []ethereum.CallMsg
}

func (c *fakeChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &types.Header{BaseFee: c.baseFee}, nil
}

func (c *fakeChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.tip, nil
}

func (c *fakeChain) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.calls = append(c.calls, call)
	if c.err != nil {
		return nil, c.err
	}
	return common.LeftPadBytes(c.nonce.Bytes(), 32), nil
}

// memStore is an in-memory SubmissionStore.
type memStore struct {
	mu          sync.Mutex
	submissions map[uuid.UUID]domain.Submission
	history     map[uuid.UUID][]domain.SubmissionStatus
}

func newMemStore() *memStore {
	return &memStore{
		submissions: make(map[uuid.UUID]domain.Submission),
		history:     make(map[uuid.UUID][]domain.SubmissionStatus),
	}
}

func (s *memStore) CreateSubmission(_ context.Context, submission *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.submissions {
		if existing.UserOpHash == submission.UserOpHash {
			return domain.NewError(domain.ErrorCodeParameterInvalid, fmt.Errorf("duplicate"), domain.WithMsg("user operation already submitted"))
		}
	}
	if submission.ID == uuid.Nil {
		submission.ID = uuid.New()
	}
	submission.CreatedAt = time.Now()
	submission.UpdatedAt = submission.CreatedAt
	s.submissions[submission.ID] = *submission
	s.history[submission.ID] = []domain.SubmissionStatus{submission.Status}
	return nil
}

func (s *memStore) FindSubmissionByID(_ context.Context, id uuid.UUID) (*domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	submission, ok := s.submissions[id]
	if !ok {
		return nil, domain.NewError(domain.ErrorCodeResourceNotFound, fmt.Errorf("submission %s", id), domain.WithMsg("submission not found"))
	}
	return &submission, nil
}

func (s *memStore) FindSubmissionByUserOpHash(_ context.Context, userOpHash common.Hash) (*domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, submission := range s.submissions {
		if submission.UserOpHash == userOpHash.Hex() {
			return &submission, nil
		}
	}
	return nil, domain.NewError(domain.ErrorCodeResourceNotFound, fmt.Errorf("submission %s", userOpHash.Hex()), domain.WithMsg("submission not found"))
}

func (s *memStore) FindSubmissionsByStatus(_ context.Context, status domain.SubmissionStatus) ([]*domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []*domain.Submission
	for _, submission := range s.submissions {
		if submission.Status == status {
			submission := submission
			found = append(found, &submission)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Before(found[j].CreatedAt) })
	return found, nil
}

func (s *memStore) UpdateSubmission(_ context.Context, id uuid.UUID, update domain.SubmissionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	submission, ok := s.submissions[id]
	if !ok {
		return domain.NewError(domain.ErrorCodeResourceNotFound, fmt.Errorf("submission %s", id))
	}
	submission.Status = update.Status
	if update.TxHash != nil {
		submission.TxHash = update.TxHash
	}
	if update.ErrMsg != nil {
		submission.ErrMsg = update.ErrMsg
	}
	submission.UpdatedAt = time.Now()
	s.submissions[id] = submission
	s.history[id] = append(s.history[id], update.Status)
	return nil
}

func (s *memStore) statusHistory(id uuid.UUID) []domain.SubmissionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SubmissionStatus(nil), s.history[id]...)
}

// memQueue is an in-memory SubmissionQueue.
type memQueue struct {
	messages   chan repository.QueueMessage
	enqueueErr error

	mu       sync.Mutex
	statuses map[common.Hash]repository.SubmissionStatusCache
	deleted  []common.Hash
}

func newMemQueue() *memQueue {
	return &memQueue{
		messages: make(chan repository.QueueMessage, 64),
		statuses: make(map[common.Hash]repository.SubmissionStatusCache),
	}
}

func (q *memQueue) Enqueue(_ context.Context, msg repository.QueueMessage) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.messages <- msg
	return nil
}

func (q *memQueue) DequeueBatch(ctx context.Context, timeout time.Duration, max int) ([]repository.QueueMessage, error) {
	var batch []repository.QueueMessage
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, nil
	case msg := <-q.messages:
		batch = append(batch, msg)
	}
	for len(batch) < max {
		select {
		case msg := <-q.messages:
			batch = append(batch, msg)
		default:
			return batch, nil
		}
	}
	return batch, nil
}

func (q *memQueue) SetStatus(_ context.Context, status *repository.SubmissionStatusCache) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[status.UserOpHash] = *status
	return nil
}

func (q *memQueue) GetStatus(_ context.Context, userOpHash common.Hash) (*repository.SubmissionStatusCache, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	status, ok := q.statuses[userOpHash]
	if !ok {
		return nil, nil
	}
	return &status, nil
}

func (q *memQueue) DeleteStatus(_ context.Context, userOpHash common.Hash) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.statuses, userOpHash)
	q.deleted = append(q.deleted, userOpHash)
	return nil
}

func (q *memQueue) deletedStatuses() []common.Hash {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]common.Hash(nil), q.deleted...)
}

func (q *memQueue) QueueLength(context.Context) (int64, error) {
	return int64(len(q.messages)), nil
}

func (q *memQueue) dropStatus(userOpHash common.Hash) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.statuses, userOpHash)
}

func testUserOp(sender string, nonce int64) *erc4337.UserOperation {
	return &erc4337.UserOperation{
		Sender:               common.HexToAddress(sender),
		Nonce:                big.NewInt(nonce),
		CallData:             []byte{0xab, 0xcd, 0xef},
		CallGasLimit:         big.NewInt(100000),
		VerificationGasLimit: big.NewInt(50000),
		PreVerificationGas:   big.NewInt(21000),
		MaxPriorityFeePerGas: big.NewInt(1000000000),
		MaxFeePerGas:         big.NewInt(2000000000),
	}
}

func testEstimates() *erc4337.GasEstimates {
	return &erc4337.GasEstimates{
		CallGasLimit:         (*hexutil.Big)(big.NewInt(80000)),
		VerificationGasLimit: (*hexutil.Big)(big.NewInt(100000)),
		PreVerificationGas:   (*hexutil.Big)(big.NewInt(21005)),
	}
}

// submitTestOp stores op as a queued submission and drains the queue message.
func submitTestOp(t *testing.T, store *memStore, queue *memQueue, op *erc4337.UserOperation) *domain.Submission {
	t.Helper()

	userOps := NewUserOpService(store, queue, erc4337.EntryPointV07, testChainID)
	submission, err := userOps.Submit(context.Background(), op)
	require.NoError(t, err)
	<-queue.messages
	return submission
}

// neverClock never fires.
type neverClock struct{}

func (neverClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }
