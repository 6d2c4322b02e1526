package repository

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethaccount/userop/src/domain"
	"github.com/ethaccount/userop/src/testutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionCacheRepository_Queue(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	repo := NewSubmissionCacheRepository(rdb, "test_userop_queue")
	ctx := context.Background()

	empty, err := repo.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, empty)

	first := QueueMessage{SubmissionID: uuid.New(), UserOpHash: common.HexToHash("0x01")}
	second := QueueMessage{SubmissionID: uuid.New(), UserOpHash: common.HexToHash("0x02")}
	require.NoError(t, repo.Enqueue(ctx, first))
	require.NoError(t, repo.Enqueue(ctx, second))

	length, err := repo.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)

	got, err := repo.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first, *got)

	got, err = repo.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, second, *got)
}

func TestSubmissionCacheRepository_DequeueBatch(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	repo := NewSubmissionCacheRepository(rdb, "test_userop_queue")
	ctx := context.Background()

	var sent []QueueMessage
	for i := 1; i <= 3; i++ {
		msg := QueueMessage{SubmissionID: uuid.New(), UserOpHash: common.BigToHash(big.NewInt(int64(i)))}
		sent = append(sent, msg)
		require.NoError(t, repo.Enqueue(ctx, msg))
	}

	batch, err := repo.DequeueBatch(ctx, time.Second, 2)
	require.NoError(t, err)
	assert.Equal(t, sent[:2], batch)

	batch, err = repo.DequeueBatch(ctx, time.Second, 2)
	require.NoError(t, err)
	assert.Equal(t, sent[2:], batch)

	batch, err = repo.DequeueBatch(ctx, time.Second, 2)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestSubmissionCacheRepository_Status(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	repo := NewSubmissionCacheRepository(rdb, "test_userop_queue")
	ctx := context.Background()
	hash := common.HexToHash("0x03")

	missing, err := repo.GetStatus(ctx, hash)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.SetStatus(ctx, &SubmissionStatusCache{
		SubmissionID: uuid.New(),
		UserOpHash:   hash,
		Status:       domain.SubmissionStatusSubmitted,
	}))

	status, err := repo.GetStatus(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, domain.SubmissionStatusSubmitted, status.Status)
	assert.False(t, status.UpdatedAt.IsZero())

	ttl, err := rdb.TTL(ctx, repo.statusKey(hash)).Result()
	require.NoError(t, err)
	assert.InDelta(t, statusTTL.Seconds(), ttl.Seconds(), 5)

	require.NoError(t, repo.DeleteStatus(ctx, hash))
	status, err = repo.GetStatus(ctx, hash)
	require.NoError(t, err)
	assert.Nil(t, status)
}
