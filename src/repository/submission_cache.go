package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethaccount/userop/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const statusTTL = 24 * time.Hour

// QueueMessage is what the submission worker pops from the queue.
type QueueMessage struct {
	SubmissionID uuid.UUID   `json:"submission_id"`
	UserOpHash   common.Hash `json:"user_op_hash"`
}

// SubmissionStatusCache is the short-lived view of a submission served to status queries.
type SubmissionStatusCache struct {
	SubmissionID uuid.UUID               `json:"submission_id"`
	UserOpHash   common.Hash             `json:"user_op_hash"`
	Status       domain.SubmissionStatus `json:"status"`
	TxHash       string                  `json:"tx_hash,omitempty"`
	Error        string                  `json:"error,omitempty"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// SubmissionCacheRepository handles the Redis queue and the per-hash status cache
type SubmissionCacheRepository struct {
	redis       *redis.Client
	queueName   string
	statusCache string
	mu          sync.RWMutex
}

func NewSubmissionCacheRepository(redis *redis.Client, queueName string) *SubmissionCacheRepository {
	return &SubmissionCacheRepository{
		redis:       redis,
		queueName:   queueName,
		statusCache: queueName + ":status",
	}
}

func (r *SubmissionCacheRepository) statusKey(userOpHash common.Hash) string {
	return fmt.Sprintf("%s:%s", r.statusCache, userOpHash.Hex())
}

// Enqueue pushes a submission onto the queue
func (r *SubmissionCacheRepository) Enqueue(ctx context.Context, msg QueueMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}
	return r.redis.LPush(ctx, r.queueName, data).Err()
}

// Dequeue blocks up to timeout for the next submission. It returns nil, nil when the
// queue stayed empty.
func (r *SubmissionCacheRepository) Dequeue(ctx context.Context, timeout time.Duration) (*QueueMessage, error) {
	result, err := r.redis.BRPop(ctx, timeout, r.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var msg QueueMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue message: %w", err)
	}
	return &msg, nil
}

// DequeueBatch blocks up to timeout for the first submission, then takes up to max-1 more
// without blocking.
func (r *SubmissionCacheRepository) DequeueBatch(ctx context.Context, timeout time.Duration, max int) ([]QueueMessage, error) {
	first, err := r.Dequeue(ctx, timeout)
	if err != nil || first == nil {
		return nil, err
	}

	batch := []QueueMessage{*first}
	for len(batch) < max {
		data, err := r.redis.RPop(ctx, r.queueName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return batch, err
		}

		var msg QueueMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			return batch, fmt.Errorf("failed to unmarshal queue message: %w", err)
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

// SetStatus stores the status with a 24-hour expiration
func (r *SubmissionCacheRepository) SetStatus(ctx context.Context, status *SubmissionStatusCache) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status.UpdatedAt = time.Now()
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal submission status: %w", err)
	}
	return r.redis.Set(ctx, r.statusKey(status.UserOpHash), data, statusTTL).Err()
}

// GetStatus returns the cached status, or nil, nil on a cache miss
func (r *SubmissionCacheRepository) GetStatus(ctx context.Context, userOpHash common.Hash) (*SubmissionStatusCache, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := r.redis.Get(ctx, r.statusKey(userOpHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var status SubmissionStatusCache
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission status: %w", err)
	}
	return &status, nil
}

// DeleteStatus removes the cached status
func (r *SubmissionCacheRepository) DeleteStatus(ctx context.Context, userOpHash common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.redis.Del(ctx, r.statusKey(userOpHash)).Err()
}

// QueueLength returns the number of submissions waiting in the queue
func (r *SubmissionCacheRepository) QueueLength(ctx context.Context) (int64, error) {
	return r.redis.LLen(ctx, r.queueName).Result()
}
