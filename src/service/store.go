package service

import (
	"context"
	"time"

	"github.com/ethaccount/userop/src/domain"
	"github.com/ethaccount/userop/src/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// SubmissionStore persists submission records. *repository.SubmissionRepository satisfies it.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, submission *domain.Submission) error
	FindSubmissionByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error)
	FindSubmissionByUserOpHash(ctx context.Context, userOpHash common.Hash) (*domain.Submission, error)
	FindSubmissionsByStatus(ctx context.Context, status domain.SubmissionStatus) ([]*domain.Submission, error)
	UpdateSubmission(ctx context.Context, id uuid.UUID, update domain.SubmissionUpdate) error
}

// SubmissionQueue is the work queue plus the status cache. *repository.SubmissionCacheRepository
// satisfies it.
type SubmissionQueue interface {
	Enqueue(ctx context.Context, msg repository.QueueMessage) error
	DequeueBatch(ctx context.Context, timeout time.Duration, max int) ([]repository.QueueMessage, error)
	SetStatus(ctx context.Context, status *repository.SubmissionStatusCache) error
	GetStatus(ctx context.Context, userOpHash common.Hash) (*repository.SubmissionStatusCache, error)
	DeleteStatus(ctx context.Context, userOpHash common.Hash) error
	QueueLength(ctx context.Context) (int64, error)
}

var (
	_ SubmissionStore = (*repository.SubmissionRepository)(nil)
	_ SubmissionQueue = (*repository.SubmissionCacheRepository)(nil)
)
