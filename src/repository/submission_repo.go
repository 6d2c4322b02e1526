package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethaccount/userop/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubmissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) CreateSubmission(ctx context.Context, submission *domain.Submission) error {
	if err := r.db.WithContext(ctx).Create(submission).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("user operation already submitted"))
		}
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// FindSubmissionByID retrieves a submission by its ID
func (r *SubmissionRepository) FindSubmissionByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	var submission domain.Submission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&submission).Error; err != nil {
		return nil, notFound(err, "submission")
	}
	return &submission, nil
}

// FindSubmissionByUserOpHash retrieves a submission by the hash the bundler knows it under
func (r *SubmissionRepository) FindSubmissionByUserOpHash(ctx context.Context, userOpHash common.Hash) (*domain.Submission, error) {
	var submission domain.Submission
	if err := r.db.WithContext(ctx).Where("user_op_hash = ?", userOpHash.Hex()).First(&submission).Error; err != nil {
		return nil, notFound(err, "submission")
	}
	return &submission, nil
}

// FindSubmissionsByStatus retrieves submissions in the given status, oldest first
func (r *SubmissionRepository) FindSubmissionsByStatus(ctx context.Context, status domain.SubmissionStatus) ([]*domain.Submission, error) {
	var submissions []*domain.Submission
	if err := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at").Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to find submissions: %w", err)
	}
	return submissions, nil
}

// UpdateSubmission applies a status transition. Nil TxHash and ErrMsg leave the column unchanged.
func (r *SubmissionRepository) UpdateSubmission(ctx context.Context, id uuid.UUID, update domain.SubmissionUpdate) error {
	updates := map[string]interface{}{
		"status": update.Status,
	}
	if update.TxHash != nil {
		updates["tx_hash"] = *update.TxHash
	}
	if update.ErrMsg != nil {
		updates["err_msg"] = *update.ErrMsg
	}

	result := r.db.WithContext(ctx).Model(&domain.Submission{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update submission: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewError(domain.ErrorCodeResourceNotFound, fmt.Errorf("submission %s not found", id), domain.WithMsg("submission not found"))
	}
	return nil
}

func notFound(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewError(domain.ErrorCodeResourceNotFound, err, domain.WithMsg(resource+" not found"))
	}
	return fmt.Errorf("failed to find %s: %w", resource, err)
}
