package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethaccount/userop/erc4337"
	"github.com/google/uuid"
)

// SubmissionStatus tracks a relayed user operation from enqueue to its final outcome.
type SubmissionStatus string

const (
	SubmissionStatusQueued    SubmissionStatus = "queued"
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusSucceeded SubmissionStatus = "succeeded"
	SubmissionStatusReverted  SubmissionStatus = "reverted"
	SubmissionStatusRejected  SubmissionStatus = "rejected"
	SubmissionStatusTimeout   SubmissionStatus = "timeout"
	SubmissionStatusFailed    SubmissionStatus = "failed"
)

// IsFinal reports whether no further transition is expected. A timed out submission is
// final for the worker but may still land on chain.
func (s SubmissionStatus) IsFinal() bool {
	switch s {
	case SubmissionStatusQueued, SubmissionStatusSubmitted:
		return false
	default:
		return true
	}
}

// Submission is a user operation accepted by the relay.
type Submission struct {
	ID            uuid.UUID        `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Sender        string           `gorm:"type:varchar(42);not null" json:"sender"`
	ChainID       int64            `gorm:"not null" json:"chainId"`
	EntryPoint    string           `gorm:"type:varchar(42);not null" json:"entryPoint"`
	UserOpHash    string           `gorm:"type:varchar(66);not null;uniqueIndex" json:"userOpHash"`
	UserOperation json.RawMessage  `gorm:"type:jsonb;not null" json:"userOperation"`
	Status        SubmissionStatus `gorm:"type:varchar(16);not null;default:queued" json:"status"`
	TxHash        *string          `gorm:"type:varchar(66)" json:"txHash,omitempty"`
	ErrMsg        *string          `gorm:"type:text" json:"errMsg,omitempty"`
	CreatedAt     time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt     time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (Submission) TableName() string {
	return "submissions"
}

// GetUserOperation returns the stored user operation as a typed struct
func (s *Submission) GetUserOperation() (*erc4337.UserOperation, error) {
	var userOp erc4337.UserOperation
	if err := json.Unmarshal(s.UserOperation, &userOp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user operation: %w", err)
	}
	return &userOp, nil
}

// SubmissionUpdate carries the fields the worker changes after each step.
type SubmissionUpdate struct {
	Status SubmissionStatus
	TxHash *string
	ErrMsg *string
}
