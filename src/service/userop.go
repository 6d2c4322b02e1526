package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethaccount/userop/erc4337"
	"github.com/ethaccount/userop/src/domain"
	"github.com/ethaccount/userop/src/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
)

type HashResult struct {
	Packed        *erc4337.PackedUserOp `json:"packed"`
	UserOpHash    common.Hash           `json:"userOpHash"`
	IntrinsicHash common.Hash           `json:"intrinsicHash"`
}

type EncodeResult struct {
	Encoded     hexutil.Bytes `json:"encoded"`
	CalldataGas uint64        `json:"calldataGas"`
}

// UserOpService backs the HTTP API: stateless hashing and encoding, and intake of
// operations for the submission worker.
type UserOpService struct {
	store      SubmissionStore
	queue      SubmissionQueue
	entryPoint common.Address
	chainID    *big.Int
}

func NewUserOpService(store SubmissionStore, queue SubmissionQueue, entryPoint common.Address, chainID *big.Int) *UserOpService {
	return &UserOpService{
		store:      store,
		queue:      queue,
		entryPoint: entryPoint,
		chainID:    chainID,
	}
}

// ValidateChainID rejects chain ids that do not fit the int64 column submissions are
// stored with.
func ValidateChainID(chainID *big.Int) error {
	switch {
	case chainID == nil:
		return &erc4337.FieldError{Field: "chainId", Err: erc4337.ErrValueOutOfRange, Reason: "missing"}
	case chainID.Sign() <= 0 || !chainID.IsInt64():
		return &erc4337.FieldError{Field: "chainId", Err: erc4337.ErrValueOutOfRange, Reason: "must be between 1 and 2^63-1, got " + chainID.String()}
	}
	return nil
}

func (s *UserOpService) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "userop").Logger()
	return &l
}

func (s *UserOpService) EntryPoint() common.Address { return s.entryPoint }

func (s *UserOpService) ChainID() *big.Int { return new(big.Int).Set(s.chainID) }

// Hash packs op and returns both stages of its hash.
func (s *UserOpService) Hash(op erc4337.Operation, entryPoint common.Address, chainID *big.Int) (*HashResult, error) {
	if chainID == nil {
		return nil, invalidUserOp(&erc4337.FieldError{Field: "chainId", Err: erc4337.ErrValueOutOfRange, Reason: "missing"})
	}
	packed, err := op.Pack()
	if err != nil {
		return nil, invalidUserOp(err)
	}
	intrinsic, err := erc4337.HashUserOp(erc4337.Packed(packed))
	if err != nil {
		return nil, invalidUserOp(err)
	}
	userOpHash, err := erc4337.DomainHash(intrinsic, entryPoint, chainID)
	if err != nil {
		return nil, invalidUserOp(err)
	}

	return &HashResult{
		Packed:        packed,
		UserOpHash:    userOpHash,
		IntrinsicHash: intrinsic,
	}, nil
}

func (s *UserOpService) Encode(op erc4337.Operation, forSignature bool) (*EncodeResult, error) {
	encoded, err := erc4337.EncodeUserOp(op, forSignature)
	if err != nil {
		return nil, invalidUserOp(err)
	}
	return &EncodeResult{
		Encoded:     encoded,
		CalldataGas: erc4337.CalldataCost(encoded),
	}, nil
}

// Submit records the operation and queues it for execution against the configured entry
// point and chain.
func (s *UserOpService) Submit(ctx context.Context, userOp *erc4337.UserOperation) (*domain.Submission, error) {
	if err := ValidateChainID(s.chainID); err != nil {
		return nil, domain.NewError(domain.ErrorCodeInternalProcess, err, domain.WithMsg("relay chain id cannot be stored"))
	}

	userOpHash, err := erc4337.GetUserOpHash(erc4337.Unpacked(userOp), s.entryPoint, s.chainID)
	if err != nil {
		return nil, invalidUserOp(err)
	}

	userOpJSON, err := json.Marshal(userOp)
	if err != nil {
		return nil, domain.NewError(domain.ErrorCodeInternalProcess, fmt.Errorf("failed to marshal user operation: %w", err))
	}

	submission := &domain.Submission{
		Sender:        userOp.Sender.Hex(),
		ChainID:       s.chainID.Int64(),
		EntryPoint:    s.entryPoint.Hex(),
		UserOpHash:    userOpHash.Hex(),
		UserOperation: userOpJSON,
		Status:        domain.SubmissionStatusQueued,
	}
	if err := s.store.CreateSubmission(ctx, submission); err != nil {
		return nil, err
	}

	if err := s.queue.SetStatus(ctx, statusCacheOf(submission)); err != nil {
		s.logger(ctx).Warn().Err(err).Str("user_op_hash", submission.UserOpHash).Msg("failed to cache submission status")
	}

	if err := s.queue.Enqueue(ctx, repository.QueueMessage{SubmissionID: submission.ID, UserOpHash: userOpHash}); err != nil {
		msg := "failed to enqueue submission"
		if updateErr := s.store.UpdateSubmission(ctx, submission.ID, domain.SubmissionUpdate{Status: domain.SubmissionStatusFailed, ErrMsg: &msg}); updateErr != nil {
			s.logger(ctx).Error().Err(updateErr).Str("submission_id", submission.ID.String()).Msg("failed to mark submission failed")
		}
		return nil, domain.NewError(domain.ErrorCodeInternalProcess, fmt.Errorf("%s: %w", msg, err))
	}

	s.logger(ctx).Info().
		Str("submission_id", submission.ID.String()).
		Str("user_op_hash", submission.UserOpHash).
		Str("sender", submission.Sender).
		Msg("submission queued")

	return submission, nil
}

// GetStatus returns the submission status, from the cache when present and otherwise from
// the database.
func (s *UserOpService) GetStatus(ctx context.Context, userOpHash common.Hash) (*repository.SubmissionStatusCache, error) {
	cached, err := s.queue.GetStatus(ctx, userOpHash)
	if err != nil {
		s.logger(ctx).Warn().Err(err).Str("user_op_hash", userOpHash.Hex()).Msg("status cache unavailable")
	}
	if cached != nil {
		return cached, nil
	}

	submission, err := s.store.FindSubmissionByUserOpHash(ctx, userOpHash)
	if err != nil {
		return nil, err
	}
	return statusCacheOf(submission), nil
}

// QueueLength reports how many submissions wait for the worker.
func (s *UserOpService) QueueLength(ctx context.Context) (int64, error) {
	return s.queue.QueueLength(ctx)
}

// invalidUserOp maps packing and encoding failures to a client error naming the field.
func invalidUserOp(err error) error {
	opts := []domain.ErrorOption{domain.WithMsg(err.Error())}
	var fieldErr *erc4337.FieldError
	if errors.As(err, &fieldErr) {
		opts = append(opts, domain.WithDetail(map[string]interface{}{"field": fieldErr.Field}))
	}
	return domain.NewError(domain.ErrorCodeParameterInvalid, err, opts...)
}
