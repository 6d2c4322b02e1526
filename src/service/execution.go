package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethaccount/userop/erc4337"
	"github.com/ethaccount/userop/src/domain"
	"github.com/ethaccount/userop/src/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ExecutionResult is the outcome of one submission in a batch.
type ExecutionResult struct {
	Submission *domain.Submission
	Receipt    *erc4337.UserOperationReceipt
	Err        error
}

type ExecutionService struct {
	bundler    erc4337.Bundler
	signer     Signer
	store      SubmissionStore
	statuses   SubmissionQueue
	waitConfig erc4337.WaitConfig
}

func NewExecutionService(bundler erc4337.Bundler, signer Signer, store SubmissionStore, statuses SubmissionQueue, waitConfig erc4337.WaitConfig) *ExecutionService {
	return &ExecutionService{
		bundler:    bundler,
		signer:     signer,
		store:      store,
		statuses:   statuses,
		waitConfig: waitConfig,
	}
}

// logger wraps the execution context with component info
func (s *ExecutionService) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "execution").Logger()
	return &l
}

// Execute signs the stored user operation if it carries no signature, submits it to the
// bundler and waits for the receipt. The final status is written to the store and the
// status cache. When ctx is cancelled while waiting the submission keeps its last status.
func (s *ExecutionService) Execute(ctx context.Context, submission *domain.Submission) (*erc4337.UserOperationReceipt, error) {
	log := s.logger(ctx).With().
		Str("submission_id", submission.ID.String()).
		Str("user_op_hash", submission.UserOpHash).
		Logger()

	log.Info().Str("sender", submission.Sender).Int64("chain_id", submission.ChainID).Msg("executing submission")

	userOp, err := submission.GetUserOperation()
	if err != nil {
		return nil, s.fail(ctx, submission, domain.SubmissionStatusFailed, err)
	}

	entryPoint := common.HexToAddress(submission.EntryPoint)
	userOpHash, err := erc4337.GetUserOpHash(erc4337.Unpacked(userOp), entryPoint, big.NewInt(submission.ChainID))
	if err != nil {
		return nil, s.fail(ctx, submission, domain.SubmissionStatusFailed, fmt.Errorf("failed to create user operation hash: %w", err))
	}
	if userOpHash.Hex() != submission.UserOpHash {
		return nil, s.fail(ctx, submission, domain.SubmissionStatusFailed, fmt.Errorf("stored hash %s does not match user operation hash %s", submission.UserOpHash, userOpHash.Hex()))
	}

	if len(userOp.Signature) == 0 {
		signature, err := s.signer.SignUserOpHash(ctx, userOpHash)
		if err != nil {
			return nil, s.fail(ctx, submission, domain.SubmissionStatusFailed, err)
		}
		userOp.Signature = signature
		log.Debug().Str("signer", s.signer.Address().Hex()).Msg("user operation signed")
	}

	cfg := s.waitConfig
	cfg.OnStateChange = func(state erc4337.SubmissionState, bundlerHash common.Hash, attempt int) {
		switch state {
		case erc4337.StateSubmitted:
			if bundlerHash != userOpHash {
				log.Warn().Str("bundler_hash", bundlerHash.Hex()).Msg("bundler returned a different user operation hash")
			}
			s.record(ctx, submission, domain.SubmissionUpdate{Status: domain.SubmissionStatusSubmitted})
		case erc4337.StateExhausted:
			log.Warn().Int("attempts", attempt).Msg("no receipt before polling budget ran out")
		default:
			log.Trace().Str("state", state.String()).Int("attempt", attempt).Msg("polling receipt")
		}
	}

	receipt, err := erc4337.SendUserOpAndWait(ctx, s.bundler, erc4337.Unpacked(userOp), entryPoint, cfg)
	return s.finish(ctx, submission, receipt, err)
}

// Resume polls for the receipt of a submission the bundler already accepted, e.g. one left
// in flight when the worker stopped. The operation is not sent again.
func (s *ExecutionService) Resume(ctx context.Context, submission *domain.Submission) (*erc4337.UserOperationReceipt, error) {
	if submission.Status != domain.SubmissionStatusSubmitted {
		return nil, fmt.Errorf("submission %s is %s, not submitted", submission.ID, submission.Status)
	}

	log := s.logger(ctx).With().
		Str("submission_id", submission.ID.String()).
		Str("user_op_hash", submission.UserOpHash).
		Logger()
	log.Info().Msg("resuming receipt polling")

	receipt, err := erc4337.WaitForReceipt(ctx, s.bundler, common.HexToHash(submission.UserOpHash), s.waitConfig)
	return s.finish(ctx, submission, receipt, err)
}

// finish records the outcome of a send or a resumed wait.
func (s *ExecutionService) finish(ctx context.Context, submission *domain.Submission, receipt *erc4337.UserOperationReceipt, err error) (*erc4337.UserOperationReceipt, error) {
	log := s.logger(ctx).With().Str("submission_id", submission.ID.String()).Logger()

	if err != nil {
		if ctx.Err() != nil {
			log.Warn().Err(err).Msg("execution interrupted")
			return nil, err
		}
		switch {
		case errors.Is(err, erc4337.ErrSubmissionRejected):
			return nil, s.fail(ctx, submission, domain.SubmissionStatusRejected, err)
		case errors.Is(err, erc4337.ErrReceiptTimeout):
			return nil, s.fail(ctx, submission, domain.SubmissionStatusTimeout, err)
		default:
			return nil, s.fail(ctx, submission, domain.SubmissionStatusFailed, err)
		}
	}

	txHash := receipt.TransactionHash().Hex()
	update := domain.SubmissionUpdate{Status: domain.SubmissionStatusSucceeded, TxHash: &txHash}
	if !receipt.Success {
		reason := receipt.Reason
		if reason == "" {
			reason = "user operation reverted"
		}
		update.Status = domain.SubmissionStatusReverted
		update.ErrMsg = &reason
	}
	s.record(ctx, submission, update)

	log.Info().Str("tx_hash", txHash).Bool("success", receipt.Success).Msg("submission executed")
	return receipt, nil
}

// ExecuteAll executes independent submissions concurrently, at most limit at a time. Each
// submission's outcome is in its result; the returned error is the first failure.
func (s *ExecutionService) ExecuteAll(ctx context.Context, submissions []*domain.Submission, limit int) ([]ExecutionResult, error) {
	return runAll(ctx, submissions, limit, s.Execute)
}

// ResumeAll is ExecuteAll for submissions already accepted by the bundler.
func (s *ExecutionService) ResumeAll(ctx context.Context, submissions []*domain.Submission, limit int) ([]ExecutionResult, error) {
	return runAll(ctx, submissions, limit, s.Resume)
}

func runAll(ctx context.Context, submissions []*domain.Submission, limit int, run func(context.Context, *domain.Submission) (*erc4337.UserOperationReceipt, error)) ([]ExecutionResult, error) {
	results := make([]ExecutionResult, len(submissions))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, submission := range submissions {
		i, submission := i, submission
		g.Go(func() error {
			receipt, err := run(ctx, submission)
			results[i] = ExecutionResult{Submission: submission, Receipt: receipt, Err: err}
			return err
		})
	}

	return results, g.Wait()
}

func (s *ExecutionService) fail(ctx context.Context, submission *domain.Submission, status domain.SubmissionStatus, err error) error {
	s.logger(ctx).Error().Err(err).
		Str("submission_id", submission.ID.String()).
		Str("status", string(status)).
		Msg("submission failed")

	msg := err.Error()
	s.record(ctx, submission, domain.SubmissionUpdate{Status: status, ErrMsg: &msg})
	return err
}

// record writes a status transition to the database and then the cache. Failures are logged;
// the chain outcome does not depend on them.
func (s *ExecutionService) record(ctx context.Context, submission *domain.Submission, update domain.SubmissionUpdate) {
	if err := s.store.UpdateSubmission(ctx, submission.ID, update); err != nil {
		s.logger(ctx).Error().Err(err).Str("submission_id", submission.ID.String()).Msg("failed to update submission")
	}

	submission.Status = update.Status
	if update.TxHash != nil {
		submission.TxHash = update.TxHash
	}
	if update.ErrMsg != nil {
		submission.ErrMsg = update.ErrMsg
	}

	if err := s.statuses.SetStatus(ctx, statusCacheOf(submission)); err != nil {
		s.logger(ctx).Error().Err(err).Str("submission_id", submission.ID.String()).Msg("failed to cache submission status")
	}
}

func statusCacheOf(submission *domain.Submission) *repository.SubmissionStatusCache {
	status := &repository.SubmissionStatusCache{
		SubmissionID: submission.ID,
		UserOpHash:   common.HexToHash(submission.UserOpHash),
		Status:       submission.Status,
		UpdatedAt:    submission.UpdatedAt,
	}
	if submission.TxHash != nil {
		status.TxHash = *submission.TxHash
	}
	if submission.ErrMsg != nil {
		status.Error = *submission.ErrMsg
	}
	return status
}
