package service

import (
	"context"
	"sync"
	"time"

	"github.com/ethaccount/userop/src/domain"
	"github.com/ethaccount/userop/src/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const dequeueTimeout = time.Second

// SubmissionWorker pops queued submissions and executes them in batches. A single worker
// is expected per database.
type SubmissionWorker struct {
	queue     SubmissionQueue
	store     SubmissionStore
	execution *ExecutionService
	batchSize int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewSubmissionWorker creates a worker that executes up to batchSize submissions at once
func NewSubmissionWorker(ctx context.Context, queue SubmissionQueue, store SubmissionStore, execution *ExecutionService, batchSize int) *SubmissionWorker {
	ctx, cancel := context.WithCancel(ctx)
	if batchSize <= 0 {
		batchSize = 1
	}

	return &SubmissionWorker{
		queue:     queue,
		store:     store,
		execution: execution,
		batchSize: batchSize,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start recovers submissions left behind by a previous run, then begins consuming the queue
func (w *SubmissionWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.recoverSubmissions()
		w.processSubmissions()
	}()
}

// Stop cancels in-flight executions and waits for the worker to exit
func (w *SubmissionWorker) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *SubmissionWorker) logger() *zerolog.Logger {
	l := zerolog.Ctx(w.ctx).With().Str("component", "submission-worker").Logger()
	return &l
}

// recoverSubmissions puts queued rows back on the queue and resumes receipt polling for
// submitted rows. Both states are left behind when the worker stops mid-execution.
func (w *SubmissionWorker) recoverSubmissions() {
	queued, err := w.store.FindSubmissionsByStatus(w.ctx, domain.SubmissionStatusQueued)
	if err != nil {
		w.logger().Error().Err(err).Msg("failed to load queued submissions")
	}
	for _, submission := range queued {
		userOpHash := common.HexToHash(submission.UserOpHash)

		// status reads fall back to the database until the worker records a new state
		if err := w.queue.DeleteStatus(w.ctx, userOpHash); err != nil {
			w.logger().Warn().Err(err).Str("submission_id", submission.ID.String()).Msg("failed to drop cached status")
		}
		if err := w.queue.Enqueue(w.ctx, repository.QueueMessage{SubmissionID: submission.ID, UserOpHash: userOpHash}); err != nil {
			w.logger().Error().Err(err).Str("submission_id", submission.ID.String()).Msg("failed to re-enqueue submission")
		}
	}

	submitted, err := w.store.FindSubmissionsByStatus(w.ctx, domain.SubmissionStatusSubmitted)
	if err != nil {
		w.logger().Error().Err(err).Msg("failed to load submitted submissions")
	}

	if len(queued) > 0 || len(submitted) > 0 {
		w.logger().Info().
			Int("queued", len(queued)).
			Int("submitted", len(submitted)).
			Msg("recovering submissions")
	}
	if len(submitted) == 0 {
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		results, _ := w.execution.ResumeAll(w.ctx, submitted, w.batchSize)
		w.logResults(results)
	}()
}

func (w *SubmissionWorker) processSubmissions() {
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			messages, err := w.queue.DequeueBatch(w.ctx, dequeueTimeout, w.batchSize)
			if err != nil {
				// context cancelled during shutdown
				if w.ctx.Err() != nil {
					return
				}
				w.logger().Error().Err(err).Msg("error popping from queue")
			}
			if len(messages) == 0 {
				continue
			}

			seen := make(map[uuid.UUID]bool, len(messages))
			submissions := make([]*domain.Submission, 0, len(messages))
			for _, msg := range messages {
				if seen[msg.SubmissionID] {
					continue
				}
				seen[msg.SubmissionID] = true

				submission, err := w.store.FindSubmissionByID(w.ctx, msg.SubmissionID)
				if err != nil {
					w.logger().Error().Err(err).Str("submission_id", msg.SubmissionID.String()).Msg("failed to load submission")
					continue
				}
				if submission.Status != domain.SubmissionStatusQueued {
					w.logger().Warn().
						Str("submission_id", submission.ID.String()).
						Str("status", string(submission.Status)).
						Msg("skipping submission that is no longer queued")
					continue
				}
				submissions = append(submissions, submission)
			}

			w.processBatch(submissions)
		}
	}
}

func (w *SubmissionWorker) processBatch(submissions []*domain.Submission) {
	if len(submissions) == 0 {
		return
	}
	w.logger().Info().Int("count", len(submissions)).Msg("processing submissions")

	results, _ := w.execution.ExecuteAll(w.ctx, submissions, w.batchSize)
	w.logResults(results)
}

func (w *SubmissionWorker) logResults(results []ExecutionResult) {
	for _, result := range results {
		event := w.logger().Info()
		if result.Err != nil {
			event = w.logger().Warn().Err(result.Err)
		}
		event.Str("submission_id", result.Submission.ID.String()).
			Str("status", string(result.Submission.Status)).
			Msg("submission processed")
	}
}
