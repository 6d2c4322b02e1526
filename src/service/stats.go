package service

import (
	"context"
	"fmt"

	"github.com/ethaccount/userop/src/domain"
)

// RelayStats is a snapshot of the relay's backlog.
type RelayStats struct {
	QueueLength int64
	Queued      int
	InFlight    int
}

// ReadRelayStats counts messages waiting on the queue and submissions not yet resolved.
// InFlight are the submissions the bundler accepted that still wait for a receipt.
func ReadRelayStats(ctx context.Context, store SubmissionStore, queue SubmissionQueue) (RelayStats, error) {
	var stats RelayStats

	length, err := queue.QueueLength(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to read queue length: %w", err)
	}
	stats.QueueLength = length

	queued, err := store.FindSubmissionsByStatus(ctx, domain.SubmissionStatusQueued)
	if err != nil {
		return stats, err
	}
	stats.Queued = len(queued)

	submitted, err := store.FindSubmissionsByStatus(ctx, domain.SubmissionStatusSubmitted)
	if err != nil {
		return stats, err
	}
	stats.InFlight = len(submitted)

	return stats, nil
}
