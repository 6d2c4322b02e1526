package erc4337

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultPollingDelay = 100 * time.Millisecond
	DefaultMaxAttempts  = 200

	// NoPollingDelay, or any negative PollingDelay, disables the wait between queries.
	NoPollingDelay time.Duration = -1
)

// SubmissionState is the lifecycle of one submit-and-confirm call.
type SubmissionState int

const (
	StateSubmitted SubmissionState = iota
	StatePending
	StateResolved
	StateExhausted
)

func (s SubmissionState) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("SubmissionState(%d)", int(s))
	}
}

// Clock abstracts waiting so polling can be driven by a fake in tests.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

// SystemClock waits on the wall clock.
type SystemClock struct{}

func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// WaitConfig controls receipt polling. Zero values fall back to the defaults.
type WaitConfig struct {
	// PollingDelay is the wait before each receipt query. Zero means DefaultPollingDelay;
	// use NoPollingDelay to query back to back.
	PollingDelay time.Duration
	MaxAttempts  int
	Clock        Clock
	// OnStateChange, when set, is called on every state transition with the operation handle.
	// The handle is the zero hash until the bundler has accepted the operation.
	OnStateChange func(state SubmissionState, userOpHash common.Hash, attempt int)
}

func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		PollingDelay: DefaultPollingDelay,
		MaxAttempts:  DefaultMaxAttempts,
		Clock:        SystemClock{},
	}
}

func (c WaitConfig) withDefaults() WaitConfig {
	switch {
	case c.PollingDelay < 0:
		c.PollingDelay = 0
	case c.PollingDelay == 0:
		c.PollingDelay = DefaultPollingDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	return c
}

func (c WaitConfig) notify(state SubmissionState, userOpHash common.Hash, attempt int) {
	if c.OnStateChange != nil {
		c.OnStateChange(state, userOpHash, attempt)
	}
}

// SendUserOpAndWait submits op to the bundler for entryPoint and polls for its receipt.
//
// A rejected submission is returned as *SubmissionError and never retried. Polling waits
// PollingDelay before each of at most MaxAttempts receipt queries and stops at the first
// receipt; running out of attempts returns *ReceiptTimeoutError with the handle so the caller
// can resume through WaitForReceipt.
func SendUserOpAndWait(ctx context.Context, bundler Bundler, op Operation, entryPoint common.Address, cfg WaitConfig) (*UserOperationReceipt, error) {
	cfg = cfg.withDefaults()

	unpacked, err := op.Unpack()
	if err != nil {
		return nil, err
	}

	userOpHash, err := bundler.SendUserOperation(ctx, unpacked, entryPoint)
	if err != nil {
		return nil, &SubmissionError{EntryPoint: entryPoint, Cause: err}
	}
	if userOpHash == (common.Hash{}) {
		return nil, &SubmissionError{EntryPoint: entryPoint}
	}
	cfg.notify(StateSubmitted, userOpHash, 0)

	return waitForReceipt(ctx, bundler, userOpHash, cfg)
}

// WaitForReceipt runs only the polling phase for an already submitted operation.
func WaitForReceipt(ctx context.Context, bundler Bundler, userOpHash common.Hash, cfg WaitConfig) (*UserOperationReceipt, error) {
	return waitForReceipt(ctx, bundler, userOpHash, cfg.withDefaults())
}

func waitForReceipt(ctx context.Context, bundler Bundler, userOpHash common.Hash, cfg WaitConfig) (*UserOperationReceipt, error) {
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		cfg.notify(StatePending, userOpHash, attempt)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-cfg.Clock.After(cfg.PollingDelay):
		}

		receipt, err := bundler.GetUserOperationReceipt(ctx, userOpHash)
		if err != nil {
			return nil, fmt.Errorf("failed to get receipt for %s: %w", userOpHash.Hex(), err)
		}
		if receipt != nil {
			cfg.notify(StateResolved, userOpHash, attempt)
			return receipt, nil
		}
	}

	cfg.notify(StateExhausted, userOpHash, cfg.MaxAttempts)
	return nil, &ReceiptTimeoutError{UserOpHash: userOpHash, Attempts: cfg.MaxAttempts}
}
