package erc4337

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrValueOutOfRange is returned when a numeric field does not fit its declared bit width.
	ErrValueOutOfRange = errors.New("value out of range")
	// ErrMissingPaymasterGasLimits is returned when a paymaster is set without both gas limits.
	ErrMissingPaymasterGasLimits = errors.New("paymaster with no gas limits")
	// ErrInvalidEncodingInput is returned for malformed hex or byte input.
	ErrInvalidEncodingInput = errors.New("invalid encoding input")
	// ErrSubmissionRejected is returned when the bundler refuses a user operation.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrReceiptTimeout is returned when no receipt arrives within the attempt budget.
	ErrReceiptTimeout = errors.New("receipt timeout")
)

// FieldError ties an encoding or range failure to the offending field.
type FieldError struct {
	Field string
	Err   error
	// Reason is optional extra context, e.g. the actual bit length.
	Reason string
}

func (e *FieldError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Field, e.Err, e.Reason)
}

func (e *FieldError) Unwrap() error { return e.Err }

// SubmissionError is returned when eth_sendUserOperation fails or returns no hash.
type SubmissionError struct {
	EntryPoint common.Address
	Cause      error
}

func (e *SubmissionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%v: bundler returned no user operation hash (entry point %s)", ErrSubmissionRejected, e.EntryPoint.Hex())
	}
	return fmt.Sprintf("%v: %v", ErrSubmissionRejected, e.Cause)
}

func (e *SubmissionError) Is(target error) bool { return target == ErrSubmissionRejected }

func (e *SubmissionError) Unwrap() error { return e.Cause }

// ReceiptTimeoutError carries the handle and attempt count so polling can be resumed.
type ReceiptTimeoutError struct {
	UserOpHash common.Hash
	Attempts   int
}

func (e *ReceiptTimeoutError) Error() string {
	return fmt.Sprintf("could not get receipt for %s after %d attempts", e.UserOpHash.Hex(), e.Attempts)
}

func (e *ReceiptTimeoutError) Is(target error) bool { return target == ErrReceiptTimeout }

func outOfRange(field string, bits int) error {
	return &FieldError{Field: field, Err: ErrValueOutOfRange, Reason: fmt.Sprintf("exceeds %d bits", bits)}
}

func invalidEncoding(field string, reason string) error {
	return &FieldError{Field: field, Err: ErrInvalidEncodingInput, Reason: reason}
}
