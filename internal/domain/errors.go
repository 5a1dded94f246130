package domain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotAuthorized signals a draw attempted by anyone but the agent.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInsufficientBalance signals a withdrawal above the depositor's recorded balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrRateLimited signals a draw above the accrued, balance-clamped budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransferFailed signals that the underlying asset refused a transfer.
	ErrTransferFailed = errors.New("transfer failed")
	// ErrTransferUnconfirmed signals a transfer that was submitted but whose outcome is unknown.
	ErrTransferUnconfirmed = errors.New("transfer unconfirmed")
	// ErrArithmeticOverflow signals a computation that does not fit in 256 bits.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInvalidAmount signals a zero or malformed amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidAddress signals a malformed or zero address.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrStateMismatch signals a persisted snapshot that contradicts configuration or its own invariants.
	ErrStateMismatch = errors.New("state mismatch")
)

// TransferDirection tells which way a failed transfer was headed.
type TransferDirection string

const (
	// TransferIn moves funds from a depositor into the pool.
	TransferIn TransferDirection = "in"
	// TransferOut moves funds from the pool to a recipient.
	TransferOut TransferDirection = "out"
)

// TransferError wraps ErrTransferFailed with the counterparty and the asset's reason.
// When the asset reports ErrTransferUnconfirmed it wraps that instead.
type TransferError struct {
	Direction    TransferDirection
	Counterparty common.Address
	Err          error
}

// Unconfirmed reports whether the transfer may still complete.
func (e *TransferError) Unconfirmed() bool {
	return errors.Is(e.Err, ErrTransferUnconfirmed)
}

func (e *TransferError) sentinel() error {
	if e.Unconfirmed() {
		return ErrTransferUnconfirmed
	}
	return ErrTransferFailed
}

func (e *TransferError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s %s", e.sentinel().Error(), e.Direction, e.Counterparty.Hex())
	}
	return fmt.Sprintf("%s: %s %s: %v", e.sentinel().Error(), e.Direction, e.Counterparty.Hex(), e.Err)
}

func (e *TransferError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransferFailed}
	}
	return []error{e.sentinel(), e.Err}
}

// NewTransferError builds a TransferError for the given direction.
func NewTransferError(dir TransferDirection, counterparty common.Address, cause error) error {
	return &TransferError{Direction: dir, Counterparty: counterparty, Err: cause}
}

// Code returns a stable snake_case code for err, "internal" when no sentinel matches.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTransferUnconfirmed):
		return "transfer_unconfirmed"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ErrStateMismatch):
		return "state_mismatch"
	default:
		return "internal"
	}
}
