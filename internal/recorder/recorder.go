// Package recorder journals every escrow operation, accepted or rejected, for later audit.
package recorder

import (
	"context"
	"time"
)

// Kind names the escrow operation.
type Kind string

// Operation kinds.
const (
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
	KindDraw     Kind = "draw"
)

// OutcomeOK marks an accepted operation. Rejections carry the error code instead.
const OutcomeOK = "ok"

// OperationEvent is one journal row. Amounts are base-10 strings, addresses are hex.
type OperationEvent struct {
	ID           string
	At           time.Time
	Kind         Kind
	Caller       string
	Counterparty string
	Amount       string
	Outcome      string
	Detail       string
	// State after the operation; empty for rejected operations.
	BalanceAfter string
	BudgetAfter  string
	TotalAfter   string
}

// Recorder persists operation events.
type Recorder interface {
	RecordOperation(evt *OperationEvent) error
	Recent(ctx context.Context, limit int) ([]OperationEvent, error)
	Close() error
}
