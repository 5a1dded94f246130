// Package api defines the HTTP contract of the escrow service: wire types, the server
// interface and the chi router that binds path and query parameters.
package api

import "time"

// ErrorResponseCode is the machine-readable error code.
type ErrorResponseCode string

// Defines values for ErrorResponseCode.
const (
	ErrorResponseCodeBadRequest          ErrorResponseCode = "bad_request"
	ErrorResponseCodeValidationFailed    ErrorResponseCode = "validation_failed"
	ErrorResponseCodeUnauthenticated     ErrorResponseCode = "unauthenticated"
	ErrorResponseCodeNotAuthorized       ErrorResponseCode = "not_authorized"
	ErrorResponseCodeInsufficientBalance ErrorResponseCode = "insufficient_balance"
	ErrorResponseCodeRateLimited         ErrorResponseCode = "rate_limited"
	ErrorResponseCodeTransferFailed      ErrorResponseCode = "transfer_failed"
	ErrorResponseCodeTransferUnconfirmed ErrorResponseCode = "transfer_unconfirmed"
	ErrorResponseCodeArithmeticOverflow  ErrorResponseCode = "arithmetic_overflow"
	ErrorResponseCodeInternalError       ErrorResponseCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
}

// AmountRequest is the body of deposit and withdrawal requests.
// Amounts are base-10 strings in the asset's smallest unit.
type AmountRequest struct {
	Amount string `json:"amount"`
}

// DrawRequest is the body of a draw request.
type DrawRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// OperationResponse reports the state right after an accepted operation.
type OperationResponse struct {
	OperationId   string    `json:"operation_id"`
	Balance       *string   `json:"balance,omitempty"`
	TotalDeposits string    `json:"total_deposits"`
	AccruedBudget string    `json:"accrued_budget"`
	LastAccrual   time.Time `json:"last_accrual"`
}

// EscrowResponse describes the escrow.
type EscrowResponse struct {
	Id                string    `json:"id"`
	Agent             string    `json:"agent"`
	DrawRatePerSecond string    `json:"draw_rate_per_second"`
	TotalDeposits     string    `json:"total_deposits"`
	Depositors        int       `json:"depositors"`
	AccruedBudget     string    `json:"accrued_budget"`
	LastAccrual       time.Time `json:"last_accrual"`
	ProjectedBudget   string    `json:"projected_budget"`
	PoolBalance       string    `json:"pool_balance"`
	At                time.Time `json:"at"`
}

// DepositorResponse is one depositor's recorded balance.
type DepositorResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// Operation is one journal entry.
type Operation struct {
	Id           string    `json:"id"`
	At           time.Time `json:"at"`
	Kind         string    `json:"kind"`
	Caller       string    `json:"caller"`
	Counterparty *string   `json:"counterparty,omitempty"`
	Amount       string    `json:"amount"`
	Outcome      string    `json:"outcome"`
	TotalAfter   *string   `json:"total_after,omitempty"`
	BudgetAfter  *string   `json:"budget_after,omitempty"`
}

// OperationListResponse is a page of journal entries, newest first.
type OperationListResponse struct {
	Items []Operation `json:"items"`
}

// ListOperationsParams defines parameters for ListOperations.
type ListOperationsParams struct {
	Limit *int `form:"limit" json:"limit,omitempty"`
}

// HealthResponseStatus is the aggregated health.
type HealthResponseStatus string

// HealthResponseChecks is a single component result.
type HealthResponseChecks string

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  HealthResponseStatus            `json:"status"`
	Checks  map[string]HealthResponseChecks `json:"checks"`
	Version string                          `json:"version,omitempty"`
}
