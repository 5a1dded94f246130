package ratevault

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ratevault/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotAuthorized       = domain.ErrNotAuthorized
	ErrInsufficientBalance = domain.ErrInsufficientBalance
	ErrRateLimited         = domain.ErrRateLimited
	ErrTransferFailed      = domain.ErrTransferFailed
	ErrTransferUnconfirmed = domain.ErrTransferUnconfirmed
	ErrArithmeticOverflow  = domain.ErrArithmeticOverflow
	ErrInvalidAmount       = domain.ErrInvalidAmount
	ErrInvalidAddress      = domain.ErrInvalidAddress

	// ErrUnauthenticated is returned when the server does not accept the bearer token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrBadRequest is returned for malformed requests the server could not decode.
	ErrBadRequest = errors.New("bad request")
)

var codeSentinels = map[string]error{
	"not_authorized":       ErrNotAuthorized,
	"insufficient_balance": ErrInsufficientBalance,
	"rate_limited":         ErrRateLimited,
	"transfer_failed":      ErrTransferFailed,
	"transfer_unconfirmed": ErrTransferUnconfirmed,
	"arithmetic_overflow":  ErrArithmeticOverflow,
	"validation_failed":    ErrInvalidAmount,
	"unauthenticated":      ErrUnauthenticated,
	"bad_request":          ErrBadRequest,
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ratevault: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the error code to the matching sentinel.
func (e *APIError) Unwrap() error {
	if e.Code == "validation_failed" && strings.Contains(e.Message, ErrInvalidAddress.Error()) {
		return ErrInvalidAddress
	}
	return codeSentinels[e.Code]
}
