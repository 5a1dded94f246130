package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ratevault/internal/domain"
	"github.com/kailas-cloud/ratevault/internal/logger"
	"github.com/kailas-cloud/ratevault/internal/recorder"
	"github.com/kailas-cloud/ratevault/internal/transport/api"
	escrowuc "github.com/kailas-cloud/ratevault/internal/usecase/escrow"
	healthuc "github.com/kailas-cloud/ratevault/internal/usecase/health"
	"github.com/kailas-cloud/ratevault/internal/version"
)

const (
	maxBodyBytes      = 1 << 16
	defaultOperations = 50
	maxOperations     = 500
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server implements api.ServerInterface.
type Server struct {
	escrow        *escrowuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

var _ api.ServerInterface = (*Server)(nil)

// NewServer creates an HTTP API server.
func NewServer(escrow *escrowuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		escrow: escrow,
		health: health,
		logger: logger,
	}
	// Transfer outcomes go first: the asset's own reason may wrap another sentinel.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrTransferUnconfirmed,
			http.StatusGatewayTimeout, api.ErrorResponseCodeTransferUnconfirmed),
		sentinelHandler(domain.ErrTransferFailed, http.StatusBadGateway, api.ErrorResponseCodeTransferFailed),
		sentinelHandler(domain.ErrNotAuthorized, http.StatusForbidden, api.ErrorResponseCodeNotAuthorized),
		sentinelHandler(domain.ErrInsufficientBalance, http.StatusConflict, api.ErrorResponseCodeInsufficientBalance),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, api.ErrorResponseCodeRateLimited),
		sentinelHandler(domain.ErrArithmeticOverflow,
			http.StatusUnprocessableEntity, api.ErrorResponseCodeArithmeticOverflow),
		sentinelHandler(domain.ErrInvalidAmount, http.StatusBadRequest, api.ErrorResponseCodeValidationFailed),
		sentinelHandler(domain.ErrInvalidAddress, http.StatusBadRequest, api.ErrorResponseCodeValidationFailed),
	}
	return s
}

// Deposit handles POST /api/v1/deposits.
func (s *Server) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req api.AmountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorResponseCodeValidationFailed, err.Error())
		return
	}

	res, err := s.escrow.Deposit(r.Context(), caller, amount)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, operationToAPI(res, true))
}

// Withdraw handles POST /api/v1/withdrawals.
func (s *Server) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req api.AmountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorResponseCodeValidationFailed, err.Error())
		return
	}

	res, err := s.escrow.Withdraw(r.Context(), caller, amount)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, operationToAPI(res, true))
}

// Draw handles POST /api/v1/draws.
func (s *Server) Draw(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req api.DrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	to, err := domain.ParseAddress(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorResponseCodeValidationFailed, "to: "+err.Error())
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorResponseCodeValidationFailed, err.Error())
		return
	}

	res, err := s.escrow.Draw(r.Context(), caller, to, amount)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, operationToAPI(res, false))
}

// GetEscrow handles GET /api/v1/escrow.
func (s *Server) GetEscrow(w http.ResponseWriter, r *http.Request) {
	v, err := s.escrow.State(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.EscrowResponse{
		Id:                v.ID,
		Agent:             v.Agent.Hex(),
		DrawRatePerSecond: v.DrawRate.Dec(),
		TotalDeposits:     v.TotalDeposits.Dec(),
		Depositors:        v.Depositors,
		AccruedBudget:     v.AccruedBudget.Dec(),
		LastAccrual:       v.LastAccrual,
		ProjectedBudget:   v.ProjectedBudget.Dec(),
		PoolBalance:       v.PoolBalance.Dec(),
		At:                v.At,
	})
}

// GetDepositor handles GET /api/v1/depositors/{address}.
func (s *Server) GetDepositor(w http.ResponseWriter, r *http.Request, address string) {
	who, err := domain.ParseAddress(address)
	if err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorResponseCodeValidationFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.DepositorResponse{
		Address: who.Hex(),
		Balance: s.escrow.Depositor(r.Context(), who).Dec(),
	})
}

// ListOperations handles GET /api/v1/operations.
func (s *Server) ListOperations(w http.ResponseWriter, r *http.Request, params api.ListOperationsParams) {
	limit := defaultOperations
	if params.Limit != nil {
		limit = *params.Limit
	}
	if limit < 1 || limit > maxOperations {
		writeError(w, http.StatusBadRequest, api.ErrorResponseCodeValidationFailed, "limit must be between 1 and 500")
		return
	}

	evts, err := s.escrow.Operations(r.Context(), limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	items := make([]api.Operation, len(evts))
	for i, e := range evts {
		items[i] = operationEventToAPI(e)
	}
	writeJSON(w, http.StatusOK, api.OperationListResponse{Items: items})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]api.HealthResponseChecks)
	for k, v := range report.Checks {
		checks[k] = api.HealthResponseChecks(v)
	}

	// Degraded still serves operations: only checkpoints are affected.
	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, api.HealthResponse{
		Status:  api.HealthResponseStatus(report.Status),
		Checks:  checks,
		Version: version.Version,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, api.ErrorResponseCodeUnauthenticated, "authentication required")
	}
	return caller, ok
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code api.ErrorResponseCode, message string) {
	writeJSON(w, status, api.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrTransferUnconfirmed,
		domain.ErrTransferFailed,
		domain.ErrNotAuthorized,
		domain.ErrInsufficientBalance,
		domain.ErrRateLimited,
		domain.ErrArithmeticOverflow,
		domain.ErrInvalidAmount,
		domain.ErrInvalidAddress,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code api.ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Debug("domain error", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, api.ErrorResponseCodeInternalError, "internal error")
}

func operationToAPI(res escrowuc.Result, withBalance bool) api.OperationResponse {
	out := api.OperationResponse{
		OperationId:   res.OperationID,
		TotalDeposits: res.TotalDeposits.Dec(),
		AccruedBudget: res.Budget.Dec(),
		LastAccrual:   res.LastAccrual,
	}
	if withBalance && res.Balance != nil {
		b := res.Balance.Dec()
		out.Balance = &b
	}
	return out
}

func operationEventToAPI(e recorder.OperationEvent) api.Operation {
	return api.Operation{
		Id:           e.ID,
		At:           e.At,
		Kind:         string(e.Kind),
		Caller:       e.Caller,
		Counterparty: optional(e.Counterparty),
		Amount:       e.Amount,
		Outcome:      e.Outcome,
		TotalAfter:   optional(e.TotalAfter),
		BudgetAfter:  optional(e.BudgetAfter),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
