package ratevault

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/domain"
	"github.com/kailas-cloud/ratevault/internal/transport/api"
)

// Receipt is the escrow state right after an accepted operation.
type Receipt struct {
	OperationID   string
	Balance       *uint256.Int // caller's balance; nil for draws
	TotalDeposits *uint256.Int
	AccruedBudget *uint256.Int
	LastAccrual   time.Time
}

// Escrow is the escrow state as reported by the server.
type Escrow struct {
	ID            string
	Agent         common.Address
	DrawRate      *uint256.Int // units per second
	TotalDeposits *uint256.Int
	Depositors    int
	AccruedBudget *uint256.Int
	LastAccrual   time.Time
	// ProjectedBudget is what the agent could draw at At.
	ProjectedBudget *uint256.Int
	PoolBalance     *uint256.Int
	At              time.Time
}

// Operation is one journal entry.
type Operation struct {
	ID           string
	At           time.Time
	Kind         string // deposit, withdraw, draw
	Caller       string
	Counterparty string
	Amount       string
	Outcome      string // "ok" or an error code
	TotalAfter   string
	BudgetAfter  string
}

// HealthStatus represents the aggregated server health.
type HealthStatus struct {
	Status  string            // "ok", "degraded", "error"
	Checks  map[string]string // component → "ok"/"error"
	Version string
}

func receiptFromAPI(r api.OperationResponse) (Receipt, error) {
	out := Receipt{OperationID: r.OperationId, LastAccrual: r.LastAccrual}
	var err error
	if r.Balance != nil {
		if out.Balance, err = parseAmount("balance", *r.Balance); err != nil {
			return Receipt{}, err
		}
	}
	if out.TotalDeposits, err = parseAmount("total_deposits", r.TotalDeposits); err != nil {
		return Receipt{}, err
	}
	if out.AccruedBudget, err = parseAmount("accrued_budget", r.AccruedBudget); err != nil {
		return Receipt{}, err
	}
	return out, nil
}

func escrowFromAPI(r api.EscrowResponse) (Escrow, error) {
	agent, err := domain.ParseAddress(r.Agent)
	if err != nil {
		return Escrow{}, fmt.Errorf("ratevault: agent: %w", err)
	}
	out := Escrow{
		ID:          r.Id,
		Agent:       agent,
		Depositors:  r.Depositors,
		LastAccrual: r.LastAccrual,
		At:          r.At,
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  **uint256.Int
	}{
		{"draw_rate_per_second", r.DrawRatePerSecond, &out.DrawRate},
		{"total_deposits", r.TotalDeposits, &out.TotalDeposits},
		{"accrued_budget", r.AccruedBudget, &out.AccruedBudget},
		{"projected_budget", r.ProjectedBudget, &out.ProjectedBudget},
		{"pool_balance", r.PoolBalance, &out.PoolBalance},
	} {
		if *f.dst, err = parseAmount(f.name, f.raw); err != nil {
			return Escrow{}, err
		}
	}
	return out, nil
}

func operationFromAPI(o api.Operation) Operation {
	return Operation{
		ID:           o.Id,
		At:           o.At,
		Kind:         o.Kind,
		Caller:       o.Caller,
		Counterparty: deref(o.Counterparty),
		Amount:       o.Amount,
		Outcome:      o.Outcome,
		TotalAfter:   deref(o.TotalAfter),
		BudgetAfter:  deref(o.BudgetAfter),
	}
}

func parseAmount(field, s string) (*uint256.Int, error) {
	v, err := domain.ParseAmount(s)
	if err != nil {
		return nil, fmt.Errorf("ratevault: %s: %w", field, err)
	}
	return v, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
