package escrow

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/domain"
	domescrow "github.com/kailas-cloud/ratevault/internal/domain/escrow"
)

const stateVersion = 1

// stateDoc is the JSON form of an escrow snapshot. Amounts are base-10 strings.
type stateDoc struct {
	Version       int               `json:"version"`
	Agent         string            `json:"agent"`
	DrawRate      string            `json:"draw_rate"`
	LastAccrual   int64             `json:"last_accrual"`
	AccruedBudget string            `json:"accrued_budget"`
	TotalDeposits string            `json:"total_deposits"`
	Balances      map[string]string `json:"balances"`
	SavedAt       int64             `json:"saved_at"`
}

func snapshotToDoc(s domescrow.Snapshot, savedAt time.Time) stateDoc {
	balances := make(map[string]string, len(s.Balances))
	for who, b := range s.Balances {
		balances[who.Hex()] = b.Dec()
	}
	return stateDoc{
		Version:       stateVersion,
		Agent:         s.Agent.Hex(),
		DrawRate:      decOrZero(s.DrawRate),
		LastAccrual:   s.LastAccrual.Unix(),
		AccruedBudget: decOrZero(s.AccruedBudget),
		TotalDeposits: decOrZero(s.TotalDeposits),
		Balances:      balances,
		SavedAt:       savedAt.Unix(),
	}
}

func snapshotFromDoc(d stateDoc) (domescrow.Snapshot, error) {
	if d.Version != stateVersion {
		return domescrow.Snapshot{}, fmt.Errorf("unsupported state version %d", d.Version)
	}
	agent, err := domain.ParseAddress(d.Agent)
	if err != nil {
		return domescrow.Snapshot{}, fmt.Errorf("agent: %w", err)
	}
	rate, err := domain.ParseAmount(d.DrawRate)
	if err != nil {
		return domescrow.Snapshot{}, fmt.Errorf("draw_rate: %w", err)
	}
	budget, err := domain.ParseAmount(d.AccruedBudget)
	if err != nil {
		return domescrow.Snapshot{}, fmt.Errorf("accrued_budget: %w", err)
	}
	total, err := domain.ParseAmount(d.TotalDeposits)
	if err != nil {
		return domescrow.Snapshot{}, fmt.Errorf("total_deposits: %w", err)
	}

	balances := make(map[common.Address]*uint256.Int, len(d.Balances))
	for who, v := range d.Balances {
		addr, err := domain.ParseAddress(who)
		if err != nil {
			return domescrow.Snapshot{}, fmt.Errorf("balance holder: %w", err)
		}
		amount, err := domain.ParseAmount(v)
		if err != nil {
			return domescrow.Snapshot{}, fmt.Errorf("balance of %s: %w", who, err)
		}
		balances[addr] = amount
	}

	return domescrow.Snapshot{
		Agent:         agent,
		DrawRate:      rate,
		LastAccrual:   time.Unix(d.LastAccrual, 0).UTC(),
		AccruedBudget: budget,
		TotalDeposits: total,
		Balances:      balances,
	}, nil
}

func decOrZero(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
