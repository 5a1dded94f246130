package escrow

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/domain"
)

// Snapshot is a point-in-time copy of the whole escrow state.
type Snapshot struct {
	Agent         common.Address
	DrawRate      *uint256.Int
	LastAccrual   time.Time
	AccruedBudget *uint256.Int
	TotalDeposits *uint256.Int
	Balances      map[common.Address]*uint256.Int
}

// Snapshot copies the current state under the lock.
func (e *Escrow) Snapshot() Snapshot {
	return e.SnapshotWith(nil)
}

// SnapshotWith copies the current state and runs capture under the same lock, so whatever
// capture copies from the asset matches the snapshot. capture must not call back into e.
func (e *Escrow) SnapshotWith(capture func()) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if capture != nil {
		capture()
	}

	balances := make(map[common.Address]*uint256.Int, len(e.ledger.balances))
	for who, b := range e.ledger.balances {
		balances[who] = b.Clone()
	}
	return Snapshot{
		Agent:         e.agent,
		DrawRate:      e.acc.rate.Clone(),
		LastAccrual:   time.Unix(int64(e.acc.last), 0).UTC(),
		AccruedBudget: e.acc.budget.Clone(),
		TotalDeposits: e.ledger.total.Clone(),
		Balances:      balances,
	}
}

// Restore rebuilds an escrow from a snapshot taken by the same configuration.
// The agent and draw rate must match cfg, and balances must sum to the total.
func Restore(cfg Config, s Snapshot) (*Escrow, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if s.Agent != cfg.Agent {
		return nil, fmt.Errorf("restore: agent %s, configured %s: %w",
			s.Agent.Hex(), cfg.Agent.Hex(), domain.ErrStateMismatch)
	}
	if s.DrawRate == nil || !s.DrawRate.Eq(cfg.DrawRate) {
		return nil, fmt.Errorf("restore: draw rate differs from configuration: %w", domain.ErrStateMismatch)
	}
	if s.TotalDeposits == nil || s.AccruedBudget == nil {
		return nil, fmt.Errorf("restore: incomplete snapshot: %w", domain.ErrStateMismatch)
	}

	for who, b := range s.Balances {
		if b == nil || b.IsZero() {
			continue
		}
		e.ledger.balances[who] = b.Clone()
	}
	sum, err := e.ledger.sum()
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if !sum.Eq(s.TotalDeposits) {
		return nil, fmt.Errorf("restore: balances sum to %s, total is %s: %w",
			sum.Dec(), s.TotalDeposits.Dec(), domain.ErrStateMismatch)
	}
	e.ledger.total.Set(sum)
	e.acc.last = unixSeconds(s.LastAccrual)
	e.acc.budget.Set(s.AccruedBudget)
	return e, nil
}
