package escrow

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/domain"
)

// accrual is the agent's draw allowance: rate per second, the second it was last
// brought up to date, and the unclaimed budget as of that second.
type accrual struct {
	rate   uint256.Int
	last   uint64
	budget uint256.Int
}

// advance returns the accrual as of now, clamped to pool. The receiver is not modified.
//
// A clock reading earlier than last adds nothing and keeps last where it is, so an
// interval can never be counted twice.
func (a accrual) advance(now uint64, pool *uint256.Int) (accrual, error) {
	next := a
	if now > a.last {
		dt := uint256.NewInt(now - a.last)
		grown, overflow := new(uint256.Int).MulOverflow(dt, &a.rate)
		if overflow {
			return a, fmt.Errorf("accrue %d s at rate %s: %w", now-a.last, a.rate.Dec(), domain.ErrArithmeticOverflow)
		}
		if _, overflow := next.budget.AddOverflow(&next.budget, grown); overflow {
			return a, fmt.Errorf("accrue onto budget %s: %w", a.budget.Dec(), domain.ErrArithmeticOverflow)
		}
		next.last = now
	}
	if next.budget.Gt(pool) {
		next.budget.Set(pool)
	}
	return next, nil
}

// spend returns the accrual after drawing amount, or ErrRateLimited.
func (a accrual) spend(amount *uint256.Int) (accrual, error) {
	if a.budget.Lt(amount) {
		return a, fmt.Errorf("draw %s with budget %s: %w", amount.Dec(), a.budget.Dec(), domain.ErrRateLimited)
	}
	next := a
	next.budget.Sub(&a.budget, amount)
	return next, nil
}
