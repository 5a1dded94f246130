package escrow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/domain"
)

// ledger holds depositor balances and their running sum.
// Changes are planned first and applied only after the matching transfer succeeds.
type ledger struct {
	balances map[common.Address]*uint256.Int
	total    uint256.Int
}

func newLedger() ledger {
	return ledger{balances: make(map[common.Address]*uint256.Int)}
}

// balanceOf returns a copy of the depositor's balance (zero if absent).
func (l *ledger) balanceOf(who common.Address) *uint256.Int {
	if b, ok := l.balances[who]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// entry is a planned (balance, total) pair for one depositor.
type entry struct {
	who     common.Address
	balance *uint256.Int
	total   *uint256.Int
}

func (l *ledger) planCredit(who common.Address, amount *uint256.Int) (entry, error) {
	bal, overflow := new(uint256.Int).AddOverflow(l.balanceOf(who), amount)
	if overflow {
		return entry{}, fmt.Errorf("credit %s: balance: %w", who.Hex(), domain.ErrArithmeticOverflow)
	}
	total, overflow := new(uint256.Int).AddOverflow(&l.total, amount)
	if overflow {
		return entry{}, fmt.Errorf("credit %s: total deposits: %w", who.Hex(), domain.ErrArithmeticOverflow)
	}
	return entry{who: who, balance: bal, total: total}, nil
}

func (l *ledger) planDebit(who common.Address, amount *uint256.Int) (entry, error) {
	cur := l.balanceOf(who)
	if cur.Lt(amount) {
		return entry{}, fmt.Errorf("withdraw %s from balance %s: %w",
			amount.Dec(), cur.Dec(), domain.ErrInsufficientBalance)
	}
	// Unreachable while sum(balances) == total holds.
	if l.total.Lt(amount) {
		return entry{}, fmt.Errorf("debit %s: total deposits underflow: %w", who.Hex(), domain.ErrArithmeticOverflow)
	}
	return entry{
		who:     who,
		balance: new(uint256.Int).Sub(cur, amount),
		total:   new(uint256.Int).Sub(&l.total, amount),
	}, nil
}

func (l *ledger) apply(e entry) {
	if e.balance.IsZero() {
		delete(l.balances, e.who)
	} else {
		l.balances[e.who] = e.balance
	}
	l.total.Set(e.total)
}

// sum recomputes the total from individual balances.
func (l *ledger) sum() (*uint256.Int, error) {
	s := new(uint256.Int)
	for who, b := range l.balances {
		if _, overflow := s.AddOverflow(s, b); overflow {
			return nil, fmt.Errorf("sum balances at %s: %w", who.Hex(), domain.ErrArithmeticOverflow)
		}
	}
	return s, nil
}
