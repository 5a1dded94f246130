package memory

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/domain"
)

// Allowance is one (owner, spender) approval.
type Allowance struct {
	Owner   common.Address
	Spender common.Address
	Amount  *uint256.Int
}

// State is a copy of all balances and allowances.
type State struct {
	Balances   map[common.Address]*uint256.Int
	Allowances []Allowance
}

// State copies the token's balances and allowances.
func (t *Token) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := State{
		Balances:   make(map[common.Address]*uint256.Int, len(t.balances)),
		Allowances: make([]Allowance, 0, len(t.allowances)),
	}
	for who, b := range t.balances {
		s.Balances[who] = b.Clone()
	}
	for k, a := range t.allowances {
		s.Allowances = append(s.Allowances, Allowance{Owner: k.owner, Spender: k.spender, Amount: a.Clone()})
	}
	return s
}

// Load replaces the token's contents with s. Supply is recomputed from balances.
func (t *Token) Load(s State) error {
	balances := make(map[common.Address]*uint256.Int, len(s.Balances))
	supply := new(uint256.Int)
	for who, b := range s.Balances {
		if b == nil || b.IsZero() {
			continue
		}
		if _, overflow := supply.AddOverflow(supply, b); overflow {
			return fmt.Errorf("load %s: supply: %w", t.symbol, domain.ErrArithmeticOverflow)
		}
		balances[who] = b.Clone()
	}
	allowances := make(map[allowanceKey]*uint256.Int, len(s.Allowances))
	for _, a := range s.Allowances {
		if a.Amount == nil || a.Amount.IsZero() {
			continue
		}
		allowances[allowanceKey{owner: a.Owner, spender: a.Spender}] = a.Amount.Clone()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances = balances
	t.allowances = allowances
	t.supply.Set(supply)
	return nil
}
