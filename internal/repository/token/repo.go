// Package token persists the in-memory token's balances and allowances in Redis hashes.
package token

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/asset/memory"
	"github.com/kailas-cloud/ratevault/internal/domain"
)

// store is the consumer interface for token state (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
}

// Repo stores token state under two hashes per symbol.
type Repo struct {
	store  store
	prefix string
}

// New creates a token repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Save writes balances and allowances and removes fields that are no longer present.
func (r *Repo) Save(ctx context.Context, symbol string, s memory.State) error {
	balances := make(map[string]string, len(s.Balances))
	for who, b := range s.Balances {
		balances[who.Hex()] = b.Dec()
	}
	if err := r.replace(ctx, r.balancesKey(symbol), balances); err != nil {
		return fmt.Errorf("save token %s balances: %w", symbol, err)
	}

	allowances := make(map[string]string, len(s.Allowances))
	for _, a := range s.Allowances {
		allowances[allowanceField(a.Owner, a.Spender)] = a.Amount.Dec()
	}
	if err := r.replace(ctx, r.allowancesKey(symbol), allowances); err != nil {
		return fmt.Errorf("save token %s allowances: %w", symbol, err)
	}
	return nil
}

// Load reads the stored state. found is false when neither hash has any field.
func (r *Repo) Load(ctx context.Context, symbol string) (state memory.State, found bool, err error) {
	rawBalances, err := r.store.HGetAll(ctx, r.balancesKey(symbol))
	if err != nil {
		return memory.State{}, false, fmt.Errorf("load token %s balances: %w", symbol, err)
	}
	rawAllowances, err := r.store.HGetAll(ctx, r.allowancesKey(symbol))
	if err != nil {
		return memory.State{}, false, fmt.Errorf("load token %s allowances: %w", symbol, err)
	}
	if len(rawBalances) == 0 && len(rawAllowances) == 0 {
		return memory.State{}, false, nil
	}

	state.Balances = make(map[common.Address]*uint256.Int, len(rawBalances))
	for field, v := range rawBalances {
		who, err := domain.ParseAddress(field)
		if err != nil {
			return memory.State{}, false, fmt.Errorf("load token %s: holder: %w", symbol, err)
		}
		amount, err := domain.ParseAmount(v)
		if err != nil {
			return memory.State{}, false, fmt.Errorf("load token %s: balance of %s: %w", symbol, field, err)
		}
		state.Balances[who] = amount
	}

	state.Allowances = make([]memory.Allowance, 0, len(rawAllowances))
	for field, v := range rawAllowances {
		owner, spender, err := parseAllowanceField(field)
		if err != nil {
			return memory.State{}, false, fmt.Errorf("load token %s: %w", symbol, err)
		}
		amount, err := domain.ParseAmount(v)
		if err != nil {
			return memory.State{}, false, fmt.Errorf("load token %s: allowance %s: %w", symbol, field, err)
		}
		state.Allowances = append(state.Allowances, memory.Allowance{Owner: owner, Spender: spender, Amount: amount})
	}
	return state, true, nil
}

// replace makes the hash at key hold exactly fields.
func (r *Repo) replace(ctx context.Context, key string, fields map[string]string) error {
	current, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return err
	}
	var stale []string
	for f := range current {
		if _, ok := fields[f]; !ok {
			stale = append(stale, f)
		}
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return err
	}
	return r.store.HDel(ctx, key, stale...)
}

func (r *Repo) balancesKey(symbol string) string {
	return fmt.Sprintf("%stoken:%s:balances", r.prefix, symbol)
}

func (r *Repo) allowancesKey(symbol string) string {
	return fmt.Sprintf("%stoken:%s:allowances", r.prefix, symbol)
}

func allowanceField(owner, spender common.Address) string {
	return owner.Hex() + ":" + spender.Hex()
}

func parseAllowanceField(f string) (owner, spender common.Address, err error) {
	o, s, ok := strings.Cut(f, ":")
	if !ok {
		return common.Address{}, common.Address{}, fmt.Errorf("allowance field %q: %w", f, domain.ErrInvalidAddress)
	}
	if owner, err = domain.ParseAddress(o); err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("allowance owner: %w", err)
	}
	if spender, err = domain.ParseAddress(s); err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("allowance spender: %w", err)
	}
	return owner, spender, nil
}
