// Package memory is an in-process ERC-20 style token used as the escrow's asset in
// local environments and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/domain"
	"github.com/kailas-cloud/ratevault/internal/domain/escrow"
)

var (
	// ErrInsufficientFunds signals a transfer above the holder's balance.
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	// ErrInsufficientAllowance signals a transferFrom above the approved amount.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Token keeps balances and allowances. Invariant: sum(balances) == supply.
type Token struct {
	mu         sync.Mutex
	symbol     string
	supply     uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
}

// NewToken creates an empty token.
func NewToken(symbol string) *Token {
	return &Token{
		symbol:     symbol,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
	}
}

// Symbol returns the token symbol.
func (t *Token) Symbol() string { return t.symbol }

// Mint creates amount new units owned by to.
func (t *Token) Mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("mint: %w", domain.ErrInvalidAddress)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(&t.supply, amount)
	if overflow {
		return fmt.Errorf("mint: supply: %w", domain.ErrArithmeticOverflow)
	}
	bal, overflow := new(uint256.Int).AddOverflow(t.balanceOf(to), amount)
	if overflow {
		return fmt.Errorf("mint: balance: %w", domain.ErrArithmeticOverflow)
	}
	t.supply.Set(supply)
	t.setBalance(to, bal)
	return nil
}

// Approve sets how much spender may move out of owner's balance.
func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := allowanceKey{owner: owner, spender: spender}
	if amount.IsZero() {
		delete(t.allowances, k)
		return
	}
	t.allowances[k] = amount.Clone()
}

// Allowance returns the remaining amount spender may move for owner.
func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.allowances[allowanceKey{owner: owner, spender: spender}]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}

// BalanceOf returns holder's balance.
func (t *Token) BalanceOf(holder common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceOf(holder)
}

// Supply returns the total minted amount.
func (t *Token) Supply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supply.Clone()
}

// Transfer moves amount from one holder to another.
func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

// TransferFrom moves amount out of owner's balance on spender's behalf, consuming allowance.
func (t *Token) TransferFrom(spender, owner, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := allowanceKey{owner: owner, spender: spender}
	allowed, ok := t.allowances[k]
	if !ok || allowed.Lt(amount) {
		return fmt.Errorf("transferFrom %s: %w", owner.Hex(), ErrInsufficientAllowance)
	}
	if err := t.move(owner, to, amount); err != nil {
		return err
	}
	left := new(uint256.Int).Sub(allowed, amount)
	if left.IsZero() {
		delete(t.allowances, k)
	} else {
		t.allowances[k] = left
	}
	return nil
}

func (t *Token) move(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("transfer: recipient: %w", domain.ErrInvalidAddress)
	}
	src := t.balanceOf(from)
	if src.Lt(amount) {
		return fmt.Errorf("transfer %s from %s holding %s: %w", amount.Dec(), from.Hex(), src.Dec(), ErrInsufficientFunds)
	}
	if from == to {
		return nil
	}
	// Cannot overflow: amount is already part of supply.
	dst := new(uint256.Int).Add(t.balanceOf(to), amount)
	t.setBalance(from, src.Sub(src, amount))
	t.setBalance(to, dst)
	return nil
}

func (t *Token) balanceOf(holder common.Address) *uint256.Int {
	if b, ok := t.balances[holder]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

func (t *Token) setBalance(holder common.Address, v *uint256.Int) {
	if v.IsZero() {
		delete(t.balances, holder)
		return
	}
	t.balances[holder] = v
}

// Pool binds the token to a custody account and returns it as an escrow asset.
// Deposits pull from the depositor with transferFrom, so a depositor must first
// approve the pool address.
func (t *Token) Pool(account common.Address) *Pool {
	return &Pool{token: t, account: account}
}

// Pool is the escrow.Asset view of a single custody account.
type Pool struct {
	token   *Token
	account common.Address
}

var _ escrow.Asset = (*Pool)(nil)

// Account returns the custody address.
func (p *Pool) Account() common.Address { return p.account }

// TransferIn pulls amount from the depositor using the allowance granted to the pool.
func (p *Pool) TransferIn(_ context.Context, from common.Address, amount *uint256.Int) error {
	return p.token.TransferFrom(p.account, from, p.account, amount)
}

// TransferOut sends amount from the pool to the recipient.
func (p *Pool) TransferOut(_ context.Context, to common.Address, amount *uint256.Int) error {
	return p.token.Transfer(p.account, to, amount)
}

// Balance returns the pool's token balance.
func (p *Pool) Balance(_ context.Context) (*uint256.Int, error) {
	return p.token.BalanceOf(p.account), nil
}
