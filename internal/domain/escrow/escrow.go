// Package escrow implements a pooled custody account with a rate-limited agent.
//
// Depositors may always withdraw their own unspent balance. The agent may only draw
// what has accrued at the configured rate since its last draw, and never more than the
// pool actually holds.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/domain"
)

// Config holds construction parameters. None of them can change afterwards.
type Config struct {
	Asset    Asset
	Agent    common.Address
	DrawRate *uint256.Int // asset units per second
	Clock    Clock        // defaults to SystemClock
}

func (c *Config) validate() error {
	if c.Asset == nil {
		return errors.New("escrow: asset is required")
	}
	if c.Agent == (common.Address{}) {
		return fmt.Errorf("escrow: agent: %w", domain.ErrInvalidAddress)
	}
	if c.DrawRate == nil {
		return errors.New("escrow: draw rate is required")
	}
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	return nil
}

// Escrow is the custody account. All operations are serialized by one mutex held
// across the asset transfer, so no caller ever observes a half-applied change.
type Escrow struct {
	mu     sync.Mutex
	asset  Asset
	agent  common.Address
	clock  Clock
	ledger ledger
	acc    accrual
}

// New creates an escrow whose accrual starts at the clock's current time.
func New(cfg Config) (*Escrow, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Escrow{
		asset:  cfg.Asset,
		agent:  cfg.Agent,
		clock:  cfg.Clock,
		ledger: newLedger(),
	}
	e.acc.rate.Set(cfg.DrawRate)
	e.acc.last = unixSeconds(cfg.Clock.Now())
	return e, nil
}

// Receipt reports the state right after a successful operation. Withdraw and Draw also
// return it alongside domain.ErrTransferUnconfirmed, since the change was applied.
type Receipt struct {
	Balance       *uint256.Int // caller's balance (deposit, withdraw)
	TotalDeposits *uint256.Int
	Budget        *uint256.Int
	LastAccrual   time.Time
}

func (e *Escrow) receipt(who common.Address) Receipt {
	return Receipt{
		Balance:       e.ledger.balanceOf(who),
		TotalDeposits: e.ledger.total.Clone(),
		Budget:        e.acc.budget.Clone(),
		LastAccrual:   time.Unix(int64(e.acc.last), 0).UTC(),
	}
}

// Deposit pulls amount from depositor into the pool and credits their balance.
func (e *Escrow) Deposit(ctx context.Context, depositor common.Address, amount *uint256.Int) (Receipt, error) {
	if amount == nil || amount.IsZero() {
		return Receipt{}, fmt.Errorf("deposit: %w: must be positive", domain.ErrInvalidAmount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	planned, err := e.ledger.planCredit(depositor, amount)
	if err != nil {
		return Receipt{}, fmt.Errorf("deposit: %w", err)
	}
	// An unconfirmed deposit is not credited: the funds may never arrive.
	if err := e.asset.TransferIn(ctx, depositor, amount); err != nil {
		return Receipt{}, fmt.Errorf("deposit: %w", domain.NewTransferError(domain.TransferIn, depositor, err))
	}
	e.ledger.apply(planned)
	return e.receipt(depositor), nil
}

// Withdraw returns amount of the depositor's own balance to them.
// It never looks at the agent's accrual: depositor funds cannot be trapped.
// An unconfirmed payout is debited anyway so the same funds cannot be paid out twice.
func (e *Escrow) Withdraw(ctx context.Context, depositor common.Address, amount *uint256.Int) (Receipt, error) {
	if amount == nil {
		return Receipt{}, fmt.Errorf("withdraw: %w", domain.ErrInvalidAmount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	planned, err := e.ledger.planDebit(depositor, amount)
	if err != nil {
		return Receipt{}, fmt.Errorf("withdraw: %w", err)
	}
	if amount.IsZero() {
		return e.receipt(depositor), nil
	}
	if err := e.asset.TransferOut(ctx, depositor, amount); err != nil {
		terr := &domain.TransferError{Direction: domain.TransferOut, Counterparty: depositor, Err: err}
		if !terr.Unconfirmed() {
			return Receipt{}, fmt.Errorf("withdraw: %w", terr)
		}
		e.ledger.apply(planned)
		return e.receipt(depositor), fmt.Errorf("withdraw: %w", terr)
	}
	e.ledger.apply(planned)
	return e.receipt(depositor), nil
}

// accrue computes the accrual as of now without committing it.
func (e *Escrow) accrue(ctx context.Context) (accrual, error) {
	now := unixSeconds(e.clock.Now())
	pool, err := e.asset.Balance(ctx)
	if err != nil {
		return accrual{}, fmt.Errorf("read pool balance: %w", err)
	}
	return e.acc.advance(now, pool)
}

// BalanceOf returns the depositor's unspent balance.
func (e *Escrow) BalanceOf(depositor common.Address) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.balanceOf(depositor)
}

// TotalDeposits returns the sum of all depositor balances.
func (e *Escrow) TotalDeposits() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.total.Clone()
}

// Depositors returns the number of depositors with a non-zero balance.
func (e *Escrow) Depositors() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ledger.balances)
}

// DrawRate returns the accrual rate in asset units per second.
func (e *Escrow) DrawRate() *uint256.Int {
	return e.acc.rate.Clone() // immutable after New
}

// Agent returns the only identity allowed to draw.
func (e *Escrow) Agent() common.Address { return e.agent }

// LastAccrual returns when the budget was last brought up to date.
func (e *Escrow) LastAccrual() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Unix(int64(e.acc.last), 0).UTC()
}

// AccruedBudget returns the budget as of LastAccrual. It does not extrapolate.
func (e *Escrow) AccruedBudget() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acc.budget.Clone()
}

// Projection is what a draw issued right now would see.
type Projection struct {
	Budget      *uint256.Int
	PoolBalance *uint256.Int
	At          time.Time
}

// Projected extrapolates the budget to the current time without changing any state.
func (e *Escrow) Projected(ctx context.Context) (Projection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := unixSeconds(e.clock.Now())
	pool, err := e.asset.Balance(ctx)
	if err != nil {
		return Projection{}, fmt.Errorf("project budget: read pool balance: %w", err)
	}
	next, err := e.acc.advance(now, pool)
	if err != nil {
		return Projection{}, fmt.Errorf("project budget: %w", err)
	}
	return Projection{
		Budget:      next.budget.Clone(),
		PoolBalance: pool.Clone(),
		At:          time.Unix(int64(now), 0).UTC(),
	}, nil
}
