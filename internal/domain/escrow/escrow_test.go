package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/domain"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no asset", Config{Agent: agentAddr, DrawRate: u(1)}},
		{"zero agent", Config{Asset: newMockAsset(), DrawRate: u(1)}},
		{"no rate", Config{Asset: newMockAsset(), Agent: agentAddr}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_InitialState(t *testing.T) {
	clock := newMockClock(1_700_000_000)
	e := newTestEscrow(newMockAsset(), clock, 10)

	if !e.LastAccrual().Equal(time.Unix(1_700_000_000, 0)) {
		t.Errorf("LastAccrual() = %v", e.LastAccrual())
	}
	if !e.AccruedBudget().IsZero() {
		t.Errorf("AccruedBudget() = %s, want 0", e.AccruedBudget().Dec())
	}
	if e.DrawRate().Uint64() != 10 {
		t.Errorf("DrawRate() = %s, want 10", e.DrawRate().Dec())
	}
	if e.Agent() != agentAddr {
		t.Errorf("Agent() = %s", e.Agent().Hex())
	}
}

func TestNew_DefaultClock(t *testing.T) {
	e, err := New(Config{Asset: newMockAsset(), Agent: agentAddr, DrawRate: u(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(e.LastAccrual()) > time.Minute {
		t.Errorf("LastAccrual() = %v, want about now", e.LastAccrual())
	}
}

// Rate 10/s, agent draws 500 after 100 s.
func TestDraw_AccruesAtRate(t *testing.T) {
	asset := newMockAsset()
	asset.setPool(5000)
	clock := newMockClock(0)
	e := newTestEscrow(asset, clock, 10)

	clock.set(100)
	rc, err := e.Draw(context.Background(), agentAddr, sinkAddr, u(500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.Budget.Uint64() != 500 {
		t.Errorf("budget after draw = %s, want 500", rc.Budget.Dec())
	}
	if e.AccruedBudget().Uint64() != 500 {
		t.Errorf("AccruedBudget() = %s, want 500", e.AccruedBudget().Dec())
	}
	if !e.LastAccrual().Equal(time.Unix(100, 0)) {
		t.Errorf("LastAccrual() = %v, want t=100", e.LastAccrual())
	}
	if asset.wallets[sinkAddr] != 500 {
		t.Errorf("recipient got %d, want 500", asset.wallets[sinkAddr])
	}
}

// Two deposits, one full withdrawal.
func TestDepositWithdraw_Totals(t *testing.T) {
	asset := newMockAsset()
	asset.fund(aliceAddr, 1000)
	asset.fund(bobAddr, 2000)
	e := newTestEscrow(asset, newMockClock(0), 1)
	ctx := context.Background()

	if _, err := e.Deposit(ctx, aliceAddr, u(1000)); err != nil {
		t.Fatalf("alice deposit: %v", err)
	}
	if _, err := e.Deposit(ctx, bobAddr, u(2000)); err != nil {
		t.Fatalf("bob deposit: %v", err)
	}
	if e.TotalDeposits().Uint64() != 3000 {
		t.Fatalf("TotalDeposits() = %s, want 3000", e.TotalDeposits().Dec())
	}

	rc, err := e.Withdraw(ctx, aliceAddr, u(1000))
	if err != nil {
		t.Fatalf("alice withdraw: %v", err)
	}
	if !rc.Balance.IsZero() {
		t.Errorf("alice balance = %s, want 0", rc.Balance.Dec())
	}
	if e.TotalDeposits().Uint64() != 2000 {
		t.Errorf("TotalDeposits() = %s, want 2000", e.TotalDeposits().Dec())
	}
	if e.Depositors() != 1 {
		t.Errorf("Depositors() = %d, want 1", e.Depositors())
	}
	if asset.wallets[aliceAddr] != 1000 {
		t.Errorf("alice wallet = %d, want 1000", asset.wallets[aliceAddr])
	}
}

// Budget clamps to pool balance, second draw is rate limited.
func TestDraw_ClampsToPool(t *testing.T) {
	asset := newMockAsset()
	asset.fund(aliceAddr, 5)
	clock := newMockClock(0)
	e := newTestEscrow(asset, clock, 1)
	ctx := context.Background()

	if _, err := e.Deposit(ctx, aliceAddr, u(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	clock.set(100)
	p, err := e.Projected(ctx)
	if err != nil {
		t.Fatalf("Projected: %v", err)
	}
	if p.Budget.Uint64() != 5 {
		t.Fatalf("projected budget = %s, want 5 (clamped)", p.Budget.Dec())
	}

	if _, err := e.Draw(ctx, agentAddr, sinkAddr, u(5)); err != nil {
		t.Fatalf("draw 5: %v", err)
	}
	_, err = e.Draw(ctx, agentAddr, sinkAddr, u(1))
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

// Only the agent may draw.
func TestDraw_NotAuthorized(t *testing.T) {
	asset := newMockAsset()
	asset.setPool(1000)
	clock := newMockClock(0)
	e := newTestEscrow(asset, clock, 10)
	clock.set(50)

	before := e.Snapshot()
	_, err := e.Draw(context.Background(), aliceAddr, aliceAddr, u(1))
	if !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	assertUnchanged(t, before, e.Snapshot())
	if asset.outCalls != 0 {
		t.Errorf("asset TransferOut called %d times", asset.outCalls)
	}
}

// Withdrawing more than the recorded balance.
func TestWithdraw_InsufficientBalance(t *testing.T) {
	asset := newMockAsset()
	asset.fund(aliceAddr, 100)
	e := newTestEscrow(asset, newMockClock(0), 1)
	ctx := context.Background()

	if _, err := e.Deposit(ctx, aliceAddr, u(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	before := e.Snapshot()

	_, err := e.Withdraw(ctx, aliceAddr, u(101))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	assertUnchanged(t, before, e.Snapshot())

	_, err = e.Withdraw(ctx, bobAddr, u(1))
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("unknown depositor: expected ErrInsufficientBalance, got %v", err)
	}
}

func TestDeposit_ZeroAmount(t *testing.T) {
	e := newTestEscrow(newMockAsset(), newMockClock(0), 1)

	_, err := e.Deposit(context.Background(), aliceAddr, u(0))
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	_, err = e.Deposit(context.Background(), aliceAddr, nil)
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("nil amount: expected ErrInvalidAmount, got %v", err)
	}
}

func TestDeposit_TransferFailedLeavesLedger(t *testing.T) {
	asset := newMockAsset()
	asset.transferIn = errors.New("allowance too low")
	e := newTestEscrow(asset, newMockClock(0), 1)

	_, err := e.Deposit(context.Background(), aliceAddr, u(10))
	if !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	var te *domain.TransferError
	if !errors.As(err, &te) {
		t.Fatalf("expected *domain.TransferError, got %T", err)
	}
	if te.Direction != domain.TransferIn || te.Counterparty != aliceAddr {
		t.Errorf("TransferError = %+v", te)
	}
	if !e.BalanceOf(aliceAddr).IsZero() || !e.TotalDeposits().IsZero() {
		t.Error("ledger mutated after failed transfer")
	}
}

func TestDeposit_Overflow(t *testing.T) {
	asset := newMockAsset()
	ceiling := new(uint256.Int).SetAllOne()
	e := newTestEscrow(asset, newMockClock(0), 1)
	e.ledger.apply(entry{who: aliceAddr, balance: ceiling.Clone(), total: ceiling.Clone()})

	_, err := e.Deposit(context.Background(), bobAddr, u(1))
	if !errors.Is(err, domain.ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
	if !e.TotalDeposits().Eq(ceiling) {
		t.Error("total changed after overflow")
	}
}

func TestWithdraw_TransferFailedLeavesLedger(t *testing.T) {
	asset := newMockAsset()
	asset.fund(aliceAddr, 10)
	e := newTestEscrow(asset, newMockClock(0), 1)
	ctx := context.Background()
	if _, err := e.Deposit(ctx, aliceAddr, u(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	asset.transferOut = errors.New("token paused")
	_, err := e.Withdraw(ctx, aliceAddr, u(10))
	if !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if e.BalanceOf(aliceAddr).Uint64() != 10 || e.TotalDeposits().Uint64() != 10 {
		t.Error("ledger mutated after failed transfer")
	}
}

func TestWithdraw_ZeroIsNoop(t *testing.T) {
	asset := newMockAsset()
	e := newTestEscrow(asset, newMockClock(0), 1)

	if _, err := e.Withdraw(context.Background(), aliceAddr, u(0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.outCalls != 0 {
		t.Errorf("TransferOut called for zero withdrawal")
	}
}

func TestWithdraw_IgnoresAgentActivity(t *testing.T) {
	asset := newMockAsset()
	asset.fund(aliceAddr, 100)
	clock := newMockClock(0)
	e := newTestEscrow(asset, clock, 1)
	ctx := context.Background()

	if _, err := e.Deposit(ctx, aliceAddr, u(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Extra funds sent to the pool outside the ledger let the agent draw without
	// touching alice's share.
	asset.setPool(300)
	clock.set(150)
	if _, err := e.Draw(ctx, agentAddr, sinkAddr, u(150)); err != nil {
		t.Fatalf("draw: %v", err)
	}

	if _, err := e.Withdraw(ctx, aliceAddr, u(100)); err != nil {
		t.Fatalf("withdraw after draws: %v", err)
	}
	if asset.wallets[aliceAddr] != 100 {
		t.Errorf("alice wallet = %d, want 100", asset.wallets[aliceAddr])
	}
}

func TestDraw_TransferFailedKeepsAccrual(t *testing.T) {
	asset := newMockAsset()
	asset.setPool(1000)
	clock := newMockClock(0)
	e := newTestEscrow(asset, clock, 1)
	clock.set(100)

	asset.transferOut = errors.New("reverted")
	before := e.Snapshot()
	_, err := e.Draw(context.Background(), agentAddr, sinkAddr, u(50))
	if !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	assertUnchanged(t, before, e.Snapshot())
}

func TestDraw_RateLimitedLeavesState(t *testing.T) {
	asset := newMockAsset()
	asset.setPool(1000)
	clock := newMockClock(0)
	e := newTestEscrow(asset, clock, 1)
	clock.set(10)

	before := e.Snapshot()
	_, err := e.Draw(context.Background(), agentAddr, sinkAddr, u(11))
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	assertUnchanged(t, before, e.Snapshot())

	// Waiting one more second is enough.
	clock.set(11)
	if _, err := e.Draw(context.Background(), agentAddr, sinkAddr, u(11)); err != nil {
		t.Fatalf("draw after waiting: %v", err)
	}
}

func TestDraw_ZeroRecipient(t *testing.T) {
	e := newTestEscrow(newMockAsset(), newMockClock(0), 1)
	_, err := e.Draw(context.Background(), agentAddr, common.Address{}, u(1))
	if !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestDraw_ZeroAmountCommitsAccrual(t *testing.T) {
	asset := newMockAsset()
	asset.setPool(1000)
	clock := newMockClock(0)
	e := newTestEscrow(asset, clock, 3)
	clock.set(10)

	if _, err := e.Draw(context.Background(), agentAddr, sinkAddr, u(0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.AccruedBudget().Uint64() != 30 {
		t.Errorf("AccruedBudget() = %s, want 30", e.AccruedBudget().Dec())
	}
	if asset.outCalls != 0 {
		t.Error("TransferOut called for zero draw")
	}
}

func TestDraw_BalanceReadError(t *testing.T) {
	asset := newMockAsset()
	asset.balanceErr = errors.New("rpc down")
	e := newTestEscrow(asset, newMockClock(0), 1)

	before := e.Snapshot()
	if _, err := e.Draw(context.Background(), agentAddr, sinkAddr, u(0)); err == nil {
		t.Fatal("expected error")
	}
	assertUnchanged(t, before, e.Snapshot())
}

func TestDraw_OverflowRejected(t *testing.T) {
	asset := newMockAsset()
	asset.setPool(1000)
	clock := newMockClock(0)
	rate := new(uint256.Int).SetAllOne()
	e, err := New(Config{Asset: asset, Agent: agentAddr, DrawRate: rate, Clock: clock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock.set(2)

	before := e.Snapshot()
	_, err = e.Draw(context.Background(), agentAddr, sinkAddr, u(1))
	if !errors.Is(err, domain.ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
	assertUnchanged(t, before, e.Snapshot())
}

func TestDraw_ClockRegression(t *testing.T) {
	asset := newMockAsset()
	asset.setPool(1000)
	clock := newMockClock(100)
	e := newTestEscrow(asset, clock, 1)
	ctx := context.Background()

	clock.set(50)
	if _, err := e.Draw(ctx, agentAddr, sinkAddr, u(0)); err != nil {
		t.Fatalf("draw: %v", err)
	}
	if !e.AccruedBudget().IsZero() {
		t.Errorf("budget = %s after clock regression, want 0", e.AccruedBudget().Dec())
	}
	if !e.LastAccrual().Equal(time.Unix(100, 0)) {
		t.Errorf("LastAccrual() moved backwards to %v", e.LastAccrual())
	}

	clock.set(110)
	if _, err := e.Draw(ctx, agentAddr, sinkAddr, u(10)); err != nil {
		t.Fatalf("draw after recovery: %v", err)
	}
	if _, err := e.Draw(ctx, agentAddr, sinkAddr, u(1)); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestProjected_DoesNotMutate(t *testing.T) {
	asset := newMockAsset()
	asset.setPool(1000)
	clock := newMockClock(0)
	e := newTestEscrow(asset, clock, 2)
	clock.set(25)

	p, err := e.Projected(context.Background())
	if err != nil {
		t.Fatalf("Projected: %v", err)
	}
	if p.Budget.Uint64() != 50 || p.PoolBalance.Uint64() != 1000 {
		t.Errorf("projection = budget %s pool %s", p.Budget.Dec(), p.PoolBalance.Dec())
	}
	if !e.AccruedBudget().IsZero() || !e.LastAccrual().Equal(time.Unix(0, 0)) {
		t.Error("Projected mutated accrual state")
	}
}

// Property: budget never exceeds pool, balances always sum to total.
func TestRandomOperations_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	asset := newMockAsset()
	clock := newMockClock(0)
	e := newTestEscrow(asset, clock, 5)
	ctx := context.Background()
	users := []common.Address{aliceAddr, bobAddr, sinkAddr}
	for _, who := range users {
		asset.fund(who, 1_000_000)
	}

	now := int64(0)
	for i := 0; i < 2000; i++ {
		who := users[rng.Intn(len(users))]
		amt := u(uint64(rng.Intn(500)))
		switch rng.Intn(4) {
		case 0:
			_, _ = e.Deposit(ctx, who, amt)
		case 1:
			_, _ = e.Withdraw(ctx, who, amt)
		case 2:
			_, _ = e.Draw(ctx, agentAddr, who, amt)
			pool, _ := asset.Balance(ctx)
			if e.AccruedBudget().Gt(pool) {
				t.Fatalf("step %d: budget %s > pool %s", i, e.AccruedBudget().Dec(), pool.Dec())
			}
		case 3:
			now += int64(rng.Intn(20))
			clock.set(now)
		}

		snap := e.Snapshot()
		sum := new(uint256.Int)
		for _, b := range snap.Balances {
			sum.Add(sum, b)
		}
		if !sum.Eq(snap.TotalDeposits) {
			t.Fatalf("step %d: sum %s != total %s", i, sum.Dec(), snap.TotalDeposits.Dec())
		}
	}
}

func TestWithdraw_UnconfirmedPayoutIsDebited(t *testing.T) {
	asset := newMockAsset()
	asset.fund(aliceAddr, 100)
	e := newTestEscrow(asset, newMockClock(0), 1)
	ctx := context.Background()
	if _, err := e.Deposit(ctx, aliceAddr, u(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	asset.transferOut = fmt.Errorf("wait transfer: %w", domain.ErrTransferUnconfirmed)
	rec, err := e.Withdraw(ctx, aliceAddr, u(100))
	if !errors.Is(err, domain.ErrTransferUnconfirmed) || errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferUnconfirmed only, got %v", err)
	}
	if rec.TotalDeposits == nil || !rec.TotalDeposits.IsZero() {
		t.Errorf("receipt = %+v, want applied debit", rec)
	}
	if !e.BalanceOf(aliceAddr).IsZero() || !e.TotalDeposits().IsZero() {
		t.Error("unconfirmed payout must be debited")
	}

	asset.transferOut = nil
	if _, err := e.Withdraw(ctx, aliceAddr, u(100)); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("second withdrawal: expected ErrInsufficientBalance, got %v", err)
	}
	if asset.outCalls != 1 {
		t.Errorf("TransferOut called %d times, want 1", asset.outCalls)
	}
}

func TestDraw_UnconfirmedTransferSpendsBudget(t *testing.T) {
	asset := newMockAsset()
	asset.setPool(1000)
	clock := newMockClock(0)
	e := newTestEscrow(asset, clock, 1)
	clock.set(100)
	ctx := context.Background()

	asset.transferOut = fmt.Errorf("wait transfer: %w", domain.ErrTransferUnconfirmed)
	rec, err := e.Draw(ctx, agentAddr, sinkAddr, u(100))
	if !errors.Is(err, domain.ErrTransferUnconfirmed) {
		t.Fatalf("expected ErrTransferUnconfirmed, got %v", err)
	}
	if rec.Budget == nil || !rec.Budget.IsZero() {
		t.Errorf("receipt = %+v, want spent budget", rec)
	}
	if !e.AccruedBudget().IsZero() || !e.LastAccrual().Equal(time.Unix(100, 0)) {
		t.Errorf("budget %s at %v, want 0 at 100", e.AccruedBudget().Dec(), e.LastAccrual())
	}

	asset.transferOut = nil
	if _, err := e.Draw(ctx, agentAddr, sinkAddr, u(1)); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("repeat draw: expected ErrRateLimited, got %v", err)
	}
}

func TestDeposit_UnconfirmedIsNotCredited(t *testing.T) {
	asset := newMockAsset()
	e := newTestEscrow(asset, newMockClock(0), 1)

	asset.transferIn = fmt.Errorf("wait transferFrom: %w", domain.ErrTransferUnconfirmed)
	before := e.Snapshot()
	rec, err := e.Deposit(context.Background(), aliceAddr, u(50))
	if !errors.Is(err, domain.ErrTransferUnconfirmed) {
		t.Fatalf("expected ErrTransferUnconfirmed, got %v", err)
	}
	if rec.TotalDeposits != nil {
		t.Errorf("receipt = %+v, want empty", rec)
	}
	assertUnchanged(t, before, e.Snapshot())
}

func TestSnapshotWith_CapturesUnderLock(t *testing.T) {
	asset := newMockAsset()
	asset.fund(aliceAddr, 40)
	e := newTestEscrow(asset, newMockClock(0), 1)
	ctx := context.Background()
	if _, err := e.Deposit(ctx, aliceAddr, u(40)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	var pool *uint256.Int
	snap := e.SnapshotWith(func() { pool, _ = asset.Balance(ctx) })
	if pool == nil || !pool.Eq(snap.TotalDeposits) {
		t.Errorf("captured pool %v, snapshot total %s", pool, snap.TotalDeposits.Dec())
	}
}

func TestConcurrentOperations_KeepInvariants(t *testing.T) {
	asset := newMockAsset()
	clock := newMockClock(0)
	e := newTestEscrow(asset, clock, 3)
	ctx := context.Background()

	const (
		workers = 8
		rounds  = 200
	)
	users := make([]common.Address, workers)
	for i := range users {
		users[i] = common.BytesToAddress([]byte{0x0d, byte(i + 1)})
		asset.fund(users[i], 1_000_000)
	}

	var wg sync.WaitGroup
	for _, who := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < rounds; n++ {
				switch n % 4 {
				case 0:
					if _, err := e.Deposit(ctx, who, u(10)); err != nil {
						t.Errorf("deposit: %v", err)
					}
				case 1:
					if _, err := e.Withdraw(ctx, who, u(3)); err != nil {
						t.Errorf("withdraw: %v", err)
					}
				case 2:
					_, _ = e.Draw(ctx, agentAddr, sinkAddr, u(2))
				default:
					snap := e.Snapshot()
					sum := new(uint256.Int)
					for _, b := range snap.Balances {
						sum.Add(sum, b)
					}
					if !sum.Eq(snap.TotalDeposits) {
						t.Errorf("sum %s != total %s", sum.Dec(), snap.TotalDeposits.Dec())
					}
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for sec := int64(1); sec <= 500; sec++ {
			clock.set(sec)
		}
	}()
	wg.Wait()

	// Each worker deposited 50*10 and withdrew 50*3.
	want := uint64(workers * (rounds / 4) * 7)
	if e.TotalDeposits().Uint64() != want {
		t.Errorf("total = %s, want %d", e.TotalDeposits().Dec(), want)
	}
	for _, who := range users {
		if e.BalanceOf(who).Uint64() != want/workers {
			t.Errorf("balance of %s = %s", who.Hex(), e.BalanceOf(who).Dec())
		}
	}

	pool, _ := asset.Balance(ctx)
	if drawn := asset.wallets[sinkAddr]; pool.Uint64()+drawn != want {
		t.Errorf("pool %s + drawn %d != deposited %d", pool.Dec(), drawn, want)
	}
	p, err := e.Projected(ctx)
	if err != nil {
		t.Fatalf("Projected: %v", err)
	}
	if p.Budget.Gt(p.PoolBalance) {
		t.Errorf("budget %s > pool %s", p.Budget.Dec(), p.PoolBalance.Dec())
	}
}

func assertUnchanged(t *testing.T, before, after Snapshot) {
	t.Helper()
	if !before.TotalDeposits.Eq(after.TotalDeposits) {
		t.Errorf("total changed: %s -> %s", before.TotalDeposits.Dec(), after.TotalDeposits.Dec())
	}
	if !before.AccruedBudget.Eq(after.AccruedBudget) {
		t.Errorf("budget changed: %s -> %s", before.AccruedBudget.Dec(), after.AccruedBudget.Dec())
	}
	if !before.LastAccrual.Equal(after.LastAccrual) {
		t.Errorf("last accrual changed: %v -> %v", before.LastAccrual, after.LastAccrual)
	}
	if len(before.Balances) != len(after.Balances) {
		t.Errorf("depositor count changed: %d -> %d", len(before.Balances), len(after.Balances))
	}
	for who, b := range before.Balances {
		if a, ok := after.Balances[who]; !ok || !a.Eq(b) {
			t.Errorf("balance of %s changed", who.Hex())
		}
	}
}
