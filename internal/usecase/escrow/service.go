// Package escrow drives the domain escrow: it journals, measures and checkpoints every
// operation around the ledger call.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ratevault/internal/domain"
	domescrow "github.com/kailas-cloud/ratevault/internal/domain/escrow"
	"github.com/kailas-cloud/ratevault/internal/logger"
	"github.com/kailas-cloud/ratevault/internal/metrics"
	"github.com/kailas-cloud/ratevault/internal/recorder"
)

const checkpointTimeout = 5 * time.Second

// Result is the outcome of an accepted operation.
type Result struct {
	OperationID string
	domescrow.Receipt
}

// View is the externally visible escrow state.
type View struct {
	ID              string
	Agent           common.Address
	DrawRate        *uint256.Int
	TotalDeposits   *uint256.Int
	Depositors      int
	AccruedBudget   *uint256.Int
	LastAccrual     time.Time
	ProjectedBudget *uint256.Int
	PoolBalance     *uint256.Int
	At              time.Time
}

// Service wraps one escrow instance.
type Service struct {
	id          string
	escrow      *domescrow.Escrow
	repo        StateRepository
	journal     Journal
	checkpoints []CheckpointFunc
	baseLogger  *zap.Logger

	// cpMu orders snapshot+save pairs so an older snapshot never overwrites a newer one.
	cpMu sync.Mutex
}

// New creates a Service. repo may be nil to disable checkpoints; journal defaults to a no-op.
func New(id string, e *domescrow.Escrow, repo StateRepository, journal Journal, log *zap.Logger) *Service {
	if journal == nil {
		journal = recorder.NoopRecorder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{id: id, escrow: e, repo: repo, journal: journal, baseLogger: log}
}

// WithCheckpoint adds a function run after every escrow checkpoint.
func (s *Service) WithCheckpoint(fn CheckpointFunc) *Service {
	s.checkpoints = append(s.checkpoints, fn)
	return s
}

// ID returns the escrow id.
func (s *Service) ID() string { return s.id }

// Deposit credits depositor after pulling amount from them.
func (s *Service) Deposit(ctx context.Context, depositor common.Address, amount *uint256.Int) (Result, error) {
	return s.run(ctx, recorder.KindDeposit, depositor, common.Address{}, amount,
		func() (domescrow.Receipt, error) { return s.escrow.Deposit(ctx, depositor, amount) })
}

// Withdraw returns amount of depositor's own funds to them.
func (s *Service) Withdraw(ctx context.Context, depositor common.Address, amount *uint256.Int) (Result, error) {
	return s.run(ctx, recorder.KindWithdraw, depositor, depositor, amount,
		func() (domescrow.Receipt, error) { return s.escrow.Withdraw(ctx, depositor, amount) })
}

// Draw sends amount from the pool to recipient on the agent's behalf.
func (s *Service) Draw(ctx context.Context, caller, recipient common.Address, amount *uint256.Int) (Result, error) {
	return s.run(ctx, recorder.KindDraw, caller, recipient, amount,
		func() (domescrow.Receipt, error) { return s.escrow.Draw(ctx, caller, recipient, amount) })
}

func (s *Service) run(
	ctx context.Context, kind recorder.Kind, caller, counterparty common.Address, amount *uint256.Int,
	op func() (domescrow.Receipt, error),
) (Result, error) {
	start := time.Now()
	id := uuid.NewString()
	log := logger.FromContext(ctx).With(
		zap.String("escrow", s.id),
		zap.String("operation_id", id),
		zap.String("operation", string(kind)),
		zap.String("caller", caller.Hex()),
		zap.String("amount", amountString(amount)),
	)
	if counterparty != (common.Address{}) {
		log = log.With(zap.String("counterparty", counterparty.Hex()))
	}

	rec, err := op()
	code := domain.Code(err)
	metrics.ObserveOperation(string(kind), code, time.Since(start))

	// An unconfirmed payout is applied to the ledger, so its state is journaled and saved.
	applied := err == nil || (errors.Is(err, domain.ErrTransferUnconfirmed) && rec.TotalDeposits != nil)

	evt := &recorder.OperationEvent{
		ID:      id,
		At:      start,
		Kind:    kind,
		Caller:  caller.Hex(),
		Amount:  amountString(amount),
		Outcome: code,
	}
	if counterparty != (common.Address{}) {
		evt.Counterparty = counterparty.Hex()
	}
	if err != nil {
		evt.Detail = err.Error()
	}
	if applied {
		if kind != recorder.KindDraw {
			evt.BalanceAfter = amountString(rec.Balance)
		}
		evt.BudgetAfter = amountString(rec.Budget)
		evt.TotalAfter = amountString(rec.TotalDeposits)
	}
	s.journalEvent(log, evt)

	switch code {
	case "ok":
		log.Info("Escrow operation applied",
			zap.String("total_deposits", amountString(rec.TotalDeposits)),
			zap.String("budget", amountString(rec.Budget)),
		)
	case "transfer_failed", "transfer_unconfirmed", "arithmetic_overflow", "internal":
		log.Error("Escrow operation failed",
			zap.String("code", code),
			zap.Bool("ledger_applied", applied),
			zap.Error(err),
		)
	default:
		log.Warn("Escrow operation rejected", zap.String("code", code), zap.Error(err))
	}

	if applied {
		metrics.SetAmount(metrics.TotalDeposits, rec.TotalDeposits)
		metrics.SetAmount(metrics.AccruedBudget, rec.Budget)
		metrics.Depositors.Set(float64(s.escrow.Depositors()))

		// Write-behind: the transfer already happened, a failed checkpoint must not fail the call.
		cpCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkpointTimeout)
		defer cancel()
		if cpErr := s.Checkpoint(cpCtx); cpErr != nil {
			log.Warn("Failed to checkpoint escrow state", zap.Error(cpErr))
		}
	}

	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", kind, err)
	}
	return Result{OperationID: id, Receipt: rec}, nil
}

func (s *Service) journalEvent(log *zap.Logger, evt *recorder.OperationEvent) {
	if err := s.journal.RecordOperation(evt); err != nil {
		log.Warn("Failed to journal operation", zap.Error(err))
	}
}

// Checkpoint saves the current snapshot and runs the extra checkpoint functions.
// The extra functions capture their state under the escrow lock together with the snapshot.
func (s *Service) Checkpoint(ctx context.Context) error {
	if s.repo == nil && len(s.checkpoints) == 0 {
		return nil
	}

	s.cpMu.Lock()
	defer s.cpMu.Unlock()

	persist := make([]func(context.Context) error, 0, len(s.checkpoints))
	snap := s.escrow.SnapshotWith(func() {
		for _, capture := range s.checkpoints {
			persist = append(persist, capture())
		}
	})

	var errs []error
	if s.repo != nil {
		if err := s.repo.Save(ctx, s.id, snap); err != nil {
			errs = append(errs, err)
		}
	}
	for _, save := range persist {
		if err := save(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		metrics.CheckpointsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("checkpoint %s: %w", s.id, err)
	}
	metrics.CheckpointsTotal.WithLabelValues("ok").Inc()
	return nil
}

// State returns the escrow state plus the budget the agent could draw right now.
func (s *Service) State(ctx context.Context) (View, error) {
	proj, err := s.escrow.Projected(ctx)
	if err != nil {
		return View{}, fmt.Errorf("escrow state: %w", err)
	}
	return View{
		ID:              s.id,
		Agent:           s.escrow.Agent(),
		DrawRate:        s.escrow.DrawRate(),
		TotalDeposits:   s.escrow.TotalDeposits(),
		Depositors:      s.escrow.Depositors(),
		AccruedBudget:   s.escrow.AccruedBudget(),
		LastAccrual:     s.escrow.LastAccrual(),
		ProjectedBudget: proj.Budget,
		PoolBalance:     proj.PoolBalance,
		At:              proj.At,
	}, nil
}

// Depositor returns the recorded balance of depositor.
func (s *Service) Depositor(_ context.Context, depositor common.Address) *uint256.Int {
	return s.escrow.BalanceOf(depositor)
}

// Operations returns the most recent journal entries, newest first.
func (s *Service) Operations(ctx context.Context, limit int) ([]recorder.OperationEvent, error) {
	evts, err := s.journal.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	return evts, nil
}

// RefreshGauges publishes the current state without accruing.
func (s *Service) RefreshGauges(ctx context.Context) error {
	proj, err := s.escrow.Projected(ctx)
	if err != nil {
		return fmt.Errorf("refresh gauges: %w", err)
	}
	metrics.SetAmount(metrics.ProjectedBudget, proj.Budget)
	metrics.SetAmount(metrics.PoolBalance, proj.PoolBalance)
	metrics.SetAmount(metrics.TotalDeposits, s.escrow.TotalDeposits())
	metrics.SetAmount(metrics.AccruedBudget, s.escrow.AccruedBudget())
	metrics.Depositors.Set(float64(s.escrow.Depositors()))
	return nil
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}
