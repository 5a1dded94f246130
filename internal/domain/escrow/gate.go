package escrow

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/domain"
)

// Draw lets the agent move up to its accrued budget out of the pool to recipient.
//
// The accrual is computed on a copy and committed together with the spend only after
// the outbound transfer succeeds; a rejected draw leaves the escrow untouched. An
// unconfirmed transfer still spends the budget so the agent cannot draw it twice.
func (e *Escrow) Draw(ctx context.Context, caller, recipient common.Address, amount *uint256.Int) (Receipt, error) {
	if caller != e.agent {
		return Receipt{}, fmt.Errorf("draw by %s: %w", caller.Hex(), domain.ErrNotAuthorized)
	}
	if recipient == (common.Address{}) {
		return Receipt{}, fmt.Errorf("draw: recipient: %w", domain.ErrInvalidAddress)
	}
	if amount == nil {
		return Receipt{}, fmt.Errorf("draw: %w", domain.ErrInvalidAmount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	accrued, err := e.accrue(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("draw: %w", err)
	}
	next, err := accrued.spend(amount)
	if err != nil {
		return Receipt{}, err
	}
	if !amount.IsZero() {
		if err := e.asset.TransferOut(ctx, recipient, amount); err != nil {
			terr := &domain.TransferError{Direction: domain.TransferOut, Counterparty: recipient, Err: err}
			if !terr.Unconfirmed() {
				return Receipt{}, fmt.Errorf("draw: %w", terr)
			}
			e.acc = next
			return e.receipt(caller), fmt.Errorf("draw: %w", terr)
		}
	}
	e.acc = next
	return e.receipt(caller), nil
}
