package escrow

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Asset is the fungible asset the escrow holds in custody.
// Each call must either fully succeed or leave balances untouched. A transfer that was
// submitted but could not be confirmed returns an error wrapping domain.ErrTransferUnconfirmed.
type Asset interface {
	// TransferIn moves amount from the depositor into the pool account.
	TransferIn(ctx context.Context, from common.Address, amount *uint256.Int) error
	// TransferOut moves amount from the pool account to the recipient.
	TransferOut(ctx context.Context, to common.Address, amount *uint256.Int) error
	// Balance returns the pool account's current holdings.
	Balance(ctx context.Context) (*uint256.Int, error)
}

// Clock supplies the current time for accrual.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// unixSeconds converts t to whole seconds, flooring pre-epoch times to zero.
func unixSeconds(t time.Time) uint64 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}
