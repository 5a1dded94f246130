package health

import (
	"context"

	"github.com/holiman/uint256"
)

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// AssetProber reads the pool balance to prove the asset backend answers.
type AssetProber interface {
	Balance(ctx context.Context) (*uint256.Int, error)
}
