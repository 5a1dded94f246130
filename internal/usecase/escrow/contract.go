package escrow

import (
	"context"

	domescrow "github.com/kailas-cloud/ratevault/internal/domain/escrow"
	"github.com/kailas-cloud/ratevault/internal/recorder"
)

// StateRepository persists escrow snapshots.
type StateRepository interface {
	Save(ctx context.Context, id string, s domescrow.Snapshot) error
}

// Journal records every operation attempt.
type Journal interface {
	RecordOperation(evt *recorder.OperationEvent) error
	Recent(ctx context.Context, limit int) ([]recorder.OperationEvent, error)
}

// CheckpointFunc copies state that lives next to the escrow, such as the in-memory token,
// and returns the function that persists that copy. The copy is taken under the escrow lock.
type CheckpointFunc func() func(ctx context.Context) error
