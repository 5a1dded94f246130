// Package escrow persists escrow snapshots as a single JSON value per escrow id.
package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/ratevault/internal/db"
	domescrow "github.com/kailas-cloud/ratevault/internal/domain/escrow"
)

// store is the consumer interface for escrow state (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
}

// Repo stores and loads escrow snapshots.
type Repo struct {
	store  store
	prefix string
	now    func() time.Time
}

// New creates an escrow state repository. Keys are namespaced by prefix.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix, now: time.Now}
}

// Save writes the snapshot, replacing any previous one for id.
func (r *Repo) Save(ctx context.Context, id string, s domescrow.Snapshot) error {
	data, err := json.Marshal(snapshotToDoc(s, r.now()))
	if err != nil {
		return fmt.Errorf("marshal escrow %s: %w", id, err)
	}
	if err := r.store.Set(ctx, r.stateKey(id), data); err != nil {
		return fmt.Errorf("save escrow %s: %w", id, err)
	}
	return nil
}

// Load returns the stored snapshot. found is false when nothing was saved for id yet.
func (r *Repo) Load(ctx context.Context, id string) (snap domescrow.Snapshot, found bool, err error) {
	data, err := r.store.Get(ctx, r.stateKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domescrow.Snapshot{}, false, nil
		}
		return domescrow.Snapshot{}, false, fmt.Errorf("load escrow %s: %w", id, err)
	}

	var doc stateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return domescrow.Snapshot{}, false, fmt.Errorf("decode escrow %s: %w", id, err)
	}
	snap, err = snapshotFromDoc(doc)
	if err != nil {
		return domescrow.Snapshot{}, false, fmt.Errorf("decode escrow %s: %w", id, err)
	}
	return snap, true, nil
}

// Delete removes the stored snapshot.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, r.stateKey(id)); err != nil {
		return fmt.Errorf("delete escrow %s: %w", id, err)
	}
	return nil
}

func (r *Repo) stateKey(id string) string {
	return fmt.Sprintf("%sescrow:%s:state", r.prefix, id)
}
