package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/db"
	domescrow "github.com/kailas-cloud/ratevault/internal/domain/escrow"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	data  map[string][]byte
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte) error
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	m.data[key] = value
	return nil
}

func (m *mockStore) Del(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

var (
	agentAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	aliceAddr = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bobAddr   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{data: map[string][]byte{}}
	repo := New(ms, "ratevault:")
	repo.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return repo, ms
}

func testSnapshot(t *testing.T) domescrow.Snapshot {
	t.Helper()
	huge, err := uint256.FromDecimal("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	if err != nil {
		t.Fatalf("FromDecimal: %v", err)
	}
	return domescrow.Snapshot{
		Agent:         agentAddr,
		DrawRate:      uint256.NewInt(5),
		LastAccrual:   time.Unix(1_000, 0).UTC(),
		AccruedBudget: uint256.NewInt(40),
		TotalDeposits: huge,
		Balances: map[common.Address]*uint256.Int{
			aliceAddr: new(uint256.Int).Sub(huge, uint256.NewInt(7)),
			bobAddr:   uint256.NewInt(7),
		},
	}
}
