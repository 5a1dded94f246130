package escrow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	agentAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	aliceAddr = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bobAddr   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	sinkAddr  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// --- Mock Asset ---

type mockAsset struct {
	mu          sync.Mutex
	pool        uint256.Int
	wallets     map[common.Address]uint64
	transferIn  error
	transferOut error
	balanceErr  error
	outCalls    int
}

func newMockAsset() *mockAsset {
	return &mockAsset{wallets: make(map[common.Address]uint64)}
}

func (m *mockAsset) fund(who common.Address, v uint64) { m.wallets[who] += v }

func (m *mockAsset) TransferIn(_ context.Context, from common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transferIn != nil {
		return m.transferIn
	}
	if m.wallets[from] < amount.Uint64() {
		return errors.New("insufficient allowance")
	}
	m.wallets[from] -= amount.Uint64()
	m.pool.Add(&m.pool, amount)
	return nil
}

func (m *mockAsset) TransferOut(_ context.Context, to common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outCalls++
	if m.transferOut != nil {
		return m.transferOut
	}
	if m.pool.Lt(amount) {
		return errors.New("pool balance too low")
	}
	m.pool.Sub(&m.pool, amount)
	m.wallets[to] += amount.Uint64()
	return nil
}

func (m *mockAsset) Balance(_ context.Context) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	return m.pool.Clone(), nil
}

// setPool forces the pool balance, e.g. to simulate a direct token transfer to the pool.
func (m *mockAsset) setPool(v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool.SetUint64(v)
}

// --- Mock Clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(sec int64) *mockClock { return &mockClock{now: time.Unix(sec, 0)} }

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) set(sec int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(sec, 0)
}

func newTestEscrow(asset Asset, clock Clock, rate uint64) *Escrow {
	e, err := New(Config{Asset: asset, Agent: agentAddr, DrawRate: u(rate), Clock: clock})
	if err != nil {
		panic(err)
	}
	return e
}
