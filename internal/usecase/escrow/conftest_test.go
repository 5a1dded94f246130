package escrow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/kailas-cloud/ratevault/internal/asset/memory"
	"github.com/kailas-cloud/ratevault/internal/domain"
	domescrow "github.com/kailas-cloud/ratevault/internal/domain/escrow"
	"github.com/kailas-cloud/ratevault/internal/recorder"
)

var (
	poolAddr  = common.HexToAddress("0x0000000000000000000000000000000000000f00")
	agentAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	aliceAddr = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	sinkAddr  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// --- Mocks ---

type mockRepo struct {
	mu    sync.Mutex
	saved []domescrow.Snapshot
	err   error
}

func (m *mockRepo) Save(_ context.Context, _ string, s domescrow.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, s)
	return nil
}

func (m *mockRepo) last() domescrow.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[len(m.saved)-1]
}

type mockJournal struct {
	mu     sync.Mutex
	events []recorder.OperationEvent
	err    error
}

func (m *mockJournal) RecordOperation(evt *recorder.OperationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, *evt)
	return nil
}

func (m *mockJournal) Recent(_ context.Context, limit int) ([]recorder.OperationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recorder.OperationEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

// --- Fixture ---

type fixture struct {
	svc     *Service
	token   *memory.Token
	repo    *mockRepo
	journal *mockJournal
	now     *int64
}

// unconfirmedPayouts moves funds out but reports the outcome as unknown.
type unconfirmedPayouts struct {
	*memory.Pool
}

func (p unconfirmedPayouts) TransferOut(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if err := p.Pool.TransferOut(ctx, to, amount); err != nil {
		return err
	}
	return fmt.Errorf("wait transfer: %w", domain.ErrTransferUnconfirmed)
}

func newFixture(t *testing.T, rate uint64) *fixture {
	t.Helper()
	return newFixtureWith(t, rate, func(p *memory.Pool) domescrow.Asset { return p })
}

func newFixtureWith(t *testing.T, rate uint64, asset func(*memory.Pool) domescrow.Asset) *fixture {
	t.Helper()
	tok := memory.NewToken("USDX")
	if err := tok.Mint(aliceAddr, u(1_000)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	tok.Approve(aliceAddr, poolAddr, u(1_000))

	now := int64(1_000)
	e, err := domescrow.New(domescrow.Config{
		Asset:    asset(tok.Pool(poolAddr)),
		Agent:    agentAddr,
		DrawRate: u(rate),
		Clock:    domescrow.ClockFunc(func() time.Time { return time.Unix(now, 0) }),
	})
	if err != nil {
		t.Fatalf("escrow.New: %v", err)
	}

	repo := &mockRepo{}
	journal := &mockJournal{}
	return &fixture{
		svc:     New("main", e, repo, journal, nil),
		token:   tok,
		repo:    repo,
		journal: journal,
		now:     &now,
	}
}
