package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/trigger-engine/internal/bridge"
	"github.com/ksred/trigger-engine/internal/history"
	"github.com/ksred/trigger-engine/internal/notify"
	"github.com/ksred/trigger-engine/internal/orders"
	"github.com/ksred/trigger-engine/internal/settlement"
	"github.com/ksred/trigger-engine/internal/txlog"
	"github.com/ksred/trigger-engine/internal/types"
	"github.com/ksred/trigger-engine/internal/wallets"
)

// newTestDB opens a per-test in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&types.Order{},
		&orders.IdempotencyRecord{},
		&wallets.Wallet{},
		&txlog.Transaction{},
		&history.TradeAttempt{},
	))
	return db
}

func waitingOrder(network, asset string, action types.Action, kind types.OrderKind, trigger string) *types.Order {
	return &types.Order{
		OrderID:       fmt.Sprintf("ord-%s-%s-%s-%s", network, asset, action, kind),
		Network:       network,
		WalletAddress: "0xwallet",
		AssetAddress:  asset,
		AmountIn:      "100",
		Action:        action,
		OrderKind:     kind,
		TriggerPrice:  decimal.RequireFromString(trigger),
		Status:        types.StatusWaiting,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

// fakeClock is a manually driven clock. After advances the clock by the
// waited duration so poll loops run without real sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubBridge returns a canned result and counts calls.
type stubBridge struct {
	mu     sync.Mutex
	result *bridge.Result
	err    error
	calls  int
}

func (b *stubBridge) Move(_ context.Context, _, _ string, _ *wallets.SigningHandle, _ decimal.Decimal) (*bridge.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return b.result, nil
}

func (b *stubBridge) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// stubVenue is a settlement adapter returning a canned result and
// remembering the last request.
type stubVenue struct {
	mu      sync.Mutex
	network string
	result  *settlement.Result
	err     error
	lastReq settlement.Request
	calls   int
}

func (v *stubVenue) Network() string { return v.network }

func (v *stubVenue) Execute(_ context.Context, req settlement.Request) (*settlement.Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	v.lastReq = req
	if v.err != nil {
		return nil, v.err
	}
	return v.result, nil
}

func (v *stubVenue) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func (v *stubVenue) lastRequest() settlement.Request {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastReq
}

// fakeTxs is an in-memory transaction log.
type fakeTxs struct {
	mu    sync.Mutex
	txs   map[string]*txlog.Transaction
	later map[string]*lateTx
}

// lateTx becomes visible after a fixed number of lookups.
type lateTx struct {
	tx        *txlog.Transaction
	remaining int
}

func newFakeTxs() *fakeTxs {
	return &fakeTxs{
		txs:   make(map[string]*txlog.Transaction),
		later: make(map[string]*lateTx),
	}
}

func (f *fakeTxs) FindByRef(ref string) (*txlog.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.later[ref]; ok {
		l.remaining--
		if l.remaining <= 0 {
			f.txs[ref] = l.tx
			delete(f.later, ref)
		}
	}
	return f.txs[ref], nil
}

func (f *fakeTxs) add(tx *txlog.Transaction) {
	f.mu.Lock()
	f.txs[tx.Ref] = tx
	f.mu.Unlock()
}

// addAfter makes tx visible on the nth FindByRef call, so a poll must
// wait through the earlier misses before it can confirm.
func (f *fakeTxs) addAfter(tx *txlog.Transaction, lookups int) {
	f.mu.Lock()
	f.later[tx.Ref] = &lateTx{tx: tx, remaining: lookups}
	f.mu.Unlock()
}

// capturePublisher records published events.
type capturePublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *capturePublisher) Publish(event notify.Event) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *capturePublisher) all() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notify.Event, len(p.events))
	copy(out, p.events)
	return out
}

// countingSource wraps an OrderSource and counts reads.
type countingSource struct {
	inner       OrderSource
	findWaiting int
	findByKey   int
}

func (s *countingSource) FindWaiting() ([]types.Order, error) {
	s.findWaiting++
	return s.inner.FindWaiting()
}

func (s *countingSource) FindWaitingByKey(network, assetAddress string) ([]types.Order, error) {
	s.findByKey++
	return s.inner.FindWaitingByKey(network, assetAddress)
}
