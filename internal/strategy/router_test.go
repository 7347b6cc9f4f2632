package strategy

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalp-core/internal/events"
	"scalp-core/internal/signal"
	"scalp-core/internal/state"
	"scalp-core/pkg/bybit"
)

type fakeEngine struct {
	mu         sync.Mutex
	globallyOK bool
	allowed    bool
	reason     string
	notional   float64
}

func (f *fakeEngine) IsGloballyOkToTrade() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.globallyOK
}

func (f *fakeEngine) IsTradeAllowed(symbol, side string) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowed, f.reason
}

func (f *fakeEngine) CalculateNotionalSize(symbol string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notional
}

func (f *fakeEngine) setGloballyOK(ok bool) {
	f.mu.Lock()
	f.globallyOK = ok
	f.mu.Unlock()
}

type placedOrder struct {
	Symbol string
	Side   string
	Qty    float64
}

type fakeClient struct {
	mu     sync.Mutex
	orders []placedOrder
	fail   bool
}

func (f *fakeClient) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64, orderLinkID string) (*bybit.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("order rejected")
	}
	f.orders = append(f.orders, placedOrder{Symbol: symbol, Side: side, Qty: qty})
	return &bybit.OrderResult{OrderID: fmt.Sprintf("ord-%d", len(f.orders)), OrderLinkID: orderLinkID}, nil
}

func (f *fakeClient) GetOrderHistory(ctx context.Context, symbol, orderID string, limit int) ([]bybit.OrderRecord, error) {
	return []bybit.OrderRecord{{
		OrderID:     orderID,
		Symbol:      symbol,
		AvgPrice:    100.5,
		CumExecQty:  0.5,
		OrderStatus: "Filled",
	}}, nil
}

func (f *fakeClient) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type routerFixture struct {
	router *Router
	store  *state.Store
	queue  *signal.Queue
	engine *fakeEngine
	client *fakeClient
}

func newFixture(opts Options) *routerFixture {
	if opts.LockGrace == 0 {
		opts.LockGrace = 30 * time.Millisecond
	}
	if opts.FillWait == 0 {
		opts.FillWait = time.Millisecond
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = time.Minute
	}
	if opts.TopUpDustUSD == 0 {
		opts.TopUpDustUSD = 10
	}
	if opts.SellDustUSD == 0 {
		opts.SellDustUSD = 1
	}

	store := state.NewStore(opts.SellDustUSD)
	queue := signal.NewQueue()
	engine := &fakeEngine{globallyOK: true, allowed: true, notional: 50}
	client := &fakeClient{}
	router := NewRouter(queue, store, engine, client, events.NewBus(), opts)

	return &routerFixture{router: router, store: store, queue: queue, engine: engine, client: client}
}

func (f *routerFixture) withBook(symbol string, bid float64) *routerFixture {
	f.store.UpdateOrderbook(bybit.Orderbook{
		Symbol: symbol,
		Bids:   []bybit.OrderbookLevel{{Price: bid, Size: 1}},
	})
	return f
}

func (f *routerFixture) withHolding(coin string, qty, usdValue float64) *routerFixture {
	f.store.UpdateWalletBalance(&bybit.WalletBalance{
		TotalEquity:      1000,
		AvailableBalance: 500,
		Coins:            []bybit.CoinBalance{{Coin: coin, WalletBalance: qty, UsdValue: usdValue}},
	})
	return f
}

func buySignal(symbol string) signal.Signal {
	return signal.Signal{Symbol: symbol, Side: signal.SideBuy, Price: 100, Source: signal.SourceScalping, CreatedAt: time.Now()}
}

func exitSignal(symbol string) signal.Signal {
	return signal.Signal{Symbol: symbol, Side: signal.SideSell, Price: 100, Source: signal.SourceExitMonitor, CreatedAt: time.Now()}
}

func waitDrained(t *testing.T, f *routerFixture) {
	t.Helper()
	require.Eventually(t, func() bool { return f.queue.Len() == 0 }, time.Second, time.Millisecond)
	// Give the consumer a moment to finish the signal it already popped.
	time.Sleep(20 * time.Millisecond)
}

func TestTradeLockAllowsOneInFlightOrder(t *testing.T) {
	f := newFixture(Options{LockGrace: 200 * time.Millisecond})
	f.withBook("BTCUSDT", 100).withBook("ETHUSDT", 2000)

	f.router.Start()
	defer f.router.Stop()

	// Second signal arrives while the first trade's lock is still held.
	f.queue.Push(buySignal("BTCUSDT"))
	f.queue.Push(buySignal("ETHUSDT"))

	waitDrained(t, f)
	assert.Equal(t, 1, f.client.orderCount(), "only one order may be in flight")

	// The dropped signal is not replayed after the lock releases.
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, f.client.orderCount())
}

func TestLockReleasedImmediatelyOnFailure(t *testing.T) {
	f := newFixture(Options{})
	f.withBook("BTCUSDT", 100).withBook("ETHUSDT", 2000)
	f.client.fail = true

	f.router.Start()
	defer f.router.Stop()

	f.queue.Push(buySignal("BTCUSDT"))
	waitDrained(t, f)

	// A failed submission must not leave the lock held.
	f.client.mu.Lock()
	f.client.fail = false
	f.client.mu.Unlock()

	f.queue.Push(buySignal("ETHUSDT"))
	require.Eventually(t, func() bool { return f.client.orderCount() == 1 }, time.Second, time.Millisecond)
}

func TestCooldownBlocksRepeatBuyButNotExit(t *testing.T) {
	f := newFixture(Options{LockGrace: 10 * time.Millisecond})
	f.withBook("BTCUSDT", 100)

	f.router.Start()
	defer f.router.Stop()

	f.queue.Push(buySignal("BTCUSDT"))
	require.Eventually(t, func() bool { return f.client.orderCount() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond) // let the lock grace expire

	// Same-symbol BUY inside the cooldown window is dropped.
	f.queue.Push(buySignal("BTCUSDT"))
	waitDrained(t, f)
	assert.Equal(t, 1, f.client.orderCount())

	// An exit-monitor SELL bypasses the cooldown.
	f.withHolding("BTC", 0.001, 100)
	f.queue.Push(exitSignal("BTCUSDT"))
	require.Eventually(t, func() bool { return f.client.orderCount() == 2 }, time.Second, time.Millisecond)

	last := f.client.orders[len(f.client.orders)-1]
	assert.Equal(t, "Sell", last.Side)
	assert.Equal(t, 0.001, last.Qty, "sell must use the full held quantity")
}

func TestSellOfDustNeverSubmits(t *testing.T) {
	f := newFixture(Options{})
	f.withBook("BTCUSDT", 100).withHolding("BTC", 0.000001, 0.5)

	f.router.Start()
	defer f.router.Stop()

	f.queue.Push(exitSignal("BTCUSDT"))
	waitDrained(t, f)
	assert.Zero(t, f.client.orderCount(), "dust holding must not be sold")
}

func TestSellWithoutHoldingNeverSubmits(t *testing.T) {
	f := newFixture(Options{})
	f.withBook("BTCUSDT", 100)

	f.router.Start()
	defer f.router.Stop()

	f.queue.Push(exitSignal("BTCUSDT"))
	waitDrained(t, f)
	assert.Zero(t, f.client.orderCount())
}

func TestBuyOfHeldSymbolIsIgnored(t *testing.T) {
	f := newFixture(Options{})
	f.withBook("BTCUSDT", 100).withHolding("BTC", 0.01, 400)

	f.router.Start()
	defer f.router.Stop()

	f.queue.Push(buySignal("BTCUSDT"))
	waitDrained(t, f)
	assert.Zero(t, f.client.orderCount(), "no pyramiding above the top-up threshold")
}

func TestBuyTopUpOfDustHoldingIsAllowed(t *testing.T) {
	f := newFixture(Options{})
	f.withBook("BTCUSDT", 100).withHolding("BTC", 0.0001, 4)

	f.router.Start()
	defer f.router.Stop()

	f.queue.Push(buySignal("BTCUSDT"))
	require.Eventually(t, func() bool { return f.client.orderCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "Buy", f.client.orders[0].Side)
	assert.Equal(t, 50.0, f.client.orders[0].Qty, "buy qty is the engine's notional size")
}

func TestRiskRejectionDropsSignal(t *testing.T) {
	f := newFixture(Options{})
	f.withBook("BTCUSDT", 100)
	f.engine.mu.Lock()
	f.engine.allowed = false
	f.engine.reason = "max active symbols (5) reached"
	f.engine.mu.Unlock()

	f.router.Start()
	defer f.router.Stop()

	f.queue.Push(buySignal("BTCUSDT"))
	waitDrained(t, f)
	assert.Zero(t, f.client.orderCount())
}

func TestMissingOrderbookAbortsEvaluation(t *testing.T) {
	f := newFixture(Options{})

	f.router.Start()
	defer f.router.Stop()

	f.queue.Push(buySignal("BTCUSDT"))
	waitDrained(t, f)
	assert.Zero(t, f.client.orderCount())
}

func TestKillSwitchHaltsTheLoop(t *testing.T) {
	f := newFixture(Options{})
	f.withBook("BTCUSDT", 100)

	f.router.Start()
	f.engine.setGloballyOK(false)

	f.queue.Push(buySignal("BTCUSDT"))
	require.Eventually(t, func() bool { return f.store.Status() == StatusHalted }, time.Second, time.Millisecond)
	assert.False(t, f.router.IsRunning())
	assert.Zero(t, f.client.orderCount())

	// Signals queued after the halt are not consumed.
	f.queue.Push(buySignal("BTCUSDT"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.queue.Len())

	// An explicit restart resumes consumption.
	f.engine.setGloballyOK(true)
	f.router.Start()
	defer f.router.Stop()
	require.Eventually(t, func() bool { return f.client.orderCount() == 1 }, time.Second, time.Millisecond)
}

func TestStartStopIdempotent(t *testing.T) {
	f := newFixture(Options{})

	f.router.Stop() // stop before start is a no-op
	assert.False(t, f.router.IsRunning())

	f.router.Start()
	f.router.Start() // redundant start is a no-op
	assert.True(t, f.router.IsRunning())

	f.router.Stop()
	f.router.Stop() // redundant stop is a no-op
	assert.False(t, f.router.IsRunning())
	assert.Equal(t, StatusStopped, f.store.Status())
}

func TestRecordsFillAsEntryPrice(t *testing.T) {
	f := newFixture(Options{})
	f.withBook("BTCUSDT", 100)

	f.router.Start()
	defer f.router.Stop()

	f.queue.Push(buySignal("BTCUSDT"))
	require.Eventually(t, func() bool {
		pos, ok := f.store.Position("BTCUSDT")
		return ok && pos.EntryPrice == 100.5
	}, time.Second, time.Millisecond, "entry price must come from the fill, not the signal")

	pos, _ := f.store.Position("BTCUSDT")
	assert.Equal(t, 100.5, pos.HighestPrice, "high-water mark resets to the fill price")
	assert.Equal(t, 0.5, pos.Quantity)
}
