// Package strategy contains the router: the single consumer of the signal
// queue, owner of the system-wide trade lock and the per-symbol cooldowns,
// and the only component that places orders.
package strategy

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"scalp-core/internal/events"
	"scalp-core/internal/signal"
	"scalp-core/internal/state"
	"scalp-core/pkg/bybit"
)

// Router status values.
const (
	StatusStopped = "STOPPED"
	StatusRunning = "RUNNING"
	StatusHalted  = "HALTED"
)

// OrderClient is the slice of the exchange client the router needs.
type OrderClient interface {
	PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64, orderLinkID string) (*bybit.OrderResult, error)
	GetOrderHistory(ctx context.Context, symbol, orderID string, limit int) ([]bybit.OrderRecord, error)
}

// RiskEngine is the admission and sizing authority.
type RiskEngine interface {
	IsGloballyOkToTrade() bool
	IsTradeAllowed(symbol, side string) (bool, string)
	CalculateNotionalSize(symbol string) float64
}

// Runner is a background producer loop started alongside the consumer.
type Runner func(ctx context.Context)

// Options tunes router timing and dust thresholds.
type Options struct {
	Cooldown     time.Duration // min gap between trades on one symbol
	LockGrace    time.Duration // lock hold time after a successful submit
	FillWait     time.Duration // settle time before fetching the fill
	TopUpDustUSD float64       // held value above this blocks further buys
	SellDustUSD  float64       // held value below this is never sold
}

// Router is the strategy state machine. States: STOPPED, RUNNING. A daily
// circuit breaker moves it to HALTED, which behaves like STOPPED until the
// next start.
type Router struct {
	queue  *signal.Queue
	store  *state.Store
	engine RiskEngine
	client OrderClient
	bus    *events.Bus
	opts   Options

	runners []Runner

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	lockMu          sync.Mutex
	tradeInProgress bool
	pendingSymbol   string
	lastTrade       map[string]time.Time

	now func() time.Time
}

func NewRouter(queue *signal.Queue, store *state.Store, engine RiskEngine, client OrderClient, bus *events.Bus, opts Options, runners ...Runner) *Router {
	if opts.Cooldown <= 0 {
		opts.Cooldown = time.Minute
	}
	if opts.LockGrace <= 0 {
		opts.LockGrace = 5 * time.Second
	}
	if opts.FillWait <= 0 {
		opts.FillWait = 1500 * time.Millisecond
	}
	return &Router{
		queue:     queue,
		store:     store,
		engine:    engine,
		client:    client,
		bus:       bus,
		opts:      opts,
		runners:   runners,
		lastTrade: make(map[string]time.Time),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start spawns the consumer loop and all producer runners. Calling Start on
// a running router is a warning no-op.
func (r *Router) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		log.Printf("[router] start ignored: already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.consumeLoop(ctx)
	}()
	for _, run := range r.runners {
		run := run
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			run(ctx)
		}()
	}

	r.store.SetStatus(StatusRunning)
	r.bus.PublishStatus(StatusRunning, "")
	log.Printf("[router] started")
}

// Stop cancels all loops and waits for them. Calling Stop on a stopped
// router is a warning no-op.
func (r *Router) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		log.Printf("[router] stop ignored: not running")
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()

	r.store.SetStatus(StatusStopped)
	r.bus.PublishStatus(StatusStopped, "")
	log.Printf("[router] stopped")
}

// IsRunning reports whether the consumer loop is active.
func (r *Router) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// consumeLoop is the single consumer of the signal queue.
func (r *Router) consumeLoop(ctx context.Context) {
	for {
		sig, err := r.queue.Pop(ctx)
		if err != nil {
			return
		}

		// A breached daily limit shuts down all decisioning, exits
		// included, until the daily reset restarts the router.
		if !r.engine.IsGloballyOkToTrade() {
			r.halt("daily circuit breaker tripped")
			return
		}

		if locked, symbol := r.isLocked(); locked {
			log.Printf("[router] dropping %s %s: trade in flight for %s", sig.Side, sig.Symbol, symbol)
			continue
		}

		if err := r.handleSignal(ctx, sig); err != nil {
			log.Printf("[router] %s %s failed: %v", sig.Side, sig.Symbol, err)
			r.store.AppendError(fmt.Sprintf("%s %s: %v", sig.Side, sig.Symbol, err))
			r.bus.PublishError(err.Error())
		}
	}
}

// halt records a breaker shutdown and cancels all loops. Runs on the
// consumer goroutine, so it must not wait for the WaitGroup.
func (r *Router) halt(reason string) {
	r.mu.Lock()
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	r.store.SetStatus(StatusHalted)
	r.store.AppendError("HALT: " + reason)
	r.bus.Publish(events.EventRiskHalt, reason)
	r.bus.PublishStatus(StatusHalted, reason)
	log.Printf("[router] HALTED: %s", reason)
	cancel()
}

// handleSignal evaluates one dequeued signal. Errors are per-signal and
// never crash the loop.
func (r *Router) handleSignal(ctx context.Context, sig signal.Signal) error {
	if sig.Source != signal.SourceExitMonitor && r.inCooldown(sig.Symbol) {
		log.Printf("[router] dropping %s %s: cooldown active", sig.Side, sig.Symbol)
		return nil
	}

	price := r.store.BestBid(sig.Symbol)
	if price <= 0 {
		log.Printf("[router] dropping %s %s: no orderbook data", sig.Side, sig.Symbol)
		return nil
	}

	switch sig.Side {
	case signal.SideSell:
		return r.evaluateSell(ctx, sig)
	case signal.SideBuy:
		return r.evaluateBuy(ctx, sig)
	default:
		return fmt.Errorf("unknown signal side %q", sig.Side)
	}
}

func (r *Router) evaluateSell(ctx context.Context, sig signal.Signal) error {
	value, qty := r.store.HeldValueUSD(sig.Symbol)
	if value < r.opts.SellDustUSD || qty <= 0 {
		log.Printf("[router] ignoring SELL %s: held value %.2f below dust", sig.Symbol, value)
		return nil
	}
	return r.execute(ctx, sig, "Sell", qty)
}

func (r *Router) evaluateBuy(ctx context.Context, sig signal.Signal) error {
	if value, _ := r.store.HeldValueUSD(sig.Symbol); value > r.opts.TopUpDustUSD {
		log.Printf("[router] ignoring BUY %s: already positioned (%.2f USD)", sig.Symbol, value)
		return nil
	}

	allowed, reason := r.engine.IsTradeAllowed(sig.Symbol, string(sig.Side))
	if !allowed {
		log.Printf("[router] BUY %s rejected: %s", sig.Symbol, reason)
		r.bus.Publish(events.EventTradeRejected, fmt.Sprintf("%s: %s", sig.Symbol, reason))
		return nil
	}

	notional := r.engine.CalculateNotionalSize(sig.Symbol)
	if notional <= 0 {
		log.Printf("[router] BUY %s rejected: notional size is zero", sig.Symbol)
		return nil
	}
	return r.execute(ctx, sig, "Buy", notional)
}

// execute submits a market order under the trade lock. qty is notional quote
// value for buys and base quantity for sells.
func (r *Router) execute(ctx context.Context, sig signal.Signal, side string, qty float64) error {
	if !r.acquireLock(sig.Symbol) {
		log.Printf("[router] dropping %s %s: trade lock contention", side, sig.Symbol)
		return nil
	}

	orderLinkID := uuid.NewString()
	result, err := r.client.PlaceMarketOrder(ctx, sig.Symbol, side, qty, orderLinkID)
	if err != nil {
		r.releaseLock()
		return fmt.Errorf("place %s order: %w", side, err)
	}

	r.markTraded(sig.Symbol)
	log.Printf("[router] %s %s submitted, order %s, qty %.4f (%s)", side, sig.Symbol, result.OrderID, qty, sig.Reason)

	r.settleAndRecord(ctx, sig, side, result.OrderID)
	time.AfterFunc(r.opts.LockGrace, r.releaseLock)
	return nil
}

// settleAndRecord waits for the exchange to register the fill, then fetches
// the actual average price. The fill price, never the signal price, seeds
// the position entry.
func (r *Router) settleAndRecord(ctx context.Context, sig signal.Signal, side, orderID string) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(r.opts.FillWait):
	}

	records, err := r.client.GetOrderHistory(ctx, sig.Symbol, orderID, 1)
	if err != nil || len(records) == 0 {
		// Balance reconciliation will pick the position up as a fallback.
		log.Printf("[router] fill fetch failed for %s %s: %v", sig.Symbol, orderID, err)
		r.store.AppendError(fmt.Sprintf("fill fetch %s %s: %v", sig.Symbol, orderID, err))
		return
	}

	fill := records[0]
	if side == "Buy" {
		r.store.RecordEntry(sig.Symbol, fill.AvgPrice, fill.CumExecQty)
	} else if fill.OrderStatus == "Filled" {
		r.store.RemovePosition(sig.Symbol)
	}

	record := state.TradeRecord{
		OrderID:  fill.OrderID,
		Symbol:   fill.Symbol,
		Side:     side,
		AvgPrice: fill.AvgPrice,
		Qty:      fill.CumExecQty,
		Reason:   sig.Reason,
		At:       r.now(),
	}
	r.store.AppendTrade(record)
	r.bus.Publish(events.EventTradeExecuted, events.TradePayload{
		OrderID:  fill.OrderID,
		Symbol:   fill.Symbol,
		Side:     side,
		AvgPrice: fill.AvgPrice,
		Qty:      fill.CumExecQty,
		Fee:      fill.CumExecFee,
		Reason:   sig.Reason,
	})
	log.Printf("[router] %s %s filled at %.4f qty %.6f", side, fill.Symbol, fill.AvgPrice, fill.CumExecQty)
}

// acquireLock takes the system-wide trade lock. Only one order may be in
// flight at any instant, regardless of symbol.
func (r *Router) acquireLock(symbol string) bool {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	if r.tradeInProgress {
		return false
	}
	r.tradeInProgress = true
	r.pendingSymbol = symbol
	return true
}

func (r *Router) releaseLock() {
	r.lockMu.Lock()
	r.tradeInProgress = false
	r.pendingSymbol = ""
	r.lockMu.Unlock()
}

func (r *Router) isLocked() (bool, string) {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	return r.tradeInProgress, r.pendingSymbol
}

func (r *Router) markTraded(symbol string) {
	r.lockMu.Lock()
	r.lastTrade[symbol] = r.now()
	r.lockMu.Unlock()
}

func (r *Router) inCooldown(symbol string) bool {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	last, ok := r.lastTrade[symbol]
	return ok && r.now().Sub(last) < r.opts.Cooldown
}
