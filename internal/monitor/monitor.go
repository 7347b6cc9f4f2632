// Package monitor watches open positions and emits SELL signals when an
// exit condition fires: take-profit, stop-loss, trailing stop or timeout.
package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"scalp-core/internal/risk"
	"scalp-core/internal/signal"
	"scalp-core/internal/state"
)

// ConfigProvider supplies the current risk parameters.
type ConfigProvider interface {
	Config() risk.Config
}

// Monitor is the position-exit signal producer.
type Monitor struct {
	store    *state.Store
	cfg      ConfigProvider
	queue    *signal.Queue
	interval time.Duration

	now func() time.Time // injectable clock for tests
}

func New(store *state.Store, cfg ConfigProvider, queue *signal.Queue, interval time.Duration) *Monitor {
	return &Monitor{
		store:    store,
		cfg:      cfg,
		queue:    queue,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the monitor loop until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	log.Printf("[monitor] started, interval %s", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[monitor] stopped")
			return
		case <-ticker.C:
			m.checkCycle()
		}
	}
}

// checkCycle evaluates every open position once. At most one exit signal is
// emitted per position per cycle.
func (m *Monitor) checkCycle() {
	cfg := m.cfg.Config()
	for _, pos := range m.store.Positions() {
		price := m.store.BestBid(pos.Symbol)
		if price <= 0 {
			// Book has not arrived for this symbol yet; try next cycle.
			continue
		}
		if reason, exit := m.evaluate(pos, price, cfg); exit {
			m.emitExit(pos.Symbol, price, reason)
		}
	}
}

// evaluate applies the exit checks in priority order and short-circuits on
// the first that triggers.
func (m *Monitor) evaluate(pos state.Position, price float64, cfg risk.Config) (string, bool) {
	if pos.EntryPrice <= 0 {
		return "", false
	}
	pnlBps := (price/pos.EntryPrice - 1) * 10000

	if pnlBps >= float64(cfg.DefaultTPBps) {
		return fmt.Sprintf("Take Profit at %.1f BPS", pnlBps), true
	}
	if pnlBps <= -float64(cfg.DefaultSLBps) {
		return fmt.Sprintf("Stop Loss at %.1f BPS", pnlBps), true
	}

	highest := m.store.RatchetHigh(pos.Symbol, price)
	trigger := highest * (1 - float64(cfg.TrailingSLBps)/10000)
	if price < trigger {
		return fmt.Sprintf("Trailing Stop: price %.4f below trigger %.4f (high %.4f)", price, trigger, highest), true
	}

	if elapsed := m.now().Sub(pos.EntryTime); elapsed > cfg.MaxHoldingTime {
		return fmt.Sprintf("Max holding time exceeded (%.0fs elapsed)", elapsed.Seconds()), true
	}
	return "", false
}

// emitExit constructs and enqueues the SELL signal.
func (m *Monitor) emitExit(symbol string, price float64, reason string) {
	m.queue.Push(signal.Signal{
		Symbol:    symbol,
		Side:      signal.SideSell,
		Price:     price,
		Reason:    reason,
		Strength:  1.0,
		Source:    signal.SourceExitMonitor,
		CreatedAt: m.now(),
	})
	log.Printf("[monitor] SELL signal %s: %s", symbol, reason)
}
