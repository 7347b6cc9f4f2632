// Package risk is the central authority for whether trading is allowed at
// all, whether a specific trade is allowed, and how large it may be.
package risk

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"scalp-core/internal/state"
	"scalp-core/pkg/bybit"
)

const (
	// Available quote balance must exceed this buffer before buying.
	minBalanceBufferUSD = 10.0
	// Fallback when the instrument catalog carries no minimum order value.
	defaultMinOrderUSD = 10.0

	liquidityKlineInterval = "60"
	liquidityKlineWindow   = 15
)

// MarketDataClient is the slice of the exchange client the engine needs.
type MarketDataClient interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]bybit.Kline, error)
	GetInstrumentsInfo(ctx context.Context) ([]bybit.Instrument, error)
}

// Engine gatekeeps trade admission and sizing. Config is swapped atomically
// so concurrent readers never see a half-updated parameter set.
type Engine struct {
	store  *state.Store
	client MarketDataClient
	config atomic.Pointer[Config]

	mu          sync.RWMutex
	universe    []string
	instruments map[string]bybit.Instrument
}

// NewEngine builds an engine with a validated initial config and the
// configured (unfiltered) universe.
func NewEngine(store *state.Store, client MarketDataClient, cfg Config, universe []string) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("initial risk config: %w", err)
	}
	e := &Engine{
		store:       store,
		client:      client,
		universe:    append([]string(nil), universe...),
		instruments: make(map[string]bybit.Instrument),
	}
	e.config.Store(&cfg)
	return e, nil
}

// Config returns the current parameter snapshot.
func (e *Engine) Config() Config {
	return *e.config.Load()
}

// UpdateConfig validates and atomically replaces the parameter set.
func (e *Engine) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.config.Store(&cfg)
	log.Printf("[risk] config replaced: tp=%dbps sl=%dbps trailing=%dbps risk=%.2f", cfg.DefaultTPBps, cfg.DefaultSLBps, cfg.TrailingSLBps, cfg.RiskPerTrade)
	return nil
}

// Universe returns the current tradable symbol set.
func (e *Engine) Universe() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.universe...)
}

// UpdateUniverse replaces the tradable set. In-flight signals for removed
// symbols are not cancelled retroactively.
func (e *Engine) UpdateUniverse(symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("universe must not be empty")
	}
	e.mu.Lock()
	e.universe = append([]string(nil), symbols...)
	e.mu.Unlock()
	log.Printf("[risk] universe replaced: %d symbols", len(symbols))
	return nil
}

// IsGloballyOkToTrade applies the daily circuit breakers: the loss limit in
// USD and the profit target as a percentage of equity. Cleared only by the
// daily reset.
func (e *Engine) IsGloballyOkToTrade() bool {
	cfg := e.config.Load()
	pnlUSD, _ := e.store.PnlDay()

	if pnlUSD <= -cfg.DayLossLimitUSD {
		log.Printf("[risk] HALT: daily loss %.2f breached limit %.2f", pnlUSD, cfg.DayLossLimitUSD)
		return false
	}
	equity := e.store.TotalEquity()
	if equity > 0 && pnlUSD >= equity*cfg.DayProfitTargetPct/100 {
		log.Printf("[risk] HALT: daily profit %.2f reached target %.2f%% of equity", pnlUSD, cfg.DayProfitTargetPct)
		return false
	}
	return true
}

// IsTradeAllowed checks per-trade admission. Buying a symbol already held
// (dust top-up) is exempt from the active-symbol cap; selling requires the
// symbol to be held.
func (e *Engine) IsTradeAllowed(symbol string, side string) (bool, string) {
	if !e.IsGloballyOkToTrade() {
		return false, "daily circuit breaker active"
	}

	held := e.store.IsHeld(symbol)
	switch side {
	case "BUY", "Buy":
		cfg := e.config.Load()
		if !held && len(e.store.HeldSymbols()) >= cfg.MaxActiveSymbols {
			return false, fmt.Sprintf("max active symbols (%d) reached", cfg.MaxActiveSymbols)
		}
	case "SELL", "Sell":
		if !held {
			return false, "symbol not held"
		}
	default:
		return false, fmt.Sprintf("unknown side %q", side)
	}
	return true, ""
}

// CalculateNotionalSize returns the order value in quote currency for a buy:
// min(equity * riskPerTrade, available balance), floored to 2 decimals.
// Returns 0 when the balance buffer or the exchange minimum is not met.
func (e *Engine) CalculateNotionalSize(symbol string) float64 {
	cfg := e.config.Load()
	equity := e.store.TotalEquity()
	available := e.store.AvailableBalance()

	if available <= minBalanceBufferUSD {
		return 0
	}

	size := equity * cfg.RiskPerTrade
	if available < size {
		size = available
	}

	// Quote currency convention is 2 decimal places; always round down so
	// the order never exceeds the available balance.
	rounded, _ := decimal.NewFromFloat(size).RoundDown(2).Float64()

	if rounded < e.minOrderValue(symbol) {
		return 0
	}
	return rounded
}

func (e *Engine) minOrderValue(symbol string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if inst, ok := e.instruments[symbol]; ok && inst.MinOrderAmt > 0 {
		return inst.MinOrderAmt
	}
	return defaultMinOrderUSD
}

// Instrument returns catalog metadata for a symbol, if loaded.
func (e *Engine) Instrument(symbol string) (bybit.Instrument, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	inst, ok := e.instruments[symbol]
	return inst, ok
}

// LoadInstrumentInfo fetches the instrument catalog, intersects it with the
// configured universe, and drops illiquid symbols (zero recent volume or a
// flat price over the liquidity window). Failure is fatal to startup.
func (e *Engine) LoadInstrumentInfo(ctx context.Context) error {
	catalog, err := e.client.GetInstrumentsInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetch instruments info: %w", err)
	}
	bySymbol := make(map[string]bybit.Instrument, len(catalog))
	for _, inst := range catalog {
		bySymbol[inst.Symbol] = inst
	}

	e.mu.RLock()
	configured := append([]string(nil), e.universe...)
	e.mu.RUnlock()

	filtered := make([]string, 0, len(configured))
	instruments := make(map[string]bybit.Instrument, len(configured))
	for _, symbol := range configured {
		inst, ok := bySymbol[symbol]
		if !ok {
			log.Printf("[risk] %s not in instrument catalog, dropping", symbol)
			continue
		}
		liquid, err := e.isLiquid(ctx, symbol)
		if err != nil {
			return fmt.Errorf("liquidity check %s: %w", symbol, err)
		}
		if !liquid {
			log.Printf("[risk] %s failed liquidity filter, dropping", symbol)
			continue
		}
		filtered = append(filtered, symbol)
		instruments[symbol] = inst
	}

	if len(filtered) == 0 {
		return fmt.Errorf("no symbols survived the liquidity filter")
	}

	e.mu.Lock()
	e.universe = filtered
	e.instruments = instruments
	e.mu.Unlock()
	log.Printf("[risk] instrument info loaded: %d/%d symbols tradable", len(filtered), len(configured))
	return nil
}

func (e *Engine) isLiquid(ctx context.Context, symbol string) (bool, error) {
	klines, err := e.client.GetKlines(ctx, symbol, liquidityKlineInterval, liquidityKlineWindow)
	if err != nil {
		return false, err
	}
	if len(klines) == 0 {
		return false, nil
	}

	totalVolume := 0.0
	first := klines[0].Close
	flat := true
	for _, k := range klines {
		totalVolume += k.Volume
		if k.Close != first {
			flat = false
		}
	}
	return totalVolume > 0 && !flat, nil
}
