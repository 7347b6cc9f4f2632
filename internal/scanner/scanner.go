// Package scanner polls candle data per universe symbol and emits BUY
// signals on oversold or rising-crossover conditions.
package scanner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"scalp-core/internal/indicators"
	"scalp-core/internal/signal"
	"scalp-core/internal/state"
	"scalp-core/pkg/bybit"
	"scalp-core/pkg/config"
)

// KlineClient is the slice of the exchange client the scanner needs.
type KlineClient interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]bybit.Kline, error)
}

// UniverseProvider supplies the current tradable symbol set.
type UniverseProvider interface {
	Universe() []string
}

// Scanner is the technical-analysis signal producer.
type Scanner struct {
	client   KlineClient
	store    *state.Store
	universe UniverseProvider
	queue    *signal.Queue
	params   config.ScannerParams
	interval time.Duration
}

func New(client KlineClient, store *state.Store, universe UniverseProvider, queue *signal.Queue, params config.ScannerParams, interval time.Duration) *Scanner {
	return &Scanner{
		client:   client,
		store:    store,
		universe: universe,
		queue:    queue,
		params:   params,
		interval: interval,
	}
}

// Start runs the scan loop until ctx is cancelled.
func (s *Scanner) Start(ctx context.Context) {
	log.Printf("[scanner] started, interval %s, mode %s", s.interval, s.params.SignalMode)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[scanner] stopped")
			return
		case <-ticker.C:
			s.scanCycle(ctx)
		}
	}
}

// scanCycle evaluates every universe symbol once. A failure on one symbol
// never halts the rest of the cycle.
func (s *Scanner) scanCycle(ctx context.Context) {
	for _, symbol := range s.universe.Universe() {
		if ctx.Err() != nil {
			return
		}
		// No pyramiding through this path.
		if _, held := s.store.Position(symbol); held {
			continue
		}
		if err := s.evaluate(ctx, symbol); err != nil {
			log.Printf("[scanner] %s: %v", symbol, err)
			s.store.AppendError(fmt.Sprintf("scanner %s: %v", symbol, err))
		}
	}
}

func (s *Scanner) evaluate(ctx context.Context, symbol string) error {
	need := s.params.LongMA + 1
	if s.params.RSIPeriod+1 > need {
		need = s.params.RSIPeriod + 1
	}
	klines, err := s.client.GetKlines(ctx, symbol, s.params.Interval, need+1)
	if err != nil {
		return fmt.Errorf("fetch klines: %w", err)
	}
	if len(klines) < need {
		return nil // not enough history yet
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}

	rsi := indicators.RSI(closes, s.params.RSIPeriod)
	oversold := rsi < s.params.Oversold
	crossover := indicators.RisingCrossover(closes, s.params.ShortMA, s.params.LongMA)

	triggered := oversold || crossover
	if s.params.SignalMode == "and" {
		triggered = oversold && crossover
	}
	if !triggered {
		return nil
	}

	var conditions []string
	if oversold {
		conditions = append(conditions, fmt.Sprintf("RSI %.1f < %.1f", rsi, s.params.Oversold))
	}
	if crossover {
		conditions = append(conditions, fmt.Sprintf("SMA%d crossed above SMA%d", s.params.ShortMA, s.params.LongMA))
	}

	s.queue.Push(signal.Signal{
		Symbol:    symbol,
		Side:      signal.SideBuy,
		Price:     closes[len(closes)-1],
		Reason:    strings.Join(conditions, ", "),
		Strength:  1 - rsi/100,
		Source:    signal.SourceScalping,
		CreatedAt: time.Now().UTC(),
	})
	log.Printf("[scanner] BUY signal %s: %s", symbol, strings.Join(conditions, ", "))
	return nil
}
