// Package feed runs the background data loops: the public orderbook stream,
// the wallet-balance and order-history pollers, and the daily reset task.
package feed

import (
	"context"
	"fmt"
	"log"
	"time"

	"scalp-core/internal/events"
	"scalp-core/internal/state"
	"scalp-core/pkg/bybit"
)

// RouterControl is the slice of the strategy router the daily reset needs.
type RouterControl interface {
	Start()
	IsRunning() bool
}

// UniverseProvider supplies the symbols to stream.
type UniverseProvider interface {
	Universe() []string
}

// Options tunes feed cadence.
type Options struct {
	BalanceInterval time.Duration
	HistoryInterval time.Duration
	OrderbookDepth  int
}

// Service owns the market-data and account-data loops.
type Service struct {
	client   *bybit.Client
	stream   *bybit.StreamClient
	store    *state.Store
	universe UniverseProvider
	router   RouterControl
	bus      *events.Bus
	opts     Options
}

func NewService(client *bybit.Client, stream *bybit.StreamClient, store *state.Store, universe UniverseProvider, router RouterControl, bus *events.Bus, opts Options) *Service {
	if opts.BalanceInterval <= 0 {
		opts.BalanceInterval = 5 * time.Second
	}
	if opts.HistoryInterval <= 0 {
		opts.HistoryInterval = time.Minute
	}
	if opts.OrderbookDepth <= 0 {
		opts.OrderbookDepth = 50
	}
	return &Service{
		client:   client,
		stream:   stream,
		store:    store,
		universe: universe,
		router:   router,
		bus:      bus,
		opts:     opts,
	}
}

// Start launches all loops. They run until ctx is cancelled; the feed keeps
// running across router stop/start cycles.
func (s *Service) Start(ctx context.Context) error {
	books, err := s.stream.SubscribeOrderbooks(ctx, s.universe.Universe(), s.opts.OrderbookDepth)
	if err != nil {
		return fmt.Errorf("subscribe orderbooks: %w", err)
	}
	go s.drainOrderbooks(books)
	go s.balanceLoop(ctx)
	go s.historyLoop(ctx)
	go s.dailyResetLoop(ctx)
	return nil
}

func (s *Service) drainOrderbooks(books <-chan bybit.Orderbook) {
	for ob := range books {
		s.store.UpdateOrderbook(ob)
	}
}

// balanceLoop refreshes the wallet snapshot. A failed fetch leaves the
// previous state intact.
func (s *Service) balanceLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.BalanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bal, err := s.client.GetWalletBalance(ctx)
			if err != nil {
				log.Printf("[feed] balance refresh failed: %v", err)
				continue
			}
			s.store.UpdateWalletBalance(bal)
		}
	}
}

// historyLoop reconciles recently filled orders into the trade log, catching
// fills the router missed (e.g. a failed post-trade fetch).
func (s *Service) historyLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.HistoryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records, err := s.client.GetOrderHistory(ctx, "", "", 20)
			if err != nil {
				log.Printf("[feed] order history refresh failed: %v", err)
				continue
			}
			for _, rec := range records {
				if rec.OrderStatus != "Filled" || s.store.HasTrade(rec.OrderID) {
					continue
				}
				s.store.AppendTrade(state.TradeRecord{
					OrderID:  rec.OrderID,
					Symbol:   rec.Symbol,
					Side:     rec.Side,
					AvgPrice: rec.AvgPrice,
					Qty:      rec.CumExecQty,
					Reason:   "reconciled from order history",
					At:       rec.CreatedAt,
				})
				log.Printf("[feed] reconciled fill %s %s %s", rec.Side, rec.Symbol, rec.OrderID)
			}
		}
	}
}

// dailyResetLoop re-baselines daily P&L at UTC midnight and restarts the
// router if a circuit breaker halted it.
func (s *Service) dailyResetLoop(ctx context.Context) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
		}

		bal, err := s.client.GetWalletBalance(ctx)
		if err != nil {
			log.Printf("[feed] daily reset: balance fetch failed: %v", err)
			continue
		}
		s.store.UpdateWalletBalance(bal)
		s.store.ResetDailyState(bal.TotalEquity)
		s.bus.Publish(events.EventRouterStatus, events.StatusPayload{Status: "DAILY_RESET", Detail: fmt.Sprintf("equity baseline %.2f", bal.TotalEquity)})
		log.Printf("[feed] daily reset: P&L baseline set to %.2f", bal.TotalEquity)

		if !s.router.IsRunning() && s.store.Status() == "HALTED" {
			log.Printf("[feed] daily reset: restarting halted router")
			s.router.Start()
		}
	}
}
