// Package state holds the in-memory source of truth: orderbooks, wallet
// balances, derived positions, daily P&L and the recent trade/error logs.
package state

import (
	"fmt"
	"log"
	"sync"
	"time"

	"scalp-core/pkg/bybit"
)

const (
	quoteCoin  = "USDT"
	ringMaxLen = 50
)

// Position is one risk-managed holding.
type Position struct {
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	AveragePrice float64   `json:"average_price"`
	EntryPrice   float64   `json:"entry_price"`
	EntryTime    time.Time `json:"entry_time"`
	LastUpdate   time.Time `json:"last_update"`
	HighestPrice float64   `json:"highest_price_since_entry"`
}

// TradeRecord is one executed trade kept in the in-memory ring.
type TradeRecord struct {
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	AvgPrice float64   `json:"avg_price"`
	Qty      float64   `json:"qty"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// ErrorRecord is one operational error kept in the in-memory ring.
type ErrorRecord struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// SystemState is the aggregated snapshot served to dashboards. It is a
// projection, not the authority trading decisions read.
type SystemState struct {
	Status           string             `json:"status"`
	TotalEquity      float64            `json:"total_equity"`
	AvailableBalance float64            `json:"available_balance"`
	PnlDayUSD        float64            `json:"pnl_day_usd"`
	PnlDayPct        float64            `json:"pnl_day_pct"`
	HeldSymbols      []string           `json:"held_symbols"`
	Positions        []Position         `json:"positions"`
	RecentTrades     []TradeRecord      `json:"recent_trades"`
	RecentErrors     []ErrorRecord      `json:"recent_errors"`
	CoinValues       map[string]float64 `json:"coin_values"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Store is the market state cache. The balance/position aggregate is guarded
// by mu around every read-modify-write; orderbooks use a separate RWMutex
// with last-write-wins overwrite semantics.
type Store struct {
	mu sync.Mutex

	status           string
	totalEquity      float64
	availableBalance float64
	initialEquity    float64
	coinBalances     map[string]bybit.CoinBalance
	positions        map[string]*Position
	heldSymbols      map[string]struct{}
	trades           []TradeRecord
	errors           []ErrorRecord

	// USD value below which a holding is ignored for held-symbol derivation.
	sellDustUSD float64

	obMu       sync.RWMutex
	orderbooks map[string]bybit.Orderbook
}

// NewStore builds an empty cache. sellDustUSD controls when a coin counts
// as held.
func NewStore(sellDustUSD float64) *Store {
	return &Store{
		status:       "STOPPED",
		coinBalances: make(map[string]bybit.CoinBalance),
		positions:    make(map[string]*Position),
		heldSymbols:  make(map[string]struct{}),
		orderbooks:   make(map[string]bybit.Orderbook),
		sellDustUSD:  sellDustUSD,
	}
}

// UpdateOrderbook overwrites the snapshot for one symbol.
func (s *Store) UpdateOrderbook(ob bybit.Orderbook) {
	s.obMu.Lock()
	s.orderbooks[ob.Symbol] = ob
	s.obMu.Unlock()
}

// Orderbook returns the latest snapshot for a symbol, if any.
func (s *Store) Orderbook(symbol string) (bybit.Orderbook, bool) {
	s.obMu.RLock()
	defer s.obMu.RUnlock()
	ob, ok := s.orderbooks[symbol]
	return ob, ok
}

// BestBid returns the top-of-book bid for a symbol, or 0 if no book arrived.
func (s *Store) BestBid(symbol string) float64 {
	s.obMu.RLock()
	defer s.obMu.RUnlock()
	ob, ok := s.orderbooks[symbol]
	if !ok {
		return 0
	}
	return ob.BestBid()
}

// UpdateWalletBalance ingests one balance snapshot: recomputes equity and
// available balance, derives held symbols, and reconciles the position set.
// A malformed coin entry skips that coin only.
func (s *Store) UpdateWalletBalance(bal *bybit.WalletBalance) {
	if bal == nil {
		return
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalEquity = bal.TotalEquity
	s.availableBalance = bal.AvailableBalance

	held := make(map[string]struct{})
	coins := make(map[string]bybit.CoinBalance, len(bal.Coins))
	for _, coin := range bal.Coins {
		if coin.Coin == "" {
			log.Printf("[state] skipping balance entry with empty coin name")
			continue
		}
		coins[coin.Coin] = coin
		if coin.Coin == quoteCoin {
			continue
		}
		if coin.WalletBalance <= 0 || coin.UsdValue < s.sellDustUSD {
			continue
		}

		symbol := coin.Coin + quoteCoin
		held[symbol] = struct{}{}

		pos, ok := s.positions[symbol]
		if !ok {
			// First sight: entry price falls back to the implied average.
			// A router-initiated buy will have registered the fill first.
			avg := 0.0
			if coin.WalletBalance > 0 {
				avg = coin.UsdValue / coin.WalletBalance
			}
			s.positions[symbol] = &Position{
				Symbol:       symbol,
				Quantity:     coin.WalletBalance,
				AveragePrice: avg,
				EntryPrice:   avg,
				EntryTime:    now,
				LastUpdate:   now,
				HighestPrice: avg,
			}
			continue
		}
		pos.Quantity = coin.WalletBalance
		if coin.WalletBalance > 0 {
			pos.AveragePrice = coin.UsdValue / coin.WalletBalance
		}
		pos.LastUpdate = now
	}

	// Positions whose balance fell under dust are implicitly closed.
	for symbol := range s.positions {
		if _, ok := held[symbol]; !ok {
			delete(s.positions, symbol)
		}
	}

	s.coinBalances = coins
	s.heldSymbols = held
}

// RecordEntry registers a position entry from an actual order fill. The fill
// price is authoritative and resets the trailing high-water mark.
func (s *Store) RecordEntry(symbol string, fillPrice, qty float64) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		s.positions[symbol] = pos
	}
	pos.Quantity = qty
	pos.AveragePrice = fillPrice
	pos.EntryPrice = fillPrice
	pos.EntryTime = now
	pos.LastUpdate = now
	pos.HighestPrice = fillPrice
	s.heldSymbols[symbol] = struct{}{}
}

// RemovePosition drops a position after a confirmed full exit.
func (s *Store) RemovePosition(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, symbol)
	delete(s.heldSymbols, symbol)
}

// Position returns a copy of the position for symbol.
func (s *Store) Position(symbol string) (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open positions.
func (s *Store) Positions() []Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, *pos)
	}
	return out
}

// RatchetHigh raises a position's high-water mark and returns the current
// value. The mark never moves down.
func (s *Store) RatchetHigh(symbol string, price float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return 0
	}
	if price > pos.HighestPrice {
		pos.HighestPrice = price
	}
	return pos.HighestPrice
}

// HeldSymbols returns the symbols currently held above dust.
func (s *Store) HeldSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.heldSymbols))
	for symbol := range s.heldSymbols {
		out = append(out, symbol)
	}
	return out
}

// IsHeld reports whether symbol is currently held above dust.
func (s *Store) IsHeld(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.heldSymbols[symbol]
	return ok
}

// HeldValueUSD returns the USD value of the base coin behind symbol, and the
// held base quantity.
func (s *Store) HeldValueUSD(symbol string) (value, qty float64) {
	coin, ok := baseCoin(symbol)
	if !ok {
		return 0, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.coinBalances[coin]
	if !ok {
		return 0, 0
	}
	return bal.UsdValue, bal.WalletBalance
}

// TotalEquity returns the latest total account equity.
func (s *Store) TotalEquity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalEquity
}

// AvailableBalance returns the latest available quote balance.
func (s *Store) AvailableBalance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availableBalance
}

// PnlDay returns today's P&L in USD and percent of initial equity.
func (s *Store) PnlDay() (usd, pct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pnlDayLocked()
}

func (s *Store) pnlDayLocked() (usd, pct float64) {
	usd = s.totalEquity - s.initialEquity
	if s.initialEquity > 0 {
		pct = usd / s.initialEquity * 100
	}
	return usd, pct
}

// SetInitialEquity pins the daily P&L baseline; called once at startup.
func (s *Store) SetInitialEquity(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialEquity = value
}

// ResetDailyState re-baselines daily P&L without clearing the trade and
// error logs.
func (s *Store) ResetDailyState(currentEquity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialEquity = currentEquity
	s.totalEquity = currentEquity
}

// SetStatus records the router status for external consumers.
func (s *Store) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Status returns the current router status.
func (s *Store) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AppendTrade records an executed trade in the bounded ring.
func (s *Store) AppendTrade(t TradeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	if len(s.trades) > ringMaxLen {
		s.trades = s.trades[len(s.trades)-ringMaxLen:]
	}
}

// HasTrade reports whether an order id already appears in the trade ring.
func (s *Store) HasTrade(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trades {
		if t.OrderID == orderID {
			return true
		}
	}
	return false
}

// AppendError records an operational error in the bounded ring.
func (s *Store) AppendError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, ErrorRecord{Message: msg, At: time.Now().UTC()})
	if len(s.errors) > ringMaxLen {
		s.errors = s.errors[len(s.errors)-ringMaxLen:]
	}
}

// Snapshot builds the aggregated view for dashboards and the public API.
func (s *Store) Snapshot() SystemState {
	s.mu.Lock()
	defer s.mu.Unlock()

	pnlUSD, pnlPct := s.pnlDayLocked()
	snap := SystemState{
		Status:           s.status,
		TotalEquity:      s.totalEquity,
		AvailableBalance: s.availableBalance,
		PnlDayUSD:        pnlUSD,
		PnlDayPct:        pnlPct,
		HeldSymbols:      make([]string, 0, len(s.heldSymbols)),
		Positions:        make([]Position, 0, len(s.positions)),
		RecentTrades:     append([]TradeRecord(nil), s.trades...),
		RecentErrors:     append([]ErrorRecord(nil), s.errors...),
		CoinValues:       make(map[string]float64, len(s.coinBalances)),
		UpdatedAt:        time.Now().UTC(),
	}
	for symbol := range s.heldSymbols {
		snap.HeldSymbols = append(snap.HeldSymbols, symbol)
	}
	for _, pos := range s.positions {
		snap.Positions = append(snap.Positions, *pos)
	}
	for coin, bal := range s.coinBalances {
		snap.CoinValues[coin] = bal.UsdValue
	}
	return snap
}

func baseCoin(symbol string) (string, bool) {
	if len(symbol) <= len(quoteCoin) || symbol[len(symbol)-len(quoteCoin):] != quoteCoin {
		return "", false
	}
	return symbol[:len(symbol)-len(quoteCoin)], true
}

// String implements fmt.Stringer for quick log lines.
func (p Position) String() string {
	return fmt.Sprintf("%s qty=%.8f entry=%.4f high=%.4f", p.Symbol, p.Quantity, p.EntryPrice, p.HighestPrice)
}
