package state

import (
	"fmt"
	"math"
	"testing"

	"scalp-core/pkg/bybit"
)

func walletWith(equity, available float64, coins ...bybit.CoinBalance) *bybit.WalletBalance {
	return &bybit.WalletBalance{
		TotalEquity:      equity,
		AvailableBalance: available,
		Coins:            coins,
	}
}

func TestBalanceReconcileCreatesAndRemovesPositions(t *testing.T) {
	store := NewStore(1)

	store.UpdateWalletBalance(walletWith(1000, 500,
		bybit.CoinBalance{Coin: "USDT", WalletBalance: 500, UsdValue: 500},
		bybit.CoinBalance{Coin: "BTC", WalletBalance: 0.01, UsdValue: 400},
	))

	pos, ok := store.Position("BTCUSDT")
	if !ok {
		t.Fatal("position not created from balance poll")
	}
	if math.Abs(pos.EntryPrice-40000) > 1e-6 {
		t.Errorf("fallback entry price = %v, want 40000", pos.EntryPrice)
	}
	if !store.IsHeld("BTCUSDT") {
		t.Error("BTCUSDT should be held")
	}
	if store.IsHeld("USDTUSDT") {
		t.Error("quote coin must never appear as a held symbol")
	}

	// Balance drops under dust: position is implicitly closed.
	store.UpdateWalletBalance(walletWith(1000, 995,
		bybit.CoinBalance{Coin: "USDT", WalletBalance: 995, UsdValue: 995},
		bybit.CoinBalance{Coin: "BTC", WalletBalance: 0.00001, UsdValue: 0.4},
	))
	if _, ok := store.Position("BTCUSDT"); ok {
		t.Error("dust position should have been removed")
	}
	if store.IsHeld("BTCUSDT") {
		t.Error("dust holding must not count as held")
	}
}

func TestFillEntryIsAuthoritativeOverReconcile(t *testing.T) {
	store := NewStore(1)

	// Router registers the actual fill first.
	store.RecordEntry("ETHUSDT", 2000, 0.05)

	// A later balance poll reports a slightly different average; it may
	// refresh quantity and cost basis but never the entry price.
	store.UpdateWalletBalance(walletWith(1000, 500,
		bybit.CoinBalance{Coin: "ETH", WalletBalance: 0.05, UsdValue: 101},
	))

	pos, ok := store.Position("ETHUSDT")
	if !ok {
		t.Fatal("position lost after reconcile")
	}
	if pos.EntryPrice != 2000 {
		t.Errorf("entry price overwritten by reconcile: %v", pos.EntryPrice)
	}
	if pos.AveragePrice != 101/0.05 {
		t.Errorf("average price not refreshed: %v", pos.AveragePrice)
	}
}

func TestRecordEntryResetsHighWaterMark(t *testing.T) {
	store := NewStore(1)
	store.RecordEntry("BTCUSDT", 100, 1)
	store.RatchetHigh("BTCUSDT", 150)

	// Re-entry after a dust top-up resets the mark to the new fill.
	store.RecordEntry("BTCUSDT", 120, 2)
	pos, _ := store.Position("BTCUSDT")
	if pos.HighestPrice != 120 {
		t.Errorf("high-water mark = %v, want 120", pos.HighestPrice)
	}
	if pos.EntryPrice != 120 {
		t.Errorf("entry price = %v, want 120", pos.EntryPrice)
	}
}

func TestRatchetHighNeverMovesDown(t *testing.T) {
	store := NewStore(1)
	store.RecordEntry("BTCUSDT", 100, 1)

	if got := store.RatchetHigh("BTCUSDT", 110); got != 110 {
		t.Errorf("ratchet up = %v, want 110", got)
	}
	if got := store.RatchetHigh("BTCUSDT", 105); got != 110 {
		t.Errorf("ratchet down = %v, want 110", got)
	}
}

func TestPnlDay(t *testing.T) {
	store := NewStore(1)
	store.SetInitialEquity(1000)
	store.UpdateWalletBalance(walletWith(1100, 1100))

	usd, pct := store.PnlDay()
	if usd != 100 {
		t.Errorf("pnl usd = %v, want 100", usd)
	}
	if pct != 10 {
		t.Errorf("pnl pct = %v, want 10", pct)
	}
}

func TestResetDailyStateKeepsLogs(t *testing.T) {
	store := NewStore(1)
	store.SetInitialEquity(1000)
	store.UpdateWalletBalance(walletWith(900, 900))
	store.AppendTrade(TradeRecord{OrderID: "o1", Symbol: "BTCUSDT", Side: "Buy"})
	store.AppendError("boom")

	store.ResetDailyState(900)

	usd, _ := store.PnlDay()
	if usd != 0 {
		t.Errorf("pnl after reset = %v, want 0", usd)
	}
	snap := store.Snapshot()
	if len(snap.RecentTrades) != 1 || len(snap.RecentErrors) != 1 {
		t.Error("daily reset must not clear trade/error logs")
	}
}

func TestRingsAreBounded(t *testing.T) {
	store := NewStore(1)
	for i := 0; i < 120; i++ {
		store.AppendTrade(TradeRecord{OrderID: fmt.Sprintf("o%d", i)})
		store.AppendError("e")
	}
	snap := store.Snapshot()
	if len(snap.RecentTrades) != ringMaxLen {
		t.Errorf("trade ring len = %d, want %d", len(snap.RecentTrades), ringMaxLen)
	}
	if len(snap.RecentErrors) != ringMaxLen {
		t.Errorf("error ring len = %d, want %d", len(snap.RecentErrors), ringMaxLen)
	}
	// Oldest entries are evicted first.
	if snap.RecentTrades[0].OrderID != "o70" {
		t.Errorf("oldest surviving trade = %s, want o70", snap.RecentTrades[0].OrderID)
	}
}

func TestOrderbookLastWriteWins(t *testing.T) {
	store := NewStore(1)
	store.UpdateOrderbook(bybit.Orderbook{Symbol: "BTCUSDT", Bids: []bybit.OrderbookLevel{{Price: 100, Size: 1}}})
	store.UpdateOrderbook(bybit.Orderbook{Symbol: "BTCUSDT", Bids: []bybit.OrderbookLevel{{Price: 101, Size: 2}}})

	if got := store.BestBid("BTCUSDT"); got != 101 {
		t.Errorf("best bid = %v, want 101", got)
	}
	if got := store.BestBid("ETHUSDT"); got != 0 {
		t.Errorf("missing book best bid = %v, want 0", got)
	}
}
