package db

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestRecordAndListTrades(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	trades := []Trade{
		{ID: "t1", OrderID: "o1", Symbol: "BTCUSDT", Side: "Buy", Price: 100, Qty: 0.5, Fee: 0.1, Reason: "RSI 30.0 < 50.0"},
		{ID: "t2", OrderID: "o2", Symbol: "BTCUSDT", Side: "Sell", Price: 106, Qty: 0.5, Reason: "Take Profit at 600.0 BPS"},
	}
	for _, tr := range trades {
		if err := d.RecordTrade(ctx, tr); err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
	}

	got, err := d.RecentTrades(ctx, 10)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d trades, want 2", len(got))
	}

	if err := d.RecordTrade(ctx, trades[0]); err == nil {
		t.Error("duplicate trade id should fail")
	}
}

func TestRecordAndListEvents(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	if err := d.RecordEvent(ctx, "router.status", "RUNNING"); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if err := d.RecordEvent(ctx, "risk.halt", "daily circuit breaker tripped"); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	got, err := d.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	// Newest first.
	if got[0].Type != "risk.halt" {
		t.Errorf("newest event = %s, want risk.halt", got[0].Type)
	}
}

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("empty path should be rejected")
	}
}
