package bybit

import "testing"

func TestBookSetSnapshotAndDelta(t *testing.T) {
	bs := newBookSet()

	snapshot := []byte(`{"topic":"orderbook.50.BTCUSDT","type":"snapshot",
		"data":{"s":"BTCUSDT","b":[["100.5","1.2"],["100.0","3"]],"a":[["101.0","2"]]}}`)
	book, ok, err := bs.apply(snapshot)
	if err != nil || !ok {
		t.Fatalf("apply snapshot: ok=%v err=%v", ok, err)
	}
	if got := book.BestBid(); got != 100.5 {
		t.Errorf("best bid = %v, want 100.5", got)
	}
	if len(book.Asks) != 1 || book.Asks[0].Price != 101.0 {
		t.Errorf("asks = %+v", book.Asks)
	}

	// Delta removes the top bid and adds a better one.
	delta := []byte(`{"topic":"orderbook.50.BTCUSDT","type":"delta",
		"data":{"s":"BTCUSDT","b":[["100.5","0"],["100.7","2"]],"a":[]}}`)
	book, ok, err = bs.apply(delta)
	if err != nil || !ok {
		t.Fatalf("apply delta: ok=%v err=%v", ok, err)
	}
	if got := book.BestBid(); got != 100.7 {
		t.Errorf("best bid after delta = %v, want 100.7", got)
	}
	if len(book.Bids) != 2 {
		t.Errorf("bid levels = %d, want 2", len(book.Bids))
	}
}

func TestBookSetIgnoresAcks(t *testing.T) {
	bs := newBookSet()
	_, ok, err := bs.apply([]byte(`{"success":true,"op":"subscribe"}`))
	if err != nil {
		t.Fatalf("ack parse error: %v", err)
	}
	if ok {
		t.Error("ack must not produce a book")
	}
}

func TestBookSetDeltaBeforeSnapshotStartsFresh(t *testing.T) {
	bs := newBookSet()
	delta := []byte(`{"topic":"orderbook.50.ETHUSDT","type":"delta",
		"data":{"s":"ETHUSDT","b":[["2000","1"]],"a":[]}}`)
	book, ok, err := bs.apply(delta)
	if err != nil || !ok {
		t.Fatalf("apply: ok=%v err=%v", ok, err)
	}
	if got := book.BestBid(); got != 2000 {
		t.Errorf("best bid = %v, want 2000", got)
	}
}

func TestOrderbookBestBidEmpty(t *testing.T) {
	var ob *Orderbook
	if ob.BestBid() != 0 {
		t.Error("nil book must report 0")
	}
	if (&Orderbook{}).BestBid() != 0 {
		t.Error("empty book must report 0")
	}
}
