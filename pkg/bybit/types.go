package bybit

import "time"

// Kline is one OHLCV candle.
type Kline struct {
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// OrderbookLevel is a single price level.
type OrderbookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Orderbook is a full snapshot for one symbol. Bids are sorted best-first.
type Orderbook struct {
	Symbol    string           `json:"symbol"`
	Bids      []OrderbookLevel `json:"bids"`
	Asks      []OrderbookLevel `json:"asks"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// BestBid returns the top-of-book bid price, or 0 if the book is empty.
func (ob *Orderbook) BestBid() float64 {
	if ob == nil || len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// CoinBalance is one coin's wallet entry.
type CoinBalance struct {
	Coin          string
	WalletBalance float64
	UsdValue      float64
}

// WalletBalance is the unified account snapshot.
type WalletBalance struct {
	TotalEquity      float64
	AvailableBalance float64
	Coins            []CoinBalance
}

// Instrument describes one tradable pair from the exchange catalog.
type Instrument struct {
	Symbol        string
	BaseCoin      string
	QuoteCoin     string
	MinOrderAmt   float64
	MinOrderQty   float64
	BasePrecision float64
}

// OrderResult is the acknowledgement of an order submission.
type OrderResult struct {
	OrderID     string
	OrderLinkID string
}

// OrderRecord is one entry from order history.
type OrderRecord struct {
	OrderID     string
	OrderLinkID string
	Symbol      string
	Side        string
	AvgPrice    float64
	CumExecQty  float64
	CumExecFee  float64
	OrderStatus string
	CreatedAt   time.Time
}
