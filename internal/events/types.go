package events

// Event enumerates high-level topics inside the trading core.
type Event string

const (
	EventTradeExecuted Event = "trade.executed"
	EventTradeRejected Event = "trade.rejected"
	EventRiskHalt      Event = "risk.halt"
	EventRouterStatus  Event = "router.status"
	EventError         Event = "error"
)

// TradePayload accompanies EventTradeExecuted.
type TradePayload struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	AvgPrice float64 `json:"avg_price"`
	Qty      float64 `json:"qty"`
	Fee      float64 `json:"fee"`
	Reason   string  `json:"reason"`
}

// StatusPayload accompanies EventRouterStatus.
type StatusPayload struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}
