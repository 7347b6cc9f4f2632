// Package signal defines the trade signal message and the FIFO queue that
// carries signals from the generators to the strategy router.
package signal

import "time"

// Side of a signal.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Signal sources. Exit-monitor signals bypass the router's cooldown.
const (
	SourceScalping    = "scalping"
	SourceExitMonitor = "exit_monitor"
)

// Signal is a transient trade request. Price is the reference price at
// generation time; execution is always at market.
type Signal struct {
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Reason    string    `json:"reason"`
	Strength  float64   `json:"strength"` // 0.0-1.0 confidence
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
