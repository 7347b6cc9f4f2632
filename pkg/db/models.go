package db

import "time"

// Trade is one executed order as recorded by the bot.
type Trade struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Qty       float64   `json:"qty"`
	Fee       float64   `json:"fee"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is one operational log entry (start, stop, halt, error).
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
