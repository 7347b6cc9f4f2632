package feed

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"scalp-core/internal/events"
	"scalp-core/pkg/db"
)

// Recorder persists bus events to SQLite. Writes are fire-and-forget; a
// failed insert is logged and never blocks trading.
type Recorder struct {
	bus      *events.Bus
	database *db.Database
}

func NewRecorder(bus *events.Bus, database *db.Database) *Recorder {
	return &Recorder{bus: bus, database: database}
}

// Start subscribes to the trade and operational topics until ctx ends.
func (r *Recorder) Start(ctx context.Context) {
	trades, unsubTrades := r.bus.Subscribe(events.EventTradeExecuted, 100)
	halts, unsubHalts := r.bus.Subscribe(events.EventRiskHalt, 10)
	status, unsubStatus := r.bus.Subscribe(events.EventRouterStatus, 10)
	rejects, unsubRejects := r.bus.Subscribe(events.EventTradeRejected, 100)
	errs, unsubErrs := r.bus.Subscribe(events.EventError, 100)

	go func() {
		defer unsubTrades()
		defer unsubHalts()
		defer unsubStatus()
		defer unsubRejects()
		defer unsubErrs()

		for {
			select {
			case <-ctx.Done():
				return
			case payload := <-trades:
				r.recordTrade(ctx, payload)
			case payload := <-halts:
				r.recordEvent(ctx, "risk.halt", fmt.Sprint(payload))
			case payload := <-status:
				if sp, ok := payload.(events.StatusPayload); ok {
					r.recordEvent(ctx, "router.status", sp.Status+" "+sp.Detail)
				}
			case payload := <-rejects:
				r.recordEvent(ctx, "trade.rejected", fmt.Sprint(payload))
			case payload := <-errs:
				r.recordEvent(ctx, "error", fmt.Sprint(payload))
			}
		}
	}()
}

func (r *Recorder) recordTrade(ctx context.Context, payload any) {
	tp, ok := payload.(events.TradePayload)
	if !ok {
		return
	}
	err := r.database.RecordTrade(ctx, db.Trade{
		ID:      uuid.NewString(),
		OrderID: tp.OrderID,
		Symbol:  tp.Symbol,
		Side:    tp.Side,
		Price:   tp.AvgPrice,
		Qty:     tp.Qty,
		Fee:     tp.Fee,
		Reason:  tp.Reason,
	})
	if err != nil {
		log.Printf("[recorder] trade insert failed: %v", err)
	}
}

func (r *Recorder) recordEvent(ctx context.Context, eventType, details string) {
	if err := r.database.RecordEvent(ctx, eventType, details); err != nil {
		log.Printf("[recorder] event insert failed: %v", err)
	}
}
