package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// StreamClient manages the public spot websocket feed.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool) *StreamClient {
	host := "wss://stream.bybit.com/v5/public/spot"
	if testnet {
		host = "wss://stream-testnet.bybit.com/v5/public/spot"
	}
	return &StreamClient{
		StreamURL: host,
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeOrderbooks streams orderbook updates for the given symbols,
// collapsing Bybit's snapshot/delta protocol into full Orderbook snapshots.
// The connection is re-dialed with backoff until ctx is cancelled.
func (c *StreamClient) SubscribeOrderbooks(ctx context.Context, symbols []string, depth int) (<-chan Orderbook, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols to subscribe")
	}
	if depth <= 0 {
		depth = 50
	}

	out := make(chan Orderbook, 256)
	go func() {
		defer close(out)
		backoff := time.Second
		for {
			if err := c.runOnce(ctx, symbols, depth, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[bybit-ws] connection lost: %v, reconnecting in %s", err, backoff)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
	return out, nil
}

func (c *StreamClient) runOnce(ctx context.Context, symbols []string, depth int, out chan<- Orderbook) error {
	conn, _, err := c.dialer.DialContext(ctx, c.StreamURL, nil)
	if err != nil {
		return fmt.Errorf("dial bybit ws: %w", err)
	}
	defer conn.Close()

	args := make([]string, 0, len(symbols))
	for _, s := range symbols {
		args = append(args, fmt.Sprintf("orderbook.%d.%s", depth, s))
	}
	sub := map[string]any{"op": "subscribe", "args": args}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// Close the connection when ctx ends so the blocking read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	// Bybit drops idle connections; it expects an app-level ping.
	pinger := time.NewTicker(20 * time.Second)
	defer pinger.Stop()
	go func() {
		for {
			select {
			case <-pinger.C:
				_ = conn.WriteJSON(map[string]string{"op": "ping"})
			case <-done:
				return
			}
		}
	}()

	books := newBookSet()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		book, ok, err := books.apply(msg)
		if err != nil {
			log.Printf("[bybit-ws] parse error: %v", err)
			continue
		}
		if !ok {
			continue
		}
		select {
		case out <- book:
		default:
			// Reader is behind; drop rather than stall the feed.
		}
	}
}

// bookSet maintains per-symbol level maps so deltas can be folded into
// complete snapshots.
type bookSet struct {
	bids map[string]map[float64]float64
	asks map[string]map[float64]float64
}

func newBookSet() *bookSet {
	return &bookSet{
		bids: make(map[string]map[float64]float64),
		asks: make(map[string]map[float64]float64),
	}
}

type streamMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
	} `json:"data"`
}

func (bs *bookSet) apply(msg []byte) (Orderbook, bool, error) {
	var raw streamMessage
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Orderbook{}, false, err
	}
	if raw.Data.Symbol == "" {
		// Subscription ack or pong.
		return Orderbook{}, false, nil
	}

	symbol := raw.Data.Symbol
	if raw.Type == "snapshot" || bs.bids[symbol] == nil {
		bs.bids[symbol] = make(map[float64]float64)
		bs.asks[symbol] = make(map[float64]float64)
	}
	applyLevels(bs.bids[symbol], raw.Data.Bids)
	applyLevels(bs.asks[symbol], raw.Data.Asks)

	return Orderbook{
		Symbol:    symbol,
		Bids:      sortedLevels(bs.bids[symbol], true),
		Asks:      sortedLevels(bs.asks[symbol], false),
		UpdatedAt: time.Now().UTC(),
	}, true, nil
}

func applyLevels(side map[float64]float64, levels [][]string) {
	for _, lvl := range levels {
		if len(lvl) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(lvl[0], 64)
		size, err2 := strconv.ParseFloat(lvl[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if size == 0 {
			delete(side, price)
		} else {
			side[price] = size
		}
	}
}

func sortedLevels(side map[float64]float64, descending bool) []OrderbookLevel {
	out := make([]OrderbookLevel, 0, len(side))
	for price, size := range side {
		out = append(out, OrderbookLevel{Price: price, Size: size})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}
