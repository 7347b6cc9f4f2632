package signal

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	for _, sym := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"} {
		q.Push(Signal{Symbol: sym, Side: SideBuy})
	}

	ctx := context.Background()
	for _, want := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"} {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop returned error: %v", err)
		}
		if got.Symbol != want {
			t.Errorf("Pop order wrong: got %s, want %s", got.Symbol, want)
		}
	}
	if q.Len() != 0 {
		t.Errorf("queue not drained, len=%d", q.Len())
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue()
	done := make(chan Signal, 1)

	go func() {
		s, err := q.Pop(context.Background())
		if err != nil {
			return
		}
		done <- s
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(Signal{Symbol: "BTCUSDT"})
	select {
	case s := <-done:
		if s.Symbol != "BTCUSDT" {
			t.Errorf("got %s, want BTCUSDT", s.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueuePopCancellation(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not observe cancellation")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue()
	const producers = 8
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(Signal{Symbol: "BTCUSDT"})
			}
		}()
	}
	wg.Wait()

	ctx := context.Background()
	for i := 0; i < producers*perProducer; i++ {
		if _, err := q.Pop(ctx); err != nil {
			t.Fatalf("Pop %d failed: %v", i, err)
		}
	}
	if q.Len() != 0 {
		t.Errorf("leftover signals: %d", q.Len())
	}
}
