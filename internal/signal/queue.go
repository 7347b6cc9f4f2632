package signal

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO between signal producers and the single router
// consumer. Push never blocks; Pop blocks until a signal arrives or the
// context is cancelled.
type Queue struct {
	mu    sync.Mutex
	items []Signal
	wake  chan struct{}
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Push appends a signal and wakes a waiting consumer.
func (q *Queue) Push(s Signal) {
	q.mu.Lock()
	q.items = append(q.items, s)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest signal, blocking while the queue is
// empty. Returns ctx.Err() on cancellation.
func (q *Queue) Pop(ctx context.Context) (Signal, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			s := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return s, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Signal{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len reports the number of queued signals.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
