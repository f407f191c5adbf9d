package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryDurable is an in-process stand-in for Durable, used by tests so the
// end-to-end scenarios of spec.md §8 don't require a live Redis.
type MemoryDurable struct {
	mu    sync.Mutex
	items []string
	cond  *sync.Cond
}

// NewMemoryDurable builds an empty MemoryDurable.
func NewMemoryDurable() *MemoryDurable {
	d := &MemoryDurable{}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *MemoryDurable) Push(ctx context.Context, payload string) error {
	d.mu.Lock()
	d.items = append(d.items, payload)
	d.cond.Signal()
	d.mu.Unlock()
	return nil
}

// BlockingPop waits up to timeout for an item. It checks the item list on a
// 5ms tick so context cancellation and timeouts are both observed without
// leaking goroutines.
func (d *MemoryDurable) BlockingPop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		d.mu.Lock()
		if len(d.items) > 0 {
			v := d.items[0]
			d.items = d.items[1:]
			d.mu.Unlock()
			return v, true, nil
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			return "", false, nil
		}
	}
}

var _ Durable = (*MemoryDurable)(nil)
