package crawler

import (
	"context"
	"sync"
	"sync/atomic"
)

// frontier is a bounded queue of entries awaiting dispatch. It tracks how many
// entries are queued or in flight; when that count drops to zero nothing can
// produce new work and the frontier reports itself exhausted.
type frontier struct {
	entries   chan FrontierEntry
	pending   atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

func newFrontier(capacity int) *frontier {
	return &frontier{
		entries: make(chan FrontierEntry, capacity),
		done:    make(chan struct{}),
	}
}

// TryPush enqueues entry without blocking. It returns false when the queue is full.
func (f *frontier) TryPush(entry FrontierEntry) bool {
	f.pending.Add(1)
	select {
	case f.entries <- entry:
		return true
	default:
		f.Done()
		return false
	}
}

// Next blocks until an entry is available, the frontier is exhausted, or ctx ends.
func (f *frontier) Next(ctx context.Context) (FrontierEntry, bool) {
	if ctx.Err() != nil {
		return FrontierEntry{}, false
	}
	select {
	case entry := <-f.entries:
		return entry, true
	case <-f.done:
		return FrontierEntry{}, false
	case <-ctx.Done():
		return FrontierEntry{}, false
	}
}

// Done marks one entry as fully processed.
func (f *frontier) Done() {
	if f.pending.Add(-1) <= 0 {
		f.closeOnce.Do(func() { close(f.done) })
	}
}

// Exhausted is closed once no entries are queued or in flight.
func (f *frontier) Exhausted() <-chan struct{} {
	return f.done
}

func (f *frontier) Len() int {
	return len(f.entries)
}
