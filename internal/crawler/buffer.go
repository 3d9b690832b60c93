package crawler

import "sync"

// resultBuffer accumulates page records between checkpoints. It also owns the
// pages-crawled counter so that append, count and the flush decision happen in
// one critical section.
type resultBuffer struct {
	mu       sync.Mutex
	records  []PageRecord
	crawled  int
	interval int
}

func newResultBuffer(interval int) *resultBuffer {
	return &resultBuffer{interval: interval}
}

// Append stores rec and bumps the counter. When the counter lands on a
// multiple of the interval the buffered records are swapped out and returned
// for flushing; otherwise the returned slice is nil.
func (b *resultBuffer) Append(rec PageRecord) (int, []PageRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, rec)
	b.crawled++
	if b.interval > 0 && b.crawled%b.interval == 0 {
		out := b.records
		b.records = nil
		return b.crawled, out
	}
	return b.crawled, nil
}

// Drain empties the buffer and returns what it held.
func (b *resultBuffer) Drain() []PageRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.records
	b.records = nil
	return out
}

// Restore puts back records whose snapshot could not be written.
func (b *resultBuffer) Restore(records []PageRecord) {
	if len(records) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(append([]PageRecord(nil), records...), b.records...)
}

func (b *resultBuffer) Crawled() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.crawled
}
