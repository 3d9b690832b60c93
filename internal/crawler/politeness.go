package crawler

import (
	"context"
	"sync"
	"time"
)

type claimResult int

const (
	claimNew claimResult = iota
	claimSeen
	claimCapReached
)

// visitedSet records every URL dispatched during a run. Membership test, cap
// test and insert happen under one lock so two workers never dispatch the same
// URL and the set never grows past limit.
type visitedSet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	limit int
}

func newVisitedSet(limit int) *visitedSet {
	return &visitedSet{
		seen:  make(map[string]struct{}),
		limit: limit,
	}
}

// Claim inserts url if it is new and the cap still has room.
func (v *visitedSet) Claim(url string) claimResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[url]; ok {
		return claimSeen
	}
	if len(v.seen) >= v.limit {
		return claimCapReached
	}
	v.seen[url] = struct{}{}
	return claimNew
}

// Seen reports whether url has already been claimed.
func (v *visitedSet) Seen(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[url]
	return ok
}

// Full reports whether the page cap has been reached.
func (v *visitedSet) Full() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen) >= v.limit
}

func (v *visitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

// pauseController abstracts how the crawler backs off after a failed fetch.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
