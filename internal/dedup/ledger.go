// Package dedup remembers which change notifications were already applied.
package dedup

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Key identifies one change notification by its content-log entry id.
type Key int64

func (k Key) String() string { return "event:" + strconv.FormatInt(int64(k), 10) }

// Valid reports whether the key came from a real log entry.
func (k Key) Valid() bool { return k > 0 }

type Ledger struct {
	mu        sync.Mutex
	processed map[Key]struct{}
	interval  time.Duration
}

func NewLedger(clearInterval time.Duration) *Ledger {
	return &Ledger{
		processed: make(map[Key]struct{}),
		interval:  clearInterval,
	}
}

func (l *Ledger) HasProcessed(key Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.processed[key]
	return ok
}

func (l *Ledger) MarkProcessed(key Key) {
	l.mu.Lock()
	l.processed[key] = struct{}{}
	l.mu.Unlock()
}

// CheckAndMark marks key and reports whether it was new.
func (l *Ledger) CheckAndMark(key Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.processed[key]; ok {
		return false
	}
	l.processed[key] = struct{}{}
	return true
}

func (l *Ledger) Clear() {
	l.mu.Lock()
	l.processed = make(map[Key]struct{})
	l.mu.Unlock()
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.processed)
}

// Run clears the ledger every interval until ctx is done.
func (l *Ledger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Clear()
		}
	}
}
