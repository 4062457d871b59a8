package quota

import (
	"context"
	"sync"
	"time"

	"github.com/ai-text-analyzer-go/internal/models"
)

// MemoryLedger keeps counts in a process-local table. Entries are lost on
// restart. Keys for earlier days are dropped as soon as a later day is seen.
type MemoryLedger struct {
	mu      sync.Mutex
	limit   int
	loc     *time.Location
	counts  map[models.QuotaKey]int
	current string
}

func NewMemoryLedger(limit int, loc *time.Location) *MemoryLedger {
	if loc == nil {
		loc = time.Local
	}
	return &MemoryLedger{
		limit:  limit,
		loc:    loc,
		counts: make(map[models.QuotaKey]int),
	}
}

func (l *MemoryLedger) Admit(_ context.Context, callerID string, now time.Time) (Admission, error) {
	date := DateKey(now, l.loc)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover(date)

	key := models.QuotaKey{CallerID: callerID, Date: date}
	count := l.counts[key]
	if count >= l.limit {
		return Admission{Allowed: false, Count: count, Limit: l.limit, Date: date}, nil
	}

	count++
	l.counts[key] = count
	return Admission{Allowed: true, Count: count, Limit: l.limit, Date: date}, nil
}

func (l *MemoryLedger) Usage(_ context.Context, callerID string, now time.Time) (int, error) {
	date := DateKey(now, l.loc)

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[models.QuotaKey{CallerID: callerID, Date: date}], nil
}

func (l *MemoryLedger) Evict(_ context.Context, now time.Time) (int, error) {
	date := DateKey(now, l.loc)

	l.mu.Lock()
	defer l.mu.Unlock()

	if date > l.current {
		l.current = date
	}
	return l.evictBefore(date), nil
}

func (l *MemoryLedger) ActiveCallers(_ context.Context, now time.Time) (int, error) {
	date := DateKey(now, l.loc)

	l.mu.Lock()
	defer l.mu.Unlock()

	active := 0
	for key := range l.counts {
		if key.Date == date {
			active++
		}
	}
	return active, nil
}

// Len returns the number of stored entries across all days.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counts)
}

func (l *MemoryLedger) Limit() int {
	return l.limit
}

func (l *MemoryLedger) Location() *time.Location {
	return l.loc
}

func (l *MemoryLedger) Close() error {
	return nil
}

// rollover must be called with mu held.
func (l *MemoryLedger) rollover(date string) {
	if date <= l.current {
		return
	}
	l.current = date
	l.evictBefore(date)
}

// evictBefore must be called with mu held.
func (l *MemoryLedger) evictBefore(date string) int {
	removed := 0
	for key := range l.counts {
		if key.Date < date {
			delete(l.counts, key)
			removed++
		}
	}
	return removed
}
