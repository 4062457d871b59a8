package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/sirupsen/logrus"
)

// DateLayout formats the calendar-day half of a quota key. Lexical order of
// formatted keys matches chronological order.
const DateLayout = "2006-01-02"

// DateKey returns the calendar day of now in loc.
func DateKey(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(DateLayout)
}

// Admission is the outcome of one admit call.
type Admission struct {
	Allowed bool
	Count   int
	Limit   int
	Date    string
}

func (a Admission) Remaining() int {
	if a.Count >= a.Limit {
		return 0
	}
	return a.Limit - a.Count
}

// Ledger tracks per-caller, per-day request counts.
type Ledger interface {
	// Admit checks the caller's count for the day of now and increments it
	// when below the limit. Check and increment are atomic per key.
	Admit(ctx context.Context, callerID string, now time.Time) (Admission, error)
	// Usage returns the caller's count for the day of now, 0 when absent.
	Usage(ctx context.Context, callerID string, now time.Time) (int, error)
	// Evict drops entries for days before the day of now.
	Evict(ctx context.Context, now time.Time) (int, error)
	// ActiveCallers counts callers with an entry for the day of now.
	ActiveCallers(ctx context.Context, now time.Time) (int, error)
	Limit() int
	Location() *time.Location
	Close() error
}

// Manager selects the configured ledger backend and runs periodic eviction.
type Manager struct {
	ledger Ledger
	logger *logrus.Logger
}

// NewManager creates a ledger manager for cfg.Storage.Type
func NewManager(cfg *config.Config, logger *logrus.Logger) (*Manager, error) {
	loc, err := cfg.Quota.Location()
	if err != nil {
		return nil, err
	}

	var ledger Ledger
	switch cfg.Storage.Type {
	case config.StorageRedis:
		redisLedger, err := NewRedisLedger(cfg.Storage.Redis, cfg.Quota.DailyLimit, loc)
		if err != nil {
			return nil, err
		}
		ledger = redisLedger
	case config.StorageMemory:
		ledger = NewMemoryLedger(cfg.Quota.DailyLimit, loc)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	logger.WithFields(logrus.Fields{
		"backend":     cfg.Storage.Type,
		"daily_limit": cfg.Quota.DailyLimit,
		"timezone":    loc.String(),
	}).Info("Quota ledger initialized")

	return &Manager{ledger: ledger, logger: logger}, nil
}

// NewManagerWithLedger wraps an existing ledger.
func NewManagerWithLedger(ledger Ledger, logger *logrus.Logger) *Manager {
	return &Manager{ledger: ledger, logger: logger}
}

// StartCleanup evicts stale days every interval until ctx is done. observe,
// when non-nil, receives the active caller count after each pass.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration, observe func(active int)) {
	if interval <= 0 {
		m.logger.Warn("Quota cleanup disabled: non-positive interval")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup(ctx, time.Now(), observe)
		}
	}
}

func (m *Manager) cleanup(ctx context.Context, now time.Time, observe func(active int)) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := m.ledger.Evict(ctx, now)
	if err != nil {
		m.logger.WithError(err).Error("Failed to evict stale quota entries")
		return
	}
	if removed > 0 {
		m.logger.WithField("removed", removed).Debug("Evicted stale quota entries")
	}

	if observe == nil {
		return
	}
	active, err := m.ledger.ActiveCallers(ctx, now)
	if err != nil {
		m.logger.WithError(err).Warn("Failed to count active callers")
		return
	}
	observe(active)
}

// Delegate methods to underlying ledger

func (m *Manager) Admit(ctx context.Context, callerID string, now time.Time) (Admission, error) {
	return m.ledger.Admit(ctx, callerID, now)
}

func (m *Manager) Usage(ctx context.Context, callerID string, now time.Time) (int, error) {
	return m.ledger.Usage(ctx, callerID, now)
}

func (m *Manager) Evict(ctx context.Context, now time.Time) (int, error) {
	return m.ledger.Evict(ctx, now)
}

func (m *Manager) ActiveCallers(ctx context.Context, now time.Time) (int, error) {
	return m.ledger.ActiveCallers(ctx, now)
}

func (m *Manager) Limit() int {
	return m.ledger.Limit()
}

func (m *Manager) Location() *time.Location {
	return m.ledger.Location()
}

func (m *Manager) Close() error {
	return m.ledger.Close()
}
