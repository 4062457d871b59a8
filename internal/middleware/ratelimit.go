package middleware

import (
	"sync"
	"time"

	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultCleanupInterval = 10 * time.Minute
	// idleTTL is how long a caller's bucket survives without requests. A
	// bucket idle this long has refilled, so dropping it loses nothing.
	idleTTL = time.Hour
)

// RateLimiter throttles short bursts per caller. It never touches the
// daily quota.
type RateLimiter interface {
	Allow(callerID string) bool
	Reset(callerID string)
	Stop()
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// CallerRateLimiter implements per-caller rate limiting
type CallerRateLimiter struct {
	enabled  bool
	limiters map[string]*callerLimiter
	mu       sync.Mutex
	rpm      int
	burst    int
	logger   *logrus.Logger
	stop     chan struct{}
	once     sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.RateLimitConfig, logger *logrus.Logger) RateLimiter {
	if !cfg.Enabled {
		return &CallerRateLimiter{enabled: false}
	}

	rl := &CallerRateLimiter{
		enabled:  true,
		limiters: make(map[string]*callerLimiter),
		rpm:      cfg.RequestsPerMinute,
		burst:    cfg.Burst,
		logger:   logger,
		stop:     make(chan struct{}),
	}

	go rl.cleanup(defaultCleanupInterval)

	return rl
}

// Allow checks if a caller is allowed to make a request
func (r *CallerRateLimiter) Allow(callerID string) bool {
	if !r.enabled {
		return true
	}

	allowed := r.getLimiter(callerID, time.Now()).Allow()
	if !allowed {
		r.logger.WithField("caller_id", callerID).Warn("Burst limit exceeded")
	}

	return allowed
}

// Reset resets the rate limiter for a caller
func (r *CallerRateLimiter) Reset(callerID string) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.limiters, callerID)
	r.mu.Unlock()
}

func (r *CallerRateLimiter) Stop() {
	if !r.enabled {
		return
	}
	r.once.Do(func() { close(r.stop) })
}

// Len returns the number of tracked callers.
func (r *CallerRateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

func (r *CallerRateLimiter) getLimiter(callerID string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.limiters[callerID]; exists {
		entry.lastSeen = now
		return entry.limiter
	}

	// Rate per second = RPM / 60
	rps := float64(r.rpm) / 60.0
	entry := &callerLimiter{
		limiter:  rate.NewLimiter(rate.Limit(rps), r.burst),
		lastSeen: now,
	}
	r.limiters[callerID] = entry

	return entry.limiter
}

func (r *CallerRateLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			if removed := r.evictIdle(now); removed > 0 {
				r.logger.WithField("removed", removed).Debug("Evicted idle rate limiters")
			}
		}
	}
}

func (r *CallerRateLimiter) evictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, entry := range r.limiters {
		if now.Sub(entry.lastSeen) >= idleTTL {
			delete(r.limiters, id)
			removed++
		}
	}
	return removed
}
