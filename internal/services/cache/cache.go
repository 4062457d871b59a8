package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/ai-text-analyzer-go/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service defines cache operations
type Service interface {
	Get(ctx context.Context, prompt string) (*models.CacheEntry, bool)
	Set(ctx context.Context, prompt, answer, model string) error
	Clear(ctx context.Context) error
	Len() int
}

// Cache stores answers keyed by the full prompt, so two requests share an
// entry only when text, question, URL and truncated page context all match.
type Cache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	maxSize int
}

// NewCache creates a new cache service
func NewCache(cfg *config.CacheConfig, logger *logrus.Logger) Service {
	if !cfg.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled: true,
		cache:   cache.New(cfg.TTL, cfg.TTL*2),
		logger:  logger,
		maxSize: cfg.MaxSize,
	}
}

// Get retrieves a cached answer
func (c *Cache) Get(ctx context.Context, prompt string) (*models.CacheEntry, bool) {
	if !c.enabled {
		return nil, false
	}

	key := generateKey(prompt)
	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}

	entry := val.(*models.CacheEntry)
	c.logger.WithFields(logrus.Fields{
		"key":   key[:12],
		"model": entry.Model,
		"age":   time.Since(entry.CreatedAt),
	}).Debug("Cache hit")
	return entry, true
}

// Set stores an answer in cache
func (c *Cache) Set(ctx context.Context, prompt, answer, model string) error {
	if !c.enabled {
		return nil
	}

	if c.maxSize > 0 && c.cache.ItemCount() >= c.maxSize {
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxSize {
			c.logger.Warn("Cache size limit reached, flushing")
			c.cache.Flush()
		}
	}

	key := generateKey(prompt)
	c.cache.SetDefault(key, &models.CacheEntry{
		Answer:    answer,
		Model:     model,
		CreatedAt: time.Now(),
	})
	c.logger.WithFields(logrus.Fields{
		"key":   key[:12],
		"model": model,
	}).Debug("Answer cached")

	return nil
}

// Clear removes all cached entries
func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	c.cache.Flush()
	c.logger.Info("Cache cleared")
	return nil
}

func (c *Cache) Len() int {
	if !c.enabled {
		return 0
	}
	return c.cache.ItemCount()
}

func generateKey(prompt string) string {
	hash := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(hash[:])
}
