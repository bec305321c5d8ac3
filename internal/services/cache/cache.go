package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/openrouter-tgbot-go/internal/config"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service caches completion answers keyed by question and model. Useful for
// repeated one-shot questions; disabled by default because answers depend on
// conversation context.
type Service interface {
	Get(question, model string) (string, bool)
	Set(question, model, answer string)
}

type entry struct {
	answer    string
	createdAt time.Time
}

// Cache implements the answer cache on go-cache.
type Cache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	maxSize int
}

// NewCache creates a new cache service.
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

// Get retrieves a cached answer.
func (c *Cache) Get(question, model string) (string, bool) {
	if !c.enabled {
		return "", false
	}

	if val, found := c.cache.Get(generateKey(question, model)); found {
		e := val.(*entry)
		c.logger.WithFields(logrus.Fields{
			"model": model,
			"age":   time.Since(e.createdAt),
		}).Debug("Answer cache hit")
		return e.answer, true
	}
	return "", false
}

// Set stores an answer.
func (c *Cache) Set(question, model, answer string) {
	if !c.enabled {
		return
	}

	if c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("Answer cache size limit reached, dropping expired entries")
		c.cache.DeleteExpired()
	}

	c.cache.SetDefault(generateKey(question, model), &entry{
		answer:    answer,
		createdAt: time.Now(),
	})
}

func generateKey(question, model string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", model, question)))
	return hex.EncodeToString(hash[:])
}
