package middleware

import (
	"sync"
	"time"

	"github.com/openrouter-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter throttles request bursts per user. This is flood protection,
// independent of the daily/monthly quotas the store enforces.
type RateLimiter interface {
	Allow(userID int64) bool
}

// UserRateLimiter implements per-user token-bucket rate limiting.
type UserRateLimiter struct {
	enabled  bool
	limiters map[int64]*rate.Limiter
	mu       sync.RWMutex
	rpm      int
	burst    int
	logger   *logrus.Logger
}

// NewRateLimiter creates a new rate limiter from config.
func NewRateLimiter(cfg *config.RateLimitConfig, logger *logrus.Logger) RateLimiter {
	if !cfg.Enabled {
		return &UserRateLimiter{enabled: false}
	}

	rl := &UserRateLimiter{
		enabled:  true,
		limiters: make(map[int64]*rate.Limiter),
		rpm:      cfg.RequestsPerMinute,
		burst:    cfg.Burst,
		logger:   logger,
	}

	go rl.cleanup()

	return rl
}

// Allow checks if a user may make a request right now.
func (r *UserRateLimiter) Allow(userID int64) bool {
	if !r.enabled {
		return true
	}

	allowed := r.getLimiter(userID).Allow()
	if !allowed {
		r.logger.WithField("user_id", userID).Warn("Flood limit exceeded")
	}
	return allowed
}

func (r *UserRateLimiter) getLimiter(userID int64) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[userID]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, exists := r.limiters[userID]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(float64(r.rpm)/60.0), r.burst)
	r.limiters[userID] = limiter
	return limiter
}

// cleanup bounds the limiter map; idle buckets refill anyway, so dropping
// them all is harmless.
func (r *UserRateLimiter) cleanup() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		r.mu.Lock()
		if len(r.limiters) > 10000 {
			r.logger.Warn("Rate limiter map size exceeded threshold, clearing")
			r.limiters = make(map[int64]*rate.Limiter)
		}
		r.mu.Unlock()
	}
}
