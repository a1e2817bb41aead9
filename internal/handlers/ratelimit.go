package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yishak-cs/storefront-recs/internal/logger"
)

// clientLimiter keeps one token bucket per client IP
type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
	idle    time.Duration
	log     *logger.Logger
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(limit rate.Limit, burst int, log *logger.Logger) *clientLimiter {
	return &clientLimiter{
		limit:   limit,
		burst:   burst,
		buckets: make(map[string]*bucket),
		idle:    10 * time.Minute,
		log:     log,
	}
}

func (l *clientLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		// sweep idle clients whenever a new one shows up
		for k, old := range l.buckets {
			if now.Sub(old.lastSeen) > l.idle {
				delete(l.buckets, k)
			}
		}
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// middleware rejects a client with 429 once its bucket is empty
func (l *clientLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !l.allow(key, time.Now()) {
			l.log.Warn("Request rejected by rate limiter", "client", key, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
