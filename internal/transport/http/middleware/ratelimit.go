package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const errTooManyRequests = "Too many requests"

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit applies a token-bucket limit per client IP. Entries idle for ten
// minutes are evicted so the map does not grow with churn.
func RateLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*ipLimiter)
	)

	go func() {
		for range time.Tick(time.Minute) {
			mu.Lock()
			for ip, entry := range limiters {
				if time.Since(entry.lastSeen) > 10*time.Minute {
					delete(limiters, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := clientIP(c)

		mu.Lock()
		entry, ok := limiters[ip]
		if !ok {
			entry = &ipLimiter{limiter: rate.NewLimiter(rps, burst)}
			limiters[ip] = entry
		}
		entry.lastSeen = time.Now()
		allowed := entry.limiter.Allow()
		mu.Unlock()

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": errTooManyRequests})
			return
		}
		c.Next()
	}
}

func clientIP(c *gin.Context) string {
	// gin already honors trusted proxy headers.
	ip := c.ClientIP()
	if ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}
