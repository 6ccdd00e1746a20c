package gateway

import (
	"errors"
	"log"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"flowstate/internal/auth"
)

const (
	identityKey = "identity"
	tokenKey    = "token"
)

// RequireAuth resolves the bearer token and stores the caller identity.
func RequireAuth(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
			return
		}
		id, err := svc.Verify(c.Request.Context(), token)
		if errors.Is(err, auth.ErrUnauthorized) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		if err != nil {
			log.Printf("[warn] verify token: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		c.Set(identityKey, id)
		c.Set(tokenKey, token)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func identity(c *gin.Context) auth.Identity {
	id, _ := c.MustGet(identityKey).(auth.Identity)
	return id
}

// limiterIdle is how long a client's bucket is kept after its last request.
const limiterIdle = 10 * time.Minute

// RateLimiter throttles each client IP with its own token bucket.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	clients := newClientLimiters(r, b, limiterIdle, time.Now)
	return func(c *gin.Context) {
		if !clients.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

type clientLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}

// clientLimiters keeps one bucket per client and drops buckets idle for
// longer than idle. idle should cover a full refill of the bucket.
type clientLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

func newClientLimiters(r rate.Limit, b int, idle time.Duration, now func() time.Time) *clientLimiters {
	return &clientLimiters{
		limit:     r,
		burst:     b,
		idle:      idle,
		now:       now,
		clients:   make(map[string]*clientLimiter),
		lastSweep: now(),
	}
}

func (l *clientLimiters) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		for key, cl := range l.clients {
			if now.Sub(cl.seen) >= l.idle {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = cl
	}
	cl.seen = now
	return cl.limiter.AllowN(now, 1)
}

func (l *clientLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// RecoveryWithLog turns a handler panic into a 500 and logs the stack.
func RecoveryWithLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[warn] panic in %s %s: %v\n%s", c.Request.Method, c.FullPath(), err, debug.Stack())
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
