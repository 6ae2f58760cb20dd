package gin

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
	x402http "github.com/Pratik-Shirodkar/RecoverAI/http"
)

// visitorIdleTTL is how long an idle caller's limiter is retained
const visitorIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// identityLimiter keeps one token bucket per wallet, or per client IP for anonymous callers
type identityLimiter struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	visitors map[string]*visitor
	now      func() time.Time
}

func newIdentityLimiter(rps rate.Limit, burst int, now func() time.Time) *identityLimiter {
	return &identityLimiter{
		rps:      rps,
		burst:    burst,
		visitors: make(map[string]*visitor),
		now:      now,
	}
}

func (l *identityLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[key]
	if !ok {
		l.prune(now)
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// prune drops idle visitors. Callers hold l.mu.
func (l *identityLimiter) prune(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(l.visitors, key)
		}
	}
}

func (l *identityLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(x402http.IdentityHeader)
		if recoverai.Identity(key).IsAnonymous() {
			key = "ip:" + c.ClientIP()
		}
		if !l.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, recoverai.NewPaymentError(
				recoverai.ErrCodeRateLimited, "too many requests", nil))
			return
		}
		c.Next()
	}
}
