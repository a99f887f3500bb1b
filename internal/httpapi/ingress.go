package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Per-client ingress limiting. Disabled while ingressRPS is zero.
var (
	ingressRPS   float64
	ingressBurst int
)

// SetIngressLimit sets the per-client request rate; rps <= 0 disables it.
// A burst below one defaults to the ceiling of rps.
func SetIngressLimit(rps float64, burst int) {
	if rps < 0 {
		rps = 0
	}
	if burst < 1 {
		burst = max(int(rps+0.999), 1)
	}
	ingressRPS, ingressBurst = rps, burst
}

const ingressIdle = 10 * time.Minute

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// ingressLimiter keeps one token bucket per client address.
type ingressLimiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func newIngressLimiter(rps float64, burst int) *ingressLimiter {
	return &ingressLimiter{rps: rate.Limit(rps), burst: burst, clients: make(map[string]*clientLimiter)}
}

func (l *ingressLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= 1024 {
			for k, v := range l.clients {
				if now.Sub(v.seen) > ingressIdle {
					delete(l.clients, k)
				}
			}
		}
		c = &clientLimiter{lim: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1)
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// middleware rejects clients over their rate with 429.
func (l *ingressLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientKey(r), time.Now()) {
			IncrementBackpressure("ingress")
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
