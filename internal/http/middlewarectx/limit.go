package middlewarectx

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/quran-entitlements/internal/http/response"
)

// limiterIdleTTL через столько без запросов лимитер вызывающего удаляется.
const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// limiters отдельный rate.Limiter на каждого вызывающего. Простаивающие
// записи вычищаются не чаще раза в idle.
type limiters struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
	lastSweep time.Time
	byKey     map[string]*limiterEntry
}

func newLimiters(rps float64, burst int) *limiters {
	return &limiters{
		rps:   rate.Limit(rps),
		burst: burst,
		idle:  limiterIdleTTL,
		now:   time.Now,
		byKey: make(map[string]*limiterEntry),
	}
}

func (l *limiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	e, ok := l.byKey[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now
	return e.lim
}

func (l *limiters) sweep(now time.Time) {
	for key, e := range l.byKey {
		if now.Sub(e.lastSeen) >= l.idle {
			delete(l.byKey, key)
		}
	}
	l.lastSweep = now
}

func (l *limiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}

func callerKey(r *http.Request) string {
	if id, ok := IdentityFrom(r.Context()); ok {
		return "id:" + id.ExternalID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimitMiddleware ограничивает частоту запросов одного вызывающего: по
// личности, если она уже в контексте, иначе по адресу.
func RateLimitMiddleware(log *slog.Logger, rps float64, burst int) func(http.Handler) http.Handler {
	l := newLimiters(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := callerKey(r)
			if !l.get(key).Allow() {
				log.Warn("too many requests", slog.String("caller", key))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
