package main

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wrale/oauth2-device-login/cmd/device-authserver/handlers/common"
	"github.com/wrale/oauth2-device-login/internal/authserver"
)

// limiterIdle is how long an unused client limiter is kept
const limiterIdle = 10 * time.Minute

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter applies a token bucket per client_id to device
// authorization requests
type clientLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientEntry
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	return &clientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*clientEntry),
		now:     time.Now,
	}
}

func (l *clientLimiter) allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdle {
		for id, e := range l.clients {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(l.clients, id)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.clients[clientID]
	if !ok {
		e = &clientEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// middleware rejects requests over the client's budget with 429 slow_down.
// Requests whose form cannot be parsed are passed on for the handler to reject.
func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err == nil {
			if !l.allow(r.PostForm.Get("client_id")) {
				w.Header().Set("Retry-After", "1")
				common.WriteErrorStatus(w, http.StatusTooManyRequests,
					authserver.ErrorCodeSlowDown, "Too many device authorization requests")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
