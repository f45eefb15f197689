package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit allows limit requests per window for each client IP, with a burst
// of the full window. Idle clients are forgotten after limiterIdleTTL.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	every := rate.Every(per / time.Duration(limit))

	var mu sync.Mutex
	visitors := make(map[string]*visitor)
	lastSweep := time.Now()

	get := func(ip string, now time.Time) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if now.Sub(lastSweep) > limiterIdleTTL {
			for key, v := range visitors {
				if now.Sub(v.lastSeen) > limiterIdleTTL {
					delete(visitors, key)
				}
			}
			lastSweep = now
		}
		v, ok := visitors[ip]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(every, limit)}
			visitors[ip] = v
		}
		v.lastSeen = now
		return v.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !get(clientIPForRateLimit(r), time.Now()).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests."})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
