package api

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/albapepper/scoracle-settlement/internal/api/respond"
)

// --------------------------------------------------------------------------
// Timing + access log
// --------------------------------------------------------------------------

// statusWriter records the status code and stamps X-Process-Time just
// before the headers go out.
type statusWriter struct {
	http.ResponseWriter
	start  time.Time
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	if sw.status == 0 {
		sw.status = status
		ms := float64(time.Since(sw.start).Microseconds()) / 1000
		sw.Header().Set("X-Process-Time", strconv.FormatFloat(ms, 'f', 2, 64)+"ms")
	}
	sw.ResponseWriter.WriteHeader(status)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.WriteHeader(http.StatusOK)
	}
	return sw.ResponseWriter.Write(b)
}

// RequestLogger stamps X-Process-Time on every response and logs one line
// per request. 5xx answers log at Warn, everything else at Debug.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, start: time.Now()}
			next.ServeHTTP(sw, r)

			level := slog.LevelDebug
			if sw.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(sw.start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

// --------------------------------------------------------------------------
// Per-IP rate limiting
// --------------------------------------------------------------------------

// clientIdle is how long an IP's bucket is kept after its last request.
const clientIdle = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	limit     rate.Limit
	burst     int
	lastPrune time.Time
}

func newIPLimiter(requestsPerWindow int, window time.Duration) *ipLimiter {
	burst := requestsPerWindow / 2
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(float64(requestsPerWindow) / window.Seconds()),
		burst:   burst,
	}
}

// reserve takes a token for ip. A positive delay means the caller is over
// its budget and should retry after that long.
func (l *ipLimiter) reserve(ip string, now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > clientIdle {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > clientIdle {
				delete(l.clients, k)
			}
		}
		l.lastPrune = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now

	res := c.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay
	}
	return 0
}

// RateLimitMiddleware limits each client IP to requestsPerWindow per window.
func RateLimitMiddleware(requestsPerWindow int, window time.Duration) func(http.Handler) http.Handler {
	limiter := newIPLimiter(requestsPerWindow, window)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if delay := limiter.reserve(ip, time.Now()); delay > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				respond.Error(w, http.StatusTooManyRequests, respond.CodeRateLimited, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
