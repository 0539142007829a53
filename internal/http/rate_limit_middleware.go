package httpx

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	remaining int
	reset     time.Time
}

func allowAll() rateDecision {
	return rateDecision{allowed: true, remaining: -1}
}

// decide turns a hit count inside a window into a decision.
func decide(count, limit int, reset time.Time) rateDecision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return rateDecision{allowed: count <= limit, remaining: remaining, reset: reset}
}

func (d rateDecision) writeHeaders(w http.ResponseWriter, limit int) {
	if d.remaining < 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
	if !d.reset.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.reset.Unix(), 10))
	}
	if !d.allowed {
		retry := int(time.Until(d.reset).Seconds()) + 1
		if retry < 1 {
			retry = 1
		}
		h.Set("Retry-After", strconv.Itoa(retry))
	}
}

type rateWindow struct {
	hits    int
	resetAt time.Time
}

type memoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryRateLimiter returns a process-local limiter. Expired windows are
// swept in the background until Close.
func NewMemoryRateLimiter() RateLimiter {
	rl := &memoryRateLimiter{
		windows: make(map[string]*rateWindow),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go func() {
		ticker := time.NewTicker(rateLimiterSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rl.stop:
				return
			case <-ticker.C:
				rl.sweep(rl.now())
			}
		}
	}()
	return rl
}

func (rl *memoryRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return allowAll()
	}
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(window)}
		rl.windows[key] = w
	}
	if w.hits >= limit {
		return decide(w.hits+1, limit, w.resetAt)
	}
	w.hits++
	return decide(w.hits, limit, w.resetAt)
}

func (rl *memoryRateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

func limitByUser(req *http.Request) string {
	if info, ok := authInfoFromContext(req.Context()); ok && info.UserID != "" {
		return "user:" + info.UserID
	}
	return limitByIP(req)
}

func limitByProject(req *http.Request) string {
	if id := strings.TrimSpace(req.PathValue("projectID")); id != "" {
		return "project:" + id
	}
	return limitByIP(req)
}

func limitByIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil || host == "" {
		host = req.RemoteAddr
	}
	return "ip:" + host
}

// keyKind is the metric label for a limiter key: user, project or ip.
func keyKind(key string) string {
	kind, _, ok := strings.Cut(key, ":")
	if !ok || kind == "" {
		return "unknown"
	}
	return kind
}
