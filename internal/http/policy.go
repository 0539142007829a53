package httpx

import (
	"net/http"
	"time"
)

type access int

const (
	public access = iota
	member
	operator
)

// policy is the protection applied to one route: who may call it and how
// often.
type policy struct {
	name   string
	access access
	limit  int
	window time.Duration
	key    func(*http.Request) string
}

var (
	readPolicy     = policy{name: "read", access: member, limit: 240, window: time.Minute, key: limitByUser}
	writePolicy    = policy{name: "write", access: operator, limit: 60, window: time.Minute, key: limitByUser}
	streamPolicy   = policy{name: "stream", access: member, limit: 30, window: 30 * time.Second, key: limitByUser}
	webhookPolicy  = policy{name: "webhook", access: public, limit: 120, window: time.Minute, key: limitByProject}
	callbackPolicy = policy{name: "builder", access: public, limit: 600, window: time.Minute, key: limitByIP}
)

// guard authenticates per p.access, then charges the caller's rate budget.
func (r *Router) guard(p policy, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if p.access != public {
			info, err := r.authenticate(req)
			if err != nil {
				r.logger.Warn("request not authenticated", "path", req.URL.Path, "error", err)
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if meta := requestMetaFrom(req.Context()); meta != nil {
				meta.userID, meta.role = info.UserID, string(info.Role)
			}
			req = req.WithContext(withAuthInfo(req.Context(), info))
			if p.access == operator && !info.Role.CanMutate() {
				r.logger.Warn("mutation forbidden", "path", req.URL.Path, "user_id", info.UserID, "role", info.Role)
				writeError(w, http.StatusForbidden, "role "+string(info.Role)+" may not modify deployments")
				return
			}
		}
		if r.limiter != nil && p.limit > 0 {
			key := p.key(req)
			decision := r.limiter.Allow(req.Context(), key, p.limit, p.window)
			decision.writeHeaders(w, p.limit)
			if !decision.allowed {
				r.metrics.recordRateLimitHit(p.name, keyKind(key))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next(w, req)
	}
}
