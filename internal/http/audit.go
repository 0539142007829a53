package httpx

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id echoed on every response.
const RequestIDHeader = "X-Request-ID"

// requestMeta is filled in by inner middleware and read back by audit.
type requestMeta struct {
	id     string
	userID string
	role   string
}

type metaKey struct{}

func requestMetaFrom(ctx context.Context) *requestMeta {
	meta, _ := ctx.Value(metaKey{}).(*requestMeta)
	return meta
}

// audit tags the request with an id, then records metrics and an access log
// line once the handler returns.
func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		meta := &requestMeta{id: strings.TrimSpace(req.Header.Get(RequestIDHeader))}
		if meta.id == "" {
			meta.id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, meta.id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, req.WithContext(context.WithValue(req.Context(), metaKey{}, meta)))
		elapsed := time.Since(start)

		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		r.metrics.recordRequest(req.Method, route, rec.status, elapsed)

		attrs := []any{
			"request_id", meta.id,
			"method", req.Method,
			"route", route,
			"path", req.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", elapsed.Milliseconds(),
			"ip", clientIP(req),
			"actor", actorOf(req, meta),
		}
		if meta.userID != "" {
			attrs = append(attrs, "user_id", meta.userID, "role", meta.role)
		}
		r.logger.Log(req.Context(), levelFor(rec.status), "http_request", attrs...)
	}
}

func actorOf(req *http.Request, meta *requestMeta) string {
	switch {
	case meta.userID != "":
		return "user"
	case strings.HasPrefix(req.URL.Path, "/webhooks/"):
		return "webhook"
	case strings.HasPrefix(req.URL.Path, "/builder/"):
		return "builder"
	}
	return "anonymous"
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// statusRecorder captures the response status and size. It forwards Flush
// for SSE and Hijack for websocket upgrades.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if !rec.written {
		rec.status, rec.written = code, true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.written = true
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T does not support hijacking", rec.ResponseWriter)
	}
	rec.status, rec.written = http.StatusSwitchingProtocols, true
	return h.Hijack()
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		return host
	}
	return req.RemoteAddr
}
