package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/deploy"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/logs"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/pipeline"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/project"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/webhook"
)

// Config holds the router collaborators.
type Config struct {
	Logger      *slog.Logger
	Projects    project.Service
	Deployments *deploy.Service
	Webhooks    *webhook.Ingestor
	Logs        *logs.Service
	// Builder receives executor callbacks. Nil disables /builder/callback.
	Builder   *pipeline.BuilderExecutor
	Limiter   RateLimiter
	JWTSecret string
	// Metrics registers the HTTP collectors; Gatherer backs /metrics.
	Metrics  prometheus.Registerer
	Gatherer prometheus.Gatherer
	DBHealth func(context.Context) error
}

// Router serves the deployment API.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	projects    project.Service
	deployments *deploy.Service
	webhooks    *webhook.Ingestor
	logs        *logs.Service
	builder     *pipeline.BuilderExecutor
	upgrader    websocket.Upgrader
	limiter     RateLimiter
	jwtSecret   string
	metrics     *httpMetrics
	gatherer    prometheus.Gatherer
	dbHealth    func(context.Context) error
}

// NewRouter builds the route table. A nil Limiter gets an in-memory one.
func NewRouter(cfg Config) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      cfg.Logger,
		projects:    cfg.Projects,
		deployments: cfg.Deployments,
		webhooks:    cfg.Webhooks,
		logs:        cfg.Logs,
		builder:     cfg.Builder,
		limiter:     cfg.Limiter,
		jwtSecret:   cfg.JWTSecret,
		metrics:     newHTTPMetrics(cfg.Metrics),
		gatherer:    cfg.Gatherer,
		dbHealth:    cfg.DBHealth,
	}
	r.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.gatherer == nil {
		r.gatherer = prometheus.DefaultGatherer
	}

	routes := []struct {
		pattern string
		policy  *policy
		handler http.HandlerFunc
	}{
		{"GET /healthz", nil, r.handleHealthz},
		{"GET /metrics", nil, promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}).ServeHTTP},

		{"POST /webhooks/{projectID}", &webhookPolicy, r.handleWebhook},
		{"POST /webhooks/{projectID}/secret", &writePolicy, r.handleWebhookSecret},

		{"GET /projects", &readPolicy, r.handleListProjects},
		{"GET /projects/{projectID}/deployments", &readPolicy, r.handleListDeployments},
		{"POST /projects/{projectID}/deployments", &writePolicy, r.handleTriggerDeployment},
		{"GET /deployments/{id}", &readPolicy, r.handleGetDeployment},
		{"POST /deployments/{id}/retry", &writePolicy, r.handleRetryDeployment},
		{"POST /deployments/{id}/cancel", &writePolicy, r.handleCancelDeployment},

		{"GET /queues", &readPolicy, r.handleQueues},
		{"GET /queues/{projectID}", &readPolicy, r.handleQueue},
		{"PUT /queues/{projectID}", &writePolicy, r.handleRefreshQueue},
		{"DELETE /queues/{projectID}/pending", &writePolicy, r.handleCancelPending},

		{"POST /builder/callback", &callbackPolicy, r.handleBuilderCallback},

		{"GET /ws/logs", &streamPolicy, r.handleLogsWS},
		{"GET /events/logs", &streamPolicy, r.handleLogsSSE},
	}
	for _, rt := range routes {
		h := rt.handler
		if rt.policy != nil {
			h = r.guard(*rt.policy, h)
		}
		r.mux.HandleFunc(rt.pattern, r.audit(h))
	}
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close stops the rate limiter.
func (r *Router) Close() {
	r.limiter.Close()
}

// pathID parses a positive numeric path parameter.
func pathID(req *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(req.PathValue(name)), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
