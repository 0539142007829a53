package queue

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry owns one ProjectQueue per project for the life of the process.
// Queues are created on first use.
type Registry struct {
	base    context.Context
	handler Handler
	logger  *slog.Logger
	metrics *metrics

	mu     sync.Mutex
	queues map[int64]*ProjectQueue
}

// NewRegistry constructs a Registry. Every job context derives from base,
// which should outlive individual requests. reg may be nil to skip metrics.
func NewRegistry(base context.Context, handler Handler, logger *slog.Logger, reg prometheus.Registerer) *Registry {
	if base == nil {
		base = context.Background()
	}
	return &Registry{
		base:    base,
		handler: handler,
		logger:  logger.With("component", "queue"),
		metrics: newMetrics(reg),
		queues:  make(map[int64]*ProjectQueue),
	}
}

// Queue returns the queue of a project, creating it with maxConcurrent when
// absent. maxConcurrent is ignored for existing queues.
func (r *Registry) Queue(projectID int64, maxConcurrent int) *ProjectQueue {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[projectID]
	if !ok {
		q = newProjectQueue(r.base, projectID, maxConcurrent, r.handler, r.logger, r.metrics)
		r.queues[projectID] = q
		r.logger.Info("project queue created", "project_id", projectID, "max_concurrent", q.maxConcurrent)
	}
	return q
}

func (r *Registry) lookup(projectID int64) (*ProjectQueue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[projectID]
	return q, ok
}

// Enqueue adds a deployment to its project queue.
func (r *Registry) Enqueue(ctx context.Context, projectID int64, maxConcurrent int, deploymentID int64) error {
	return r.Queue(projectID, maxConcurrent).Enqueue(ctx, deploymentID)
}

// Refresh resizes a live queue, creating it when absent.
func (r *Registry) Refresh(projectID int64, maxConcurrent int) Status {
	q := r.Queue(projectID, maxConcurrent)
	q.Resize(maxConcurrent)
	r.logger.Info("project queue refreshed", "project_id", projectID, "max_concurrent", clamp(maxConcurrent))
	return q.Status()
}

// Cancel cancels a deployment held by the project's queue, recording reason.
func (r *Registry) Cancel(ctx context.Context, projectID, deploymentID int64, reason string) (CancelOutcome, <-chan struct{}, error) {
	q, ok := r.lookup(projectID)
	if !ok {
		return NotTracked, nil, nil
	}
	return q.Cancel(ctx, deploymentID, reason)
}

// GetAllQueuesStatus snapshots every known queue ordered by project id.
func (r *Registry) GetAllQueuesStatus() []Status {
	r.mu.Lock()
	queues := make([]*ProjectQueue, 0, len(r.queues))
	for _, q := range r.queues {
		queues = append(queues, q)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(queues))
	for _, q := range queues {
		out = append(out, q.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out
}

// GetQueueStatus snapshots one queue. Unknown projects report an empty queue.
func (r *Registry) GetQueueStatus(projectID int64) Status {
	if q, ok := r.lookup(projectID); ok {
		return q.Status()
	}
	return Status{ProjectID: projectID, Pending: []int64{}, Active: []int64{}}
}

// GetQueueLength returns the number of queued deployments of a project.
func (r *Registry) GetQueueLength(projectID int64) int {
	if q, ok := r.lookup(projectID); ok {
		return q.Len()
	}
	return 0
}

// IsRunning reports whether a project has a deployment executing.
func (r *Registry) IsRunning(projectID int64) bool {
	if q, ok := r.lookup(projectID); ok {
		return q.IsRunning()
	}
	return false
}

// CancelPendingDeployments drains the queued entries of a project.
func (r *Registry) CancelPendingDeployments(ctx context.Context, projectID int64) int {
	if q, ok := r.lookup(projectID); ok {
		return q.CancelPending(ctx)
	}
	return 0
}
