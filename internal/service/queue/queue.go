// Package queue admits deployments per project under a concurrency bound.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
)

// ErrNotWaiting is wrapped by Handler implementations when a deployment has
// already left the waiting states, so the queue entry can be dropped.
var ErrNotWaiting = errors.New("deployment is no longer waiting")

// Handler performs the persisted side of admission. Mark* calls run while the
// project queue lock is held and must not call back into the queue. Run
// executes an admitted deployment to a terminal state and runs on its own
// goroutine; when its context is cancelled by Cancel, context.Cause carries
// a *Cancellation.
type Handler interface {
	MarkQueued(ctx context.Context, deploymentID int64) error
	MarkInProgress(ctx context.Context, deploymentID int64) error
	MarkCancelled(ctx context.Context, deploymentID int64, reason string) error
	MarkFailed(ctx context.Context, deploymentID int64, reason string) error
	Run(ctx context.Context, deploymentID int64)
}

// Reasons recorded for deployments cancelled by the queue.
const (
	ReasonCancelledPending = "cancelled while queued"
	ReasonCancelledByUser  = "cancelled by user"
)

// Cancellation is the cause attached to a running job's context by Cancel.
type Cancellation struct {
	Reason string
}

func (c *Cancellation) Error() string { return c.Reason }

// CancelOutcome tells the caller where a cancelled deployment was found.
type CancelOutcome int

const (
	// NotTracked means the queue holds no entry for the deployment.
	NotTracked CancelOutcome = iota
	// CancelledQueued means the entry was removed and marked cancelled.
	CancelledQueued
	// SignalledRunning means the running job's context was cancelled.
	SignalledRunning
)

// Status is a point-in-time snapshot of one project queue.
type Status struct {
	ProjectID     int64   `json:"project_id"`
	QueueLength   int     `json:"queue_length"`
	Running       int     `json:"running"`
	IsRunning     bool    `json:"is_running"`
	MaxConcurrent int     `json:"max_concurrent"`
	Pending       []int64 `json:"pending"`
	Active        []int64 `json:"active"`
}

type job struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// ProjectQueue is a FIFO of deployment ids plus the set of running jobs for
// one project. len(running) never exceeds maxConcurrent. Admission and job
// contexts derive from base, never from a caller's context.
type ProjectQueue struct {
	projectID int64
	base      context.Context
	handler   Handler
	logger    *slog.Logger
	metrics   *metrics

	mu            sync.Mutex
	pending       []int64
	running       map[int64]*job
	maxConcurrent int
}

func newProjectQueue(base context.Context, projectID int64, maxConcurrent int, handler Handler, logger *slog.Logger, m *metrics) *ProjectQueue {
	return &ProjectQueue{
		projectID:     projectID,
		base:          base,
		handler:       handler,
		logger:        logger.With("project_id", projectID),
		metrics:       m,
		running:       make(map[int64]*job),
		maxConcurrent: clamp(maxConcurrent),
	}
}

func clamp(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Enqueue marks the deployment queued, appends it and attempts admission.
// Enqueueing an id already tracked is a no-op.
func (q *ProjectQueue) Enqueue(ctx context.Context, deploymentID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tracked(deploymentID) {
		return nil
	}
	if err := q.handler.MarkQueued(ctx, deploymentID); err != nil {
		return err
	}
	q.pending = append(q.pending, deploymentID)
	q.logger.Debug("deployment queued", "deployment_id", deploymentID, "queue_length", len(q.pending))
	q.admit()
	return nil
}

// TryAdmitNext starts queued deployments while capacity remains.
func (q *ProjectQueue) TryAdmitNext() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.admit()
}

// admit requires q.mu. A head entry whose admission cannot be persisted is
// failed; if even that fails it stays at the head until the next attempt.
func (q *ProjectQueue) admit() {
	defer q.observe()
	for len(q.running) < q.maxConcurrent && len(q.pending) > 0 {
		id := q.pending[0]
		if err := q.handler.MarkInProgress(q.base, id); err != nil {
			if !q.reject(id, err) {
				return
			}
			q.pending = q.pending[1:]
			continue
		}
		q.pending = q.pending[1:]
		jobCtx, cancel := context.WithCancelCause(q.base)
		j := &job{cancel: cancel, done: make(chan struct{})}
		q.running[id] = j
		q.logger.Info("deployment admitted", "deployment_id", id, "running", len(q.running), "max_concurrent", q.maxConcurrent)
		go q.execute(jobCtx, id, j)
	}
}

// reject settles an entry that could not be admitted and reports whether it
// may leave the queue.
func (q *ProjectQueue) reject(id int64, admitErr error) bool {
	if errors.Is(admitErr, ErrNotWaiting) {
		q.logger.Warn("stale queue entry dropped", "deployment_id", id, "error", admitErr)
		return true
	}
	err := q.handler.MarkFailed(q.base, id, "admission failed: "+admitErr.Error())
	if err == nil || errors.Is(err, ErrNotWaiting) {
		q.logger.Error("deployment not admitted", "deployment_id", id, "error", admitErr)
		return true
	}
	q.logger.Error("deployment admission stalled", "deployment_id", id, "error", admitErr, "fail_error", err)
	return false
}

func (q *ProjectQueue) execute(ctx context.Context, deploymentID int64, j *job) {
	defer func() {
		j.cancel(nil)
		q.mu.Lock()
		delete(q.running, deploymentID)
		close(j.done)
		q.admit()
		q.mu.Unlock()
	}()
	q.handler.Run(ctx, deploymentID)
}

// CancelPending drains every queued entry to cancelled and returns how many
// transitions were recorded. Running deployments are untouched. Entries
// whose cancellation could not be persisted stay queued.
func (q *ProjectQueue) CancelPending(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.pending
	q.pending = nil
	count := 0
	for _, id := range drained {
		err := q.handler.MarkCancelled(ctx, id, ReasonCancelledPending)
		switch {
		case err == nil:
			count++
		case errors.Is(err, ErrNotWaiting):
			q.logger.Warn("stale queue entry dropped", "deployment_id", id, "error", err)
		default:
			q.logger.Error("queued deployment not cancelled", "deployment_id", id, "error", err)
			q.pending = append(q.pending, id)
		}
	}
	q.observe()
	if count > 0 {
		q.logger.Info("pending deployments cancelled", "count", count)
	}
	return count
}

// Cancel removes a queued deployment or signals a running one with reason as
// the context cause. For running jobs the returned channel closes once Run
// has returned.
func (q *ProjectQueue) Cancel(ctx context.Context, deploymentID int64, reason string) (CancelOutcome, <-chan struct{}, error) {
	if reason == "" {
		reason = ReasonCancelledByUser
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if idx := slices.Index(q.pending, deploymentID); idx >= 0 {
		if err := q.handler.MarkCancelled(ctx, deploymentID, reason); err != nil {
			return NotTracked, nil, err
		}
		q.pending = slices.Delete(q.pending, idx, idx+1)
		q.observe()
		return CancelledQueued, nil, nil
	}
	if j, ok := q.running[deploymentID]; ok {
		j.cancel(&Cancellation{Reason: reason})
		return SignalledRunning, j.done, nil
	}
	return NotTracked, nil, nil
}

// Resize changes the concurrency bound and admits waiting entries if it grew.
func (q *ProjectQueue) Resize(maxConcurrent int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxConcurrent = clamp(maxConcurrent)
	q.admit()
}

// Len returns the number of queued deployments.
func (q *ProjectQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// IsRunning reports whether any deployment is executing.
func (q *ProjectQueue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running) > 0
}

// Status returns a snapshot of the queue.
func (q *ProjectQueue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	active := make([]int64, 0, len(q.running))
	for id := range q.running {
		active = append(active, id)
	}
	slices.Sort(active)
	return Status{
		ProjectID:     q.projectID,
		QueueLength:   len(q.pending),
		Running:       len(q.running),
		IsRunning:     len(q.running) > 0,
		MaxConcurrent: q.maxConcurrent,
		Pending:       append([]int64{}, q.pending...),
		Active:        active,
	}
}

func (q *ProjectQueue) tracked(deploymentID int64) bool {
	if _, ok := q.running[deploymentID]; ok {
		return true
	}
	return slices.Contains(q.pending, deploymentID)
}

// observe requires q.mu.
func (q *ProjectQueue) observe() {
	q.metrics.observe(q.projectID, len(q.pending), len(q.running))
}
