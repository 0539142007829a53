package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/logs"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/notify"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/pipeline"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/queue"
)

// Messages recorded on deployments finished without an executor outcome.
const (
	MessageTimedOut        = "deployment timed out"
	MessageCancelledByUser = "cancelled by user"
	MessageExecutionLost   = "reconciled after restart: execution state lost"
	MessageQueueLost       = "reconciled after restart: queue state lost"
)

// Notifier receives terminal outcomes. Delivery is fire-and-forget.
type Notifier interface {
	Dispatch(ev notify.Event)
}

// Deps are the collaborators of the deployment lifecycle.
type Deps struct {
	Projects    repository.ProjectRepository
	Deployments repository.DeploymentRepository
	Steps       repository.StepRepository
	Executor    pipeline.Executor
	Logs        *logs.Service
	Notifier    Notifier
	Logger      *slog.Logger
	Metrics     prometheus.Registerer
}

// Options tune execution and cancellation.
type Options struct {
	// CancelAckTimeout bounds the wait for the executor to acknowledge a cancellation.
	CancelAckTimeout time.Duration
	// ExecutionTimeout fails deployments that run longer. Zero disables it.
	ExecutionTimeout time.Duration
	// RecoveryMode is "requeue" or "fail" for deployments waiting at startup.
	RecoveryMode string
}

// Lifecycle owns every persisted status change of a deployment. It is the
// queue.Handler of the project queues.
type Lifecycle struct {
	projects    repository.ProjectRepository
	deployments repository.DeploymentRepository
	steps       repository.StepRepository
	executor    pipeline.Executor
	logs        *logs.Service
	notifier    Notifier
	logger      *slog.Logger
	metrics     *metrics
	opts        Options
	cancelGrace time.Duration
	now         func() time.Time
}

var _ queue.Handler = (*Lifecycle)(nil)

// NewLifecycle constructs a Lifecycle.
func NewLifecycle(deps Deps, opts Options) *Lifecycle {
	if opts.CancelAckTimeout <= 0 {
		opts.CancelAckTimeout = 30 * time.Second
	}
	return &Lifecycle{
		projects:    deps.Projects,
		deployments: deps.Deployments,
		steps:       deps.Steps,
		executor:    deps.Executor,
		logs:        deps.Logs,
		notifier:    deps.Notifier,
		logger:      deps.Logger.With("component", "deploy"),
		metrics:     newMetrics(deps.Metrics),
		opts:        opts,
		cancelGrace: cancelGrace,
		now:         time.Now,
	}
}

type change struct {
	id           int64
	to           domain.DeploymentStatus
	from         []domain.DeploymentStatus
	message      string
	level        string
	errorMessage string
	results      []pipeline.StepResult
}

// apply records a guarded status change, streams its log line and, for
// terminal states, finalises steps and emits the outcome.
func (l *Lifecycle) apply(ctx context.Context, c change) (*domain.Deployment, error) {
	current, err := l.deployments.GetDeploymentByID(ctx, c.id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(c.to) {
		return nil, fmt.Errorf("%w: deployment %d is %s, cannot become %s", ErrInvalidTransition, c.id, current.Status, c.to)
	}
	if c.from == nil {
		c.from = domain.PredecessorsOf(c.to)
	}
	if c.level == "" {
		c.level = logs.LevelInfo
	}

	now := l.now().UTC()
	line := domain.DeploymentLogLine{
		DeploymentID: c.id,
		ProjectID:    current.ProjectID,
		Level:        c.level,
		Message:      c.message,
		CreatedAt:    now,
	}
	update := domain.DeploymentStatusUpdate{
		DeploymentID: c.id,
		From:         c.from,
		Status:       c.to,
		ErrorMessage: c.errorMessage,
		LogLine:      logs.Format(line),
	}
	if c.to == domain.DeploymentInProgress {
		update.StartedAt = &now
	}
	if c.to.Terminal() {
		update.CompletedAt = &now
		if current.StartedAt != nil {
			d := now.Sub(*current.StartedAt)
			update.Duration = &d
		}
	}

	d, err := l.deployments.UpdateDeploymentStatus(ctx, update)
	if errors.Is(err, repository.ErrConflict) {
		return nil, fmt.Errorf("%w: deployment %d changed concurrently, cannot become %s", ErrInvalidTransition, c.id, c.to)
	}
	if err != nil {
		return nil, err
	}
	if l.logs != nil {
		l.logs.Broadcast(line)
	}
	l.logger.Info("deployment status changed", "deployment_id", d.ID, "project_id", d.ProjectID, "status", d.Status)
	if d.Status.Terminal() {
		l.finished(ctx, d, c.results)
	}
	return d, nil
}

func (l *Lifecycle) finished(ctx context.Context, d *domain.Deployment, results []pipeline.StepResult) {
	if err := l.finaliseSteps(ctx, d, results); err != nil {
		l.logger.Warn("failed to persist deployment steps", "deployment_id", d.ID, "error", err)
	}
	l.metrics.observe(d.Status, d.Duration)
	if l.notifier != nil {
		l.notifier.Dispatch(notify.EventFromDeployment(*d))
	}
}

// finaliseSteps replaces placeholders with executor results, or settles
// placeholders that never ran.
func (l *Lifecycle) finaliseSteps(ctx context.Context, d *domain.Deployment, results []pipeline.StepResult) error {
	if len(results) > 0 {
		steps := make([]domain.DeploymentStep, 0, len(results))
		for _, r := range results {
			status := r.Status
			if !status.Terminal() {
				status = d.Status
			}
			steps = append(steps, domain.DeploymentStep{Name: r.Name, Output: r.Output, Error: r.Error, Status: status})
		}
		return l.steps.ReplaceSteps(ctx, d.ID, steps)
	}
	steps, err := l.steps.ListSteps(ctx, d.ID)
	if err != nil || len(steps) == 0 {
		return err
	}
	settled := domain.DeploymentCancelled
	if d.Status == domain.DeploymentSuccess {
		settled = domain.DeploymentSuccess
	}
	for i := range steps {
		if !steps[i].Status.Terminal() {
			steps[i].Status = settled
		}
	}
	return l.steps.ReplaceSteps(ctx, d.ID, steps)
}

// MarkQueued moves a pending deployment to queued. Already queued
// deployments are accepted so recovery can re-enqueue them.
func (l *Lifecycle) MarkQueued(ctx context.Context, deploymentID int64) error {
	_, err := l.apply(ctx, change{
		id:      deploymentID,
		to:      domain.DeploymentQueued,
		from:    []domain.DeploymentStatus{domain.DeploymentPending},
		message: "deployment queued",
	})
	if errors.Is(err, ErrInvalidTransition) {
		if d, getErr := l.deployments.GetDeploymentByID(ctx, deploymentID); getErr == nil && d.Status == domain.DeploymentQueued {
			return nil
		}
	}
	return err
}

// MarkInProgress records slot acquisition.
func (l *Lifecycle) MarkInProgress(ctx context.Context, deploymentID int64) error {
	_, err := l.apply(ctx, change{
		id:      deploymentID,
		to:      domain.DeploymentInProgress,
		from:    []domain.DeploymentStatus{domain.DeploymentQueued},
		message: "deployment started",
	})
	return notWaiting(err)
}

// MarkCancelled cancels a deployment that has not started.
func (l *Lifecycle) MarkCancelled(ctx context.Context, deploymentID int64, reason string) error {
	_, err := l.apply(ctx, change{
		id:           deploymentID,
		to:           domain.DeploymentCancelled,
		from:         []domain.DeploymentStatus{domain.DeploymentPending, domain.DeploymentQueued},
		message:      reason,
		level:        logs.LevelWarn,
		errorMessage: reason,
	})
	return notWaiting(err)
}

// MarkFailed fails a waiting deployment the queue could not admit.
func (l *Lifecycle) MarkFailed(ctx context.Context, deploymentID int64, reason string) error {
	_, err := l.apply(ctx, change{
		id:           deploymentID,
		to:           domain.DeploymentFailed,
		from:         []domain.DeploymentStatus{domain.DeploymentPending, domain.DeploymentQueued},
		message:      reason,
		level:        logs.LevelError,
		errorMessage: reason,
	})
	return notWaiting(err)
}

// notWaiting marks transition conflicts so the queue drops its entry.
func notWaiting(err error) error {
	if errors.Is(err, ErrInvalidTransition) {
		return fmt.Errorf("%w: %w", queue.ErrNotWaiting, err)
	}
	return err
}

// Run executes an admitted deployment and records its terminal state.
// Cancelling ctx cancels the execution.
func (l *Lifecycle) Run(ctx context.Context, deploymentID int64) {
	store := context.WithoutCancel(ctx)
	log := l.logger.With("deployment_id", deploymentID)

	d, err := l.deployments.GetDeploymentByID(store, deploymentID)
	if err != nil {
		log.Error("load deployment failed", "error", err)
		return
	}
	project, err := l.projects.GetProjectByID(store, d.ProjectID)
	if err != nil {
		l.complete(store, d.ID, pipeline.Result{Outcome: domain.DeploymentFailed, ErrorMessage: "load project: " + err.Error()})
		return
	}

	execCtx, cancel := ctx, context.CancelFunc(func() {})
	if l.opts.ExecutionTimeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, l.opts.ExecutionTimeout)
	}
	defer cancel()

	results, err := l.executor.Execute(execCtx, pipeline.Request{
		Deployment: *d,
		Project:    *project,
		Steps:      project.Pipeline,
		OnOutput: func(line string) {
			l.output(store, d, line)
		},
	})
	if err != nil {
		if execCtx.Err() != nil {
			l.interrupted(store, ctx, d.ID)
			return
		}
		l.complete(store, d.ID, pipeline.Result{Outcome: domain.DeploymentFailed, ErrorMessage: "executor rejected deployment: " + err.Error()})
		return
	}

	select {
	case res, ok := <-results:
		if !ok {
			res = pipeline.Result{Outcome: domain.DeploymentFailed, ErrorMessage: "executor stopped without a result"}
		}
		l.complete(store, d.ID, res)
	case <-execCtx.Done():
		l.interrupted(store, ctx, d.ID)
	}
}

// interrupted finishes a deployment whose execution context ended: cancelled
// when the job itself was cancelled, timed out otherwise.
func (l *Lifecycle) interrupted(store, job context.Context, deploymentID int64) {
	l.cancelExecution(store, deploymentID)
	if job.Err() != nil {
		l.complete(store, deploymentID, pipeline.Result{Outcome: domain.DeploymentCancelled, ErrorMessage: cancelReason(job)})
		return
	}
	l.complete(store, deploymentID, pipeline.Result{Outcome: domain.DeploymentFailed, ErrorMessage: MessageTimedOut})
}

func cancelReason(ctx context.Context) string {
	var c *queue.Cancellation
	if errors.As(context.Cause(ctx), &c) && c.Reason != "" {
		return c.Reason
	}
	return MessageCancelledByUser
}

func (l *Lifecycle) cancelExecution(ctx context.Context, deploymentID int64) {
	ackCtx, cancel := context.WithTimeout(ctx, l.opts.CancelAckTimeout)
	defer cancel()
	if err := l.executor.Cancel(ackCtx, deploymentID); err != nil {
		l.logger.Warn("executor did not acknowledge cancellation", "deployment_id", deploymentID, "error", err)
	}
}

// complete records the executor outcome. Outcomes arriving after the
// deployment already finished are dropped.
func (l *Lifecycle) complete(ctx context.Context, deploymentID int64, res pipeline.Result) {
	outcome := res.Outcome
	if !outcome.Terminal() {
		outcome = domain.DeploymentFailed
		if res.ErrorMessage == "" {
			res.ErrorMessage = fmt.Sprintf("executor reported non-terminal outcome %q", res.Outcome)
		}
	}
	level := logs.LevelInfo
	message := "deployment " + string(outcome)
	if outcome != domain.DeploymentSuccess {
		level = logs.LevelError
		if res.ErrorMessage != "" {
			message += ": " + res.ErrorMessage
		}
	}
	_, err := l.apply(ctx, change{
		id:           deploymentID,
		to:           outcome,
		from:         []domain.DeploymentStatus{domain.DeploymentInProgress},
		message:      message,
		level:        level,
		errorMessage: res.ErrorMessage,
		results:      res.Steps,
	})
	if errors.Is(err, ErrInvalidTransition) {
		l.logger.Info("late deployment outcome ignored", "deployment_id", deploymentID, "outcome", outcome)
		return
	}
	if err != nil {
		l.logger.Error("record deployment outcome failed", "deployment_id", deploymentID, "outcome", outcome, "error", err)
	}
}

func (l *Lifecycle) output(ctx context.Context, d *domain.Deployment, line string) {
	if l.logs == nil {
		return
	}
	err := l.logs.Append(ctx, domain.DeploymentLogLine{
		DeploymentID: d.ID,
		ProjectID:    d.ProjectID,
		Level:        logs.LevelInfo,
		Message:      line,
		CreatedAt:    l.now().UTC(),
	})
	if err != nil {
		l.logger.Warn("append deployment output failed", "deployment_id", d.ID, "error", err)
	}
}
