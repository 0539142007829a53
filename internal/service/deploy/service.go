package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/logs"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/queue"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/config"
)

// cancelGrace is added to the executor acknowledgement timeout while waiting
// for a running deployment to stop.
const cancelGrace = 5 * time.Second

// CreateInput describes a deployment request.
type CreateInput struct {
	ProjectID     int64
	Branch        string
	CommitHash    string
	CommitMessage string
	TriggeredBy   string
	Manual        bool
	RetryOf       *int64
}

// RecoveryReport summarises the startup reconciliation pass.
type RecoveryReport struct {
	Failed   int `json:"failed"`
	Requeued int `json:"requeued"`
}

// Service creates, retries and cancels deployments and admits them through
// the project queues.
type Service struct {
	lifecycle   *Lifecycle
	queues      *queue.Registry
	projects    repository.ProjectRepository
	deployments repository.DeploymentRepository
	steps       repository.StepRepository
	logger      *slog.Logger
}

// NewService constructs a Service over a lifecycle and the registry that uses it.
func NewService(lifecycle *Lifecycle, queues *queue.Registry) *Service {
	return &Service{
		lifecycle:   lifecycle,
		queues:      queues,
		projects:    lifecycle.projects,
		deployments: lifecycle.deployments,
		steps:       lifecycle.steps,
		logger:      lifecycle.logger,
	}
}

// Create persists a pending deployment with step placeholders and requests admission.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Deployment, error) {
	project, err := s.projects.GetProjectByID(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	branch := strings.TrimSpace(in.Branch)
	commit := strings.TrimSpace(in.CommitHash)
	if in.Manual {
		if branch == "" {
			branch = project.DefaultBranch()
		}
		if commit == "" {
			commit = domain.DefaultManualCommit
		}
	}
	if branch == "" || commit == "" {
		return nil, fmt.Errorf("%w: branch and commit are required", ErrInvalidInput)
	}
	triggeredBy := strings.TrimSpace(in.TriggeredBy)
	if triggeredBy == "" && !in.Manual {
		triggeredBy = domain.TriggeredByWebhook
	}

	now := s.lifecycle.now().UTC()
	created := domain.DeploymentLogLine{
		ProjectID: project.ID,
		Level:     logs.LevelInfo,
		Message:   createdMessage(branch, commit, triggeredBy, in.RetryOf),
		CreatedAt: now,
	}
	d := &domain.Deployment{
		ProjectID:     project.ID,
		Status:        domain.DeploymentPending,
		Branch:        branch,
		CommitHash:    commit,
		CommitMessage: in.CommitMessage,
		TriggeredBy:   triggeredBy,
		ManualTrigger: in.Manual,
		RetryOf:       in.RetryOf,
		FullLog:       logs.Format(created),
	}
	if err := s.deployments.CreateDeployment(ctx, d); err != nil {
		return nil, err
	}
	created.DeploymentID = d.ID
	if s.lifecycle.logs != nil {
		s.lifecycle.logs.Broadcast(created)
	}

	if len(project.Pipeline) > 0 {
		placeholders := make([]domain.DeploymentStep, 0, len(project.Pipeline))
		for _, step := range project.Pipeline {
			placeholders = append(placeholders, domain.DeploymentStep{Name: step.Name, Status: domain.DeploymentPending})
		}
		if err := s.steps.ReplaceSteps(ctx, d.ID, placeholders); err != nil {
			s.logger.Warn("failed to create step placeholders", "deployment_id", d.ID, "error", err)
		}
	}

	s.logger.Info("deployment created", "deployment_id", d.ID, "project_id", project.ID, "branch", branch, "commit", commit, "triggered_by", triggeredBy)
	if err := s.queues.Enqueue(ctx, project.ID, project.Policy.Concurrency(), d.ID); err != nil {
		s.lifecycle.apply(context.WithoutCancel(ctx), change{
			id:           d.ID,
			to:           domain.DeploymentFailed,
			message:      "admission failed",
			level:        logs.LevelError,
			errorMessage: "admission failed: " + err.Error(),
		})
		return nil, fmt.Errorf("admit deployment %d: %w", d.ID, err)
	}
	return s.deployments.GetDeploymentByID(ctx, d.ID)
}

func createdMessage(branch, commit, triggeredBy string, retryOf *int64) string {
	msg := fmt.Sprintf("deployment created for %s@%s", branch, commit)
	if triggeredBy != "" {
		msg += " by " + triggeredBy
	}
	if retryOf != nil {
		msg += fmt.Sprintf(" (retry of %d)", *retryOf)
	}
	return msg
}

// TriggerFromEvent creates a webhook deployment for a push that passed the trigger decision.
func (s *Service) TriggerFromEvent(ctx context.Context, project domain.Project, event domain.WebhookEvent) (*domain.Deployment, error) {
	return s.Create(ctx, CreateInput{
		ProjectID:     project.ID,
		Branch:        event.Branch(),
		CommitHash:    event.AfterSHA,
		CommitMessage: event.CommitMessage(),
		TriggeredBy:   domain.TriggeredByWebhook,
	})
}

// Retry creates a new deployment of the same branch and commit as a failed
// or cancelled one.
func (s *Service) Retry(ctx context.Context, deploymentID int64, userID string) (*domain.Deployment, error) {
	src, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if !src.Status.Terminal() || src.Status == domain.DeploymentSuccess {
		return nil, fmt.Errorf("%w: deployment %d is %s", ErrRetryNotAllowed, src.ID, src.Status)
	}
	return s.Create(ctx, CreateInput{
		ProjectID:     src.ProjectID,
		Branch:        src.Branch,
		CommitHash:    src.CommitHash,
		CommitMessage: src.CommitMessage,
		TriggeredBy:   userID,
		Manual:        true,
		RetryOf:       &src.ID,
	})
}

// Cancel stops a pending, queued or running deployment. Running deployments
// are cancelled through the executor; when it does not stop in time the
// deployment is marked cancelled regardless.
func (s *Service) Cancel(ctx context.Context, deploymentID int64, userID string) (*domain.Deployment, error) {
	d, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if d.Status.Terminal() {
		return nil, fmt.Errorf("%w: deployment %d is %s", ErrAlreadyTerminal, d.ID, d.Status)
	}

	reason := "cancelled by " + userID
	if userID == "" {
		reason = MessageCancelledByUser
	}
	outcome, done, err := s.queues.Cancel(ctx, d.ProjectID, d.ID, reason)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case queue.CancelledQueued:
	case queue.SignalledRunning:
		wait := s.lifecycle.opts.CancelAckTimeout + s.lifecycle.cancelGrace
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			s.logger.Warn("running deployment did not stop in time, forcing cancellation", "deployment_id", d.ID, "waited", wait)
			if err := s.forceCancel(ctx, d.ID, reason); err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	default:
		if err := s.forceCancel(ctx, d.ID, reason); err != nil {
			return nil, err
		}
	}

	d, err = s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if d.Status != domain.DeploymentCancelled {
		return nil, fmt.Errorf("%w: deployment %d finished as %s", ErrAlreadyTerminal, d.ID, d.Status)
	}
	s.logger.Info("deployment cancelled", "deployment_id", d.ID, "user_id", userID)
	return d, nil
}

func (s *Service) forceCancel(ctx context.Context, deploymentID int64, reason string) error {
	_, err := s.lifecycle.apply(ctx, change{
		id:           deploymentID,
		to:           domain.DeploymentCancelled,
		message:      reason,
		level:        logs.LevelWarn,
		errorMessage: reason,
	})
	if errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	return err
}

// Recover reconciles persisted state after a restart. Deployments that were
// executing are failed; waiting ones are re-enqueued in creation order or
// failed, depending on the recovery mode.
func (s *Service) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	running, err := s.deployments.ListDeploymentsByStatus(ctx, domain.DeploymentInProgress)
	if err != nil {
		return report, fmt.Errorf("list running deployments: %w", err)
	}
	for _, d := range running {
		if s.fail(ctx, d.ID, MessageExecutionLost) {
			report.Failed++
		}
	}

	waiting, err := s.deployments.ListDeploymentsByStatus(ctx, domain.DeploymentPending, domain.DeploymentQueued)
	if err != nil {
		return report, fmt.Errorf("list waiting deployments: %w", err)
	}
	projects := make(map[int64]*domain.Project)
	for _, d := range waiting {
		if s.lifecycle.opts.RecoveryMode == config.RecoveryFail {
			if s.fail(ctx, d.ID, MessageQueueLost) {
				report.Failed++
			}
			continue
		}
		project, ok := projects[d.ProjectID]
		if !ok {
			project, err = s.projects.GetProjectByID(ctx, d.ProjectID)
			if err != nil {
				s.logger.Warn("recovery could not load project", "project_id", d.ProjectID, "error", err)
				if s.fail(ctx, d.ID, MessageQueueLost) {
					report.Failed++
				}
				continue
			}
			projects[d.ProjectID] = project
		}
		if err := s.queues.Enqueue(ctx, project.ID, project.Policy.Concurrency(), d.ID); err != nil {
			s.logger.Warn("recovery could not re-enqueue deployment", "deployment_id", d.ID, "error", err)
			continue
		}
		report.Requeued++
	}
	s.logger.Info("deployment recovery complete", "failed", report.Failed, "requeued", report.Requeued)
	return report, nil
}

func (s *Service) fail(ctx context.Context, deploymentID int64, reason string) bool {
	_, err := s.lifecycle.apply(ctx, change{
		id:           deploymentID,
		to:           domain.DeploymentFailed,
		message:      reason,
		level:        logs.LevelError,
		errorMessage: reason,
	})
	if err != nil {
		s.logger.Warn("recovery could not fail deployment", "deployment_id", deploymentID, "error", err)
		return false
	}
	return true
}

// Get returns a deployment and its steps.
func (s *Service) Get(ctx context.Context, deploymentID int64) (*domain.Deployment, []domain.DeploymentStep, error) {
	d, err := s.deployments.GetDeploymentByID(ctx, deploymentID)
	if err != nil {
		return nil, nil, err
	}
	steps, err := s.steps.ListSteps(ctx, deploymentID)
	if err != nil {
		return nil, nil, err
	}
	return d, steps, nil
}

// ListByProject returns recent deployments for a project.
func (s *Service) ListByProject(ctx context.Context, projectID int64, limit int) ([]domain.Deployment, error) {
	if _, err := s.projects.GetProjectByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.deployments.ListDeploymentsByProject(ctx, projectID, limit)
}

// CancelPending cancels every queued deployment of a project.
func (s *Service) CancelPending(ctx context.Context, projectID int64) (int, error) {
	if _, err := s.projects.GetProjectByID(ctx, projectID); err != nil {
		return 0, err
	}
	return s.queues.CancelPendingDeployments(ctx, projectID), nil
}

// RefreshQueue applies the project's current concurrency limit to its queue.
func (s *Service) RefreshQueue(ctx context.Context, projectID int64) (queue.Status, error) {
	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return queue.Status{}, err
	}
	return s.queues.Refresh(project.ID, project.Policy.Concurrency()), nil
}

// Queues exposes the project queue registry.
func (s *Service) Queues() *queue.Registry {
	return s.queues
}
