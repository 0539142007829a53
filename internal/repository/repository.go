package repository

import (
	"context"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
)

// ProjectRepository persists project configuration.
type ProjectRepository interface {
	UpsertProject(ctx context.Context, project *domain.Project) error
	GetProjectByID(ctx context.Context, projectID int64) (*domain.Project, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
}

// DeploymentRepository stores deployment history. UpdateDeploymentStatus
// returns ErrConflict when the stored status is not one of update.From.
type DeploymentRepository interface {
	CreateDeployment(ctx context.Context, deployment *domain.Deployment) error
	GetDeploymentByID(ctx context.Context, deploymentID int64) (*domain.Deployment, error)
	UpdateDeploymentStatus(ctx context.Context, update domain.DeploymentStatusUpdate) (*domain.Deployment, error)
	AppendDeploymentLog(ctx context.Context, deploymentID int64, text string) error
	ListDeploymentsByProject(ctx context.Context, projectID int64, limit int) ([]domain.Deployment, error)
	ListDeploymentsByStatus(ctx context.Context, statuses ...domain.DeploymentStatus) ([]domain.Deployment, error)
}

// StepRepository stores the ordered steps owned by a deployment.
type StepRepository interface {
	ReplaceSteps(ctx context.Context, deploymentID int64, steps []domain.DeploymentStep) error
	ListSteps(ctx context.Context, deploymentID int64) ([]domain.DeploymentStep, error)
}

// WebhookRepository stores encrypted webhook secrets.
type WebhookRepository interface {
	UpsertWebhook(ctx context.Context, projectID int64, secret []byte) error
	GetWebhookSecret(ctx context.Context, projectID int64) ([]byte, error)
}
