package project

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/webhook"
)

// UpsertInput describes a project definition.
type UpsertInput struct {
	ID            int64
	Name          string
	RepoURL       string
	WebhookSecret string
	AutoDeploy    bool
	TargetBranch  string
	PathFilters   []string
	MaxConcurrent int
	Pipeline      []domain.PipelineStep
	CreatedBy     string
}

// Service manages project configuration and resolves webhook secrets.
type Service struct {
	projects             repository.ProjectRepository
	secrets              *webhook.Secrets
	logger               *slog.Logger
	defaultMaxConcurrent int
}

// New returns a project service. Projects without a concurrency limit get
// defaultMaxConcurrent.
func New(projects repository.ProjectRepository, secrets *webhook.Secrets, logger *slog.Logger, defaultMaxConcurrent int) Service {
	if defaultMaxConcurrent < 1 {
		defaultMaxConcurrent = 1
	}
	return Service{projects: projects, secrets: secrets, logger: logger, defaultMaxConcurrent: defaultMaxConcurrent}
}

var (
	errInvalidProjectName = errors.New("project name is required")
	errInvalidRepoURL     = errors.New("repository URL is required")
	errInvalidStep        = errors.New("pipeline steps need a name and a command")
	errInvalidConcurrency = errors.New("max concurrent must not be negative")
)

// IsValidationError reports whether err rejects the project definition itself.
func IsValidationError(err error) bool {
	return errors.Is(err, errInvalidProjectName) || errors.Is(err, errInvalidRepoURL) ||
		errors.Is(err, errInvalidStep) || errors.Is(err, errInvalidConcurrency) ||
		errors.Is(err, webhook.ErrSecretRequired)
}

// Upsert validates and stores a project. A non-empty WebhookSecret is sealed
// into the secret store.
func (s Service) Upsert(ctx context.Context, input UpsertInput) (*domain.Project, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, errInvalidProjectName
	}
	if strings.TrimSpace(input.RepoURL) == "" {
		return nil, errInvalidRepoURL
	}
	if input.MaxConcurrent < 0 {
		return nil, errInvalidConcurrency
	}
	for _, step := range input.Pipeline {
		if strings.TrimSpace(step.Name) == "" || strings.TrimSpace(step.Command) == "" {
			return nil, errInvalidStep
		}
	}
	maxConcurrent := input.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = s.defaultMaxConcurrent
	}
	project := &domain.Project{
		ID:      input.ID,
		Name:    strings.TrimSpace(input.Name),
		RepoURL: strings.TrimSpace(input.RepoURL),
		Policy: domain.DeploymentPolicy{
			AutoDeploy:    input.AutoDeploy,
			TargetBranch:  strings.TrimSpace(input.TargetBranch),
			PathFilters:   input.PathFilters,
			MaxConcurrent: maxConcurrent,
		},
		Pipeline:  input.Pipeline,
		CreatedBy: input.CreatedBy,
	}
	if err := s.projects.UpsertProject(ctx, project); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.WebhookSecret) != "" {
		if err := s.secrets.Upsert(ctx, project.ID, input.WebhookSecret); err != nil {
			return nil, err
		}
		project.WebhookSecret = strings.TrimSpace(input.WebhookSecret)
	}
	s.logger.Info("project stored", "project_id", project.ID, "name", project.Name, "max_concurrent", maxConcurrent)
	return project, nil
}

// Get returns a project with its webhook secret resolved.
func (s Service) Get(ctx context.Context, projectID int64) (*domain.Project, error) {
	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	secret, err := s.secrets.Lookup(ctx, projectID)
	if err != nil {
		return nil, err
	}
	project.WebhookSecret = secret
	return project, nil
}

// List returns every project. Webhook secrets are not resolved.
func (s Service) List(ctx context.Context) ([]domain.Project, error) {
	return s.projects.ListProjects(ctx)
}

// RotateSecret replaces the webhook secret of an existing project.
func (s Service) RotateSecret(ctx context.Context, projectID int64, secret string) error {
	if _, err := s.projects.GetProjectByID(ctx, projectID); err != nil {
		return err
	}
	if err := s.secrets.Upsert(ctx, projectID, secret); err != nil {
		return err
	}
	s.logger.Info("webhook secret rotated", "project_id", projectID)
	return nil
}

// SetMaxConcurrent updates the concurrency limit of a project's policy.
func (s Service) SetMaxConcurrent(ctx context.Context, projectID int64, maxConcurrent int) (*domain.Project, error) {
	if maxConcurrent < 1 {
		return nil, errInvalidConcurrency
	}
	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	project.Policy.MaxConcurrent = maxConcurrent
	if err := s.projects.UpsertProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}
