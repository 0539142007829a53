// Package memory is an in-process repository used by tests and by the API
// when no database is configured.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository"
)

// Repository keeps every record in maps guarded by a single mutex.
type Repository struct {
	mu          sync.Mutex
	now         func() time.Time
	projects    map[int64]domain.Project
	deployments map[int64]domain.Deployment
	steps       map[int64][]domain.DeploymentStep
	webhooks    map[int64][]byte
	nextProject int64
	nextDeploy  int64
	nextStep    int64
}

var (
	_ repository.ProjectRepository    = (*Repository)(nil)
	_ repository.DeploymentRepository = (*Repository)(nil)
	_ repository.StepRepository       = (*Repository)(nil)
	_ repository.WebhookRepository    = (*Repository)(nil)
)

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{
		now:         time.Now,
		projects:    make(map[int64]domain.Project),
		deployments: make(map[int64]domain.Deployment),
		steps:       make(map[int64][]domain.DeploymentStep),
		webhooks:    make(map[int64][]byte),
	}
}

// UpsertProject inserts or replaces a project.
func (r *Repository) UpsertProject(_ context.Context, project *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if project.ID == 0 {
		r.nextProject++
		project.ID = r.nextProject
	} else if project.ID > r.nextProject {
		r.nextProject = project.ID
	}
	if existing, ok := r.projects[project.ID]; ok {
		project.CreatedAt = existing.CreatedAt
	} else {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	stored := *project
	stored.Policy.PathFilters = slices.Clone(project.Policy.PathFilters)
	stored.Pipeline = slices.Clone(project.Pipeline)
	r.projects[project.ID] = stored
	return nil
}

// GetProjectByID fetches project details.
func (r *Repository) GetProjectByID(_ context.Context, projectID int64) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[projectID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p.Policy.PathFilters = slices.Clone(p.Policy.PathFilters)
	p.Pipeline = slices.Clone(p.Pipeline)
	return &p, nil
}

// ListProjects returns every project ordered by identifier.
func (r *Repository) ListProjects(_ context.Context) ([]domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateDeployment stores a deployment and assigns its identifier.
func (r *Repository) CreateDeployment(_ context.Context, deployment *domain.Deployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[deployment.ProjectID]; !ok {
		return repository.ErrNotFound
	}
	r.nextDeploy++
	now := r.now().UTC()
	deployment.ID = r.nextDeploy
	deployment.CreatedAt = now
	deployment.UpdatedAt = now
	r.deployments[deployment.ID] = *deployment
	return nil
}

// GetDeploymentByID fetches a deployment by identifier.
func (r *Repository) GetDeploymentByID(_ context.Context, deploymentID int64) (*domain.Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.deployments[deploymentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

// UpdateDeploymentStatus applies the transition only when the current status is in update.From.
func (r *Repository) UpdateDeploymentStatus(_ context.Context, update domain.DeploymentStatusUpdate) (*domain.Deployment, error) {
	if len(update.From) == 0 {
		return nil, repository.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.deployments[update.DeploymentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !slices.Contains(update.From, d.Status) {
		return nil, repository.ErrConflict
	}
	d.Status = update.Status
	if update.StartedAt != nil {
		d.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		d.CompletedAt = update.CompletedAt
	}
	if update.Duration != nil {
		d.Duration = update.Duration
	}
	if update.ErrorMessage != "" {
		d.ErrorMessage = update.ErrorMessage
	}
	d.FullLog += update.LogLine
	d.UpdatedAt = r.now().UTC()
	r.deployments[d.ID] = d
	return &d, nil
}

// AppendDeploymentLog appends text to the deployment's full log.
func (r *Repository) AppendDeploymentLog(_ context.Context, deploymentID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.deployments[deploymentID]
	if !ok {
		return repository.ErrNotFound
	}
	var b strings.Builder
	b.WriteString(d.FullLog)
	b.WriteString(text)
	d.FullLog = b.String()
	r.deployments[deploymentID] = d
	return nil
}

// ListDeploymentsByProject returns the newest deployments of a project first.
func (r *Repository) ListDeploymentsByProject(_ context.Context, projectID int64, limit int) ([]domain.Deployment, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Deployment
	for _, d := range r.deployments {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListDeploymentsByStatus returns deployments in any of the statuses, oldest first.
func (r *Repository) ListDeploymentsByStatus(_ context.Context, statuses ...domain.DeploymentStatus) ([]domain.Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Deployment
	for _, d := range r.deployments {
		if slices.Contains(statuses, d.Status) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ReplaceSteps swaps the ordered steps of a deployment.
func (r *Repository) ReplaceSteps(_ context.Context, deploymentID int64, steps []domain.DeploymentStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.deployments[deploymentID]; !ok {
		return repository.ErrNotFound
	}
	now := r.now().UTC()
	stored := make([]domain.DeploymentStep, len(steps))
	for i, step := range steps {
		r.nextStep++
		step.ID = r.nextStep
		step.DeploymentID = deploymentID
		step.Position = i
		step.CreatedAt = now
		step.UpdatedAt = now
		stored[i] = step
	}
	r.steps[deploymentID] = stored
	return nil
}

// ListSteps returns a deployment's steps in pipeline order.
func (r *Repository) ListSteps(_ context.Context, deploymentID int64) ([]domain.DeploymentStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.steps[deploymentID]), nil
}

// UpsertWebhook saves a webhook secret.
func (r *Repository) UpsertWebhook(_ context.Context, projectID int64, secret []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[projectID]; !ok {
		return repository.ErrNotFound
	}
	r.webhooks[projectID] = slices.Clone(secret)
	return nil
}

// GetWebhookSecret retrieves the stored secret for a project.
func (r *Repository) GetWebhookSecret(_ context.Context, projectID int64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	secret, ok := r.webhooks[projectID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return slices.Clone(secret), nil
}
