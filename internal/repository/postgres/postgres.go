package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.ProjectRepository    = (*Repository)(nil)
	_ repository.DeploymentRepository = (*Repository)(nil)
	_ repository.StepRepository       = (*Repository)(nil)
	_ repository.WebhookRepository    = (*Repository)(nil)
)

const projectColumns = `id, name, repo_url, auto_deploy, target_branch, path_filters, max_concurrent, pipeline, created_by, created_at, updated_at`

// UpsertProject inserts a project, or updates it when the identifier already exists.
func (r *Repository) UpsertProject(ctx context.Context, project *domain.Project) error {
	pipeline, err := json.Marshal(project.Pipeline)
	if err != nil {
		return fmt.Errorf("encode pipeline: %w", err)
	}
	filters := project.Policy.PathFilters
	if filters == nil {
		filters = []string{}
	}
	if project.ID == 0 {
		const query = `INSERT INTO projects (name, repo_url, auto_deploy, target_branch, path_filters, max_concurrent, pipeline, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at, updated_at`
		row := r.pool.QueryRow(ctx, query, project.Name, project.RepoURL, project.Policy.AutoDeploy, project.Policy.TargetBranch,
			filters, project.Policy.Concurrency(), pipeline, project.CreatedBy)
		return translate(row.Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt))
	}
	const query = `INSERT INTO projects (id, name, repo_url, auto_deploy, target_branch, path_filters, max_concurrent, pipeline, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			repo_url = EXCLUDED.repo_url,
			auto_deploy = EXCLUDED.auto_deploy,
			target_branch = EXCLUDED.target_branch,
			path_filters = EXCLUDED.path_filters,
			max_concurrent = EXCLUDED.max_concurrent,
			pipeline = EXCLUDED.pipeline,
			updated_at = NOW()
		RETURNING created_at, updated_at`
	row := r.pool.QueryRow(ctx, query, project.ID, project.Name, project.RepoURL, project.Policy.AutoDeploy, project.Policy.TargetBranch,
		filters, project.Policy.Concurrency(), pipeline, project.CreatedBy)
	if err := row.Scan(&project.CreatedAt, &project.UpdatedAt); err != nil {
		return translate(err)
	}
	// explicit ids must not collide with later serial inserts
	const bump = `SELECT setval(pg_get_serial_sequence('projects', 'id'), GREATEST((SELECT MAX(id) FROM projects), 1))`
	_, err = r.pool.Exec(ctx, bump)
	return err
}

// GetProjectByID fetches project details.
func (r *Repository) GetProjectByID(ctx context.Context, projectID int64) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	project, err := scanProject(r.pool.QueryRow(ctx, query, projectID))
	if err != nil {
		return nil, translate(err)
	}
	return project, nil
}

// ListProjects returns every project ordered by identifier.
func (r *Repository) ListProjects(ctx context.Context) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]domain.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *project)
	}
	return projects, rows.Err()
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	var pipeline []byte
	if err := row.Scan(&p.ID, &p.Name, &p.RepoURL, &p.Policy.AutoDeploy, &p.Policy.TargetBranch, &p.Policy.PathFilters,
		&p.Policy.MaxConcurrent, &pipeline, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if len(pipeline) > 0 {
		if err := json.Unmarshal(pipeline, &p.Pipeline); err != nil {
			return nil, fmt.Errorf("decode pipeline for project %d: %w", p.ID, err)
		}
	}
	return &p, nil
}

const deploymentColumns = `id, project_id, status, branch, commit_hash, commit_message, triggered_by, manual_trigger, retry_of,
	started_at, completed_at, duration_ms, error_message, full_log, created_at, updated_at`

// CreateDeployment inserts a deployment record and assigns its identifier.
func (r *Repository) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	const query = `INSERT INTO deployments (project_id, status, branch, commit_hash, commit_message, triggered_by, manual_trigger, retry_of, error_message, full_log)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	row := r.pool.QueryRow(ctx, query,
		deployment.ProjectID,
		string(deployment.Status),
		deployment.Branch,
		deployment.CommitHash,
		deployment.CommitMessage,
		deployment.TriggeredBy,
		deployment.ManualTrigger,
		deployment.RetryOf,
		deployment.ErrorMessage,
		deployment.FullLog,
	)
	return translate(row.Scan(&deployment.ID, &deployment.CreatedAt, &deployment.UpdatedAt))
}

// GetDeploymentByID fetches a deployment by identifier.
func (r *Repository) GetDeploymentByID(ctx context.Context, deploymentID int64) (*domain.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`
	d, err := scanDeployment(r.pool.QueryRow(ctx, query, deploymentID))
	if err != nil {
		return nil, translate(err)
	}
	return d, nil
}

// UpdateDeploymentStatus applies a guarded transition and returns the updated row.
func (r *Repository) UpdateDeploymentStatus(ctx context.Context, update domain.DeploymentStatusUpdate) (*domain.Deployment, error) {
	if len(update.From) == 0 {
		return nil, repository.ErrInvalidArgument
	}
	from := make([]string, 0, len(update.From))
	for _, status := range update.From {
		from = append(from, string(status))
	}
	var durationMS any
	if update.Duration != nil {
		durationMS = update.Duration.Milliseconds()
	}
	query := `UPDATE deployments
		SET status = $2,
			started_at = COALESCE($3::timestamptz, started_at),
			completed_at = COALESCE($4::timestamptz, completed_at),
			duration_ms = COALESCE($5::bigint, duration_ms),
			error_message = CASE WHEN $6::text = '' THEN error_message ELSE $6::text END,
			full_log = full_log || $7::text,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($8::text[])
		RETURNING ` + deploymentColumns
	row := r.pool.QueryRow(ctx, query,
		update.DeploymentID,
		string(update.Status),
		timePtrToNil(update.StartedAt),
		timePtrToNil(update.CompletedAt),
		durationMS,
		update.ErrorMessage,
		update.LogLine,
		from,
	)
	d, err := scanDeployment(row)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, lookupErr := r.GetDeploymentByID(ctx, update.DeploymentID); lookupErr != nil {
		return nil, lookupErr
	}
	return nil, repository.ErrConflict
}

// AppendDeploymentLog appends text to the deployment's full log.
func (r *Repository) AppendDeploymentLog(ctx context.Context, deploymentID int64, text string) error {
	const query = `UPDATE deployments SET full_log = full_log || $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, deploymentID, text)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListDeploymentsByProject fetches recent deployments for a project.
func (r *Repository) ListDeploymentsByProject(ctx context.Context, projectID int64, limit int) ([]domain.Deployment, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE project_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, err
	}
	return collectDeployments(rows)
}

// ListDeploymentsByStatus returns deployments in any of the statuses, oldest first.
func (r *Repository) ListDeploymentsByStatus(ctx context.Context, statuses ...domain.DeploymentStatus) ([]domain.Deployment, error) {
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE status = ANY($1) ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query, values)
	if err != nil {
		return nil, err
	}
	return collectDeployments(rows)
}

func collectDeployments(rows pgx.Rows) ([]domain.Deployment, error) {
	defer rows.Close()
	var deployments []domain.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}

func scanDeployment(row pgx.Row) (*domain.Deployment, error) {
	var d domain.Deployment
	var status string
	var durationMS *int64
	if err := row.Scan(&d.ID, &d.ProjectID, &status, &d.Branch, &d.CommitHash, &d.CommitMessage, &d.TriggeredBy,
		&d.ManualTrigger, &d.RetryOf, &d.StartedAt, &d.CompletedAt, &durationMS, &d.ErrorMessage, &d.FullLog,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Status = domain.DeploymentStatus(status)
	if durationMS != nil {
		duration := time.Duration(*durationMS) * time.Millisecond
		d.Duration = &duration
	}
	return &d, nil
}

// ReplaceSteps swaps the ordered steps of a deployment in one transaction.
func (r *Repository) ReplaceSteps(ctx context.Context, deploymentID int64, steps []domain.DeploymentStep) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM deployment_steps WHERE deployment_id = $1`, deploymentID); err != nil {
		return err
	}
	const insert = `INSERT INTO deployment_steps (deployment_id, position, name, output, error, status)
		VALUES ($1, $2, $3, $4, $5, $6)`
	batch := &pgx.Batch{}
	for i, step := range steps {
		batch.Queue(insert, deploymentID, i, step.Name, step.Output, step.Error, string(step.Status))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return translate(err)
		}
	}
	return tx.Commit(ctx)
}

// ListSteps returns a deployment's steps in pipeline order.
func (r *Repository) ListSteps(ctx context.Context, deploymentID int64) ([]domain.DeploymentStep, error) {
	const query = `SELECT id, deployment_id, position, name, output, error, status, created_at, updated_at
		FROM deployment_steps WHERE deployment_id = $1 ORDER BY position`
	rows, err := r.pool.Query(ctx, query, deploymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]domain.DeploymentStep, 0)
	for rows.Next() {
		var s domain.DeploymentStep
		var status string
		if err := rows.Scan(&s.ID, &s.DeploymentID, &s.Position, &s.Name, &s.Output, &s.Error, &status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Status = domain.DeploymentStatus(status)
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// UpsertWebhook saves a webhook secret.
func (r *Repository) UpsertWebhook(ctx context.Context, projectID int64, secret []byte) error {
	const query = `INSERT INTO project_webhooks (project_id, secret, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (project_id) DO UPDATE SET secret = EXCLUDED.secret`
	_, err := r.pool.Exec(ctx, query, projectID, secret)
	return translate(err)
}

// GetWebhookSecret retrieves the stored secret for a project.
func (r *Repository) GetWebhookSecret(ctx context.Context, projectID int64) ([]byte, error) {
	const query = `SELECT secret FROM project_webhooks WHERE project_id = $1`
	var secret []byte
	if err := r.pool.QueryRow(ctx, query, projectID).Scan(&secret); err != nil {
		return nil, translate(err)
	}
	return secret, nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "22P02", "23514":
			return fmt.Errorf("%w: %s", repository.ErrInvalidArgument, strings.TrimSpace(pgErr.Message))
		case "23503":
			return repository.ErrNotFound
		}
	}
	return err
}

func timePtrToNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
