package httpx

import (
	"time"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
)

type deploymentResponse struct {
	ID            int64                   `json:"id"`
	ProjectID     int64                   `json:"project_id"`
	Status        domain.DeploymentStatus `json:"status"`
	Branch        string                  `json:"branch"`
	CommitHash    string                  `json:"commit_hash"`
	CommitMessage string                  `json:"commit_message,omitempty"`
	TriggeredBy   string                  `json:"triggered_by"`
	ManualTrigger bool                    `json:"manual_trigger"`
	RetryOf       *int64                  `json:"retry_of,omitempty"`
	StartedAt     *time.Time              `json:"started_at,omitempty"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
	DurationMS    *int64                  `json:"duration_ms,omitempty"`
	ErrorMessage  string                  `json:"error_message,omitempty"`
	FullLog       string                  `json:"full_log,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	Steps         []stepResponse          `json:"steps,omitempty"`
}

type stepResponse struct {
	Position int                     `json:"position"`
	Name     string                  `json:"name"`
	Status   domain.DeploymentStatus `json:"status"`
	Output   string                  `json:"output,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

type projectResponse struct {
	ID            int64                 `json:"id"`
	Name          string                `json:"name"`
	RepoURL       string                `json:"repo_url"`
	AutoDeploy    bool                  `json:"auto_deploy"`
	TargetBranch  string                `json:"target_branch"`
	PathFilters   []string              `json:"path_filters"`
	MaxConcurrent int                   `json:"max_concurrent"`
	Pipeline      []domain.PipelineStep `json:"pipeline"`
}

func deploymentView(d domain.Deployment, withLog bool) deploymentResponse {
	out := deploymentResponse{
		ID:            d.ID,
		ProjectID:     d.ProjectID,
		Status:        d.Status,
		Branch:        d.Branch,
		CommitHash:    d.CommitHash,
		CommitMessage: d.CommitMessage,
		TriggeredBy:   d.TriggeredBy,
		ManualTrigger: d.ManualTrigger,
		RetryOf:       d.RetryOf,
		StartedAt:     d.StartedAt,
		CompletedAt:   d.CompletedAt,
		ErrorMessage:  d.ErrorMessage,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.Duration != nil {
		ms := d.Duration.Milliseconds()
		out.DurationMS = &ms
	}
	if withLog {
		out.FullLog = d.FullLog
	}
	return out
}

func deploymentViews(list []domain.Deployment) []deploymentResponse {
	out := make([]deploymentResponse, 0, len(list))
	for _, d := range list {
		out = append(out, deploymentView(d, false))
	}
	return out
}

func stepViews(steps []domain.DeploymentStep) []stepResponse {
	out := make([]stepResponse, 0, len(steps))
	for _, s := range steps {
		out = append(out, stepResponse{Position: s.Position, Name: s.Name, Status: s.Status, Output: s.Output, Error: s.Error})
	}
	return out
}

func projectView(p domain.Project) projectResponse {
	filters := p.Policy.PathFilters
	if filters == nil {
		filters = []string{}
	}
	pipeline := p.Pipeline
	if pipeline == nil {
		pipeline = []domain.PipelineStep{}
	}
	return projectResponse{
		ID:            p.ID,
		Name:          p.Name,
		RepoURL:       p.RepoURL,
		AutoDeploy:    p.Policy.AutoDeploy,
		TargetBranch:  p.Policy.TargetBranch,
		PathFilters:   filters,
		MaxConcurrent: p.Policy.Concurrency(),
		Pipeline:      pipeline,
	}
}
