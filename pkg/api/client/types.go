package client

import "time"

// Step is one pipeline step of a deployment.
type Step struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Deployment mirrors the API deployment payload.
type Deployment struct {
	ID            int64      `json:"id"`
	ProjectID     int64      `json:"project_id"`
	Status        string     `json:"status"`
	Branch        string     `json:"branch"`
	CommitHash    string     `json:"commit_hash"`
	CommitMessage string     `json:"commit_message,omitempty"`
	TriggeredBy   string     `json:"triggered_by"`
	ManualTrigger bool       `json:"manual_trigger"`
	RetryOf       *int64     `json:"retry_of,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DurationMS    *int64     `json:"duration_ms,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	FullLog       string     `json:"full_log,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Steps         []Step     `json:"steps,omitempty"`
}

// Project describes a configured repository.
type Project struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	RepoURL       string   `json:"repo_url"`
	AutoDeploy    bool     `json:"auto_deploy"`
	TargetBranch  string   `json:"target_branch"`
	PathFilters   []string `json:"path_filters"`
	MaxConcurrent int      `json:"max_concurrent"`
}

// QueueStatus is the snapshot of one project queue.
type QueueStatus struct {
	ProjectID     int64   `json:"project_id"`
	QueueLength   int     `json:"queue_length"`
	Running       int     `json:"running"`
	IsRunning     bool    `json:"is_running"`
	MaxConcurrent int     `json:"max_concurrent"`
	Pending       []int64 `json:"pending"`
	Active        []int64 `json:"active"`
}

// TriggerInput requests a manual deployment. Empty fields fall back to the
// project's default branch and the server's placeholder commit.
type TriggerInput struct {
	Branch  string `json:"branch,omitempty"`
	Commit  string `json:"commit,omitempty"`
	Message string `json:"message,omitempty"`
}
