package domain

import "time"

// DeploymentStatus is a node of the deployment state machine.
type DeploymentStatus string

// Deployment statuses.
const (
	DeploymentPending    DeploymentStatus = "pending"
	DeploymentQueued     DeploymentStatus = "queued"
	DeploymentInProgress DeploymentStatus = "in_progress"
	DeploymentSuccess    DeploymentStatus = "success"
	DeploymentFailed     DeploymentStatus = "failed"
	DeploymentCancelled  DeploymentStatus = "cancelled"
)

// TriggeredByWebhook marks deployments created from source-control events.
const TriggeredByWebhook = "github-webhook"

// DefaultManualCommit is recorded when a manual trigger names no commit.
const DefaultManualCommit = "HEAD"

var transitions = map[DeploymentStatus][]DeploymentStatus{
	DeploymentPending:    {DeploymentQueued, DeploymentFailed, DeploymentCancelled},
	DeploymentQueued:     {DeploymentInProgress, DeploymentFailed, DeploymentCancelled},
	DeploymentInProgress: {DeploymentSuccess, DeploymentFailed, DeploymentCancelled},
}

// Terminal reports whether no further transition is permitted.
func (s DeploymentStatus) Terminal() bool {
	switch s {
	case DeploymentSuccess, DeploymentFailed, DeploymentCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s DeploymentStatus) Valid() bool {
	switch s {
	case DeploymentPending, DeploymentQueued, DeploymentInProgress,
		DeploymentSuccess, DeploymentFailed, DeploymentCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s DeploymentStatus) CanTransitionTo(next DeploymentStatus) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// PredecessorsOf lists every status that may legally move to target.
func PredecessorsOf(target DeploymentStatus) []DeploymentStatus {
	var from []DeploymentStatus
	for _, status := range []DeploymentStatus{DeploymentPending, DeploymentQueued, DeploymentInProgress} {
		if status.CanTransitionTo(target) {
			from = append(from, status)
		}
	}
	return from
}

// Deployment captures a single deployment attempt.
type Deployment struct {
	ID            int64
	ProjectID     int64
	Status        DeploymentStatus
	Branch        string
	CommitHash    string
	CommitMessage string
	TriggeredBy   string
	ManualTrigger bool
	RetryOf       *int64
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Duration      *time.Duration
	ErrorMessage  string
	FullLog       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeploymentStatusUpdate is a guarded transition. It applies only while the
// stored status is one of From.
type DeploymentStatusUpdate struct {
	DeploymentID int64
	From         []DeploymentStatus
	Status       DeploymentStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Duration     *time.Duration
	ErrorMessage string
	LogLine      string
}

// DeploymentStep records one pipeline step of a deployment.
type DeploymentStep struct {
	ID           int64
	DeploymentID int64
	Position     int
	Name         string
	Output       string
	Error        string
	Status       DeploymentStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
