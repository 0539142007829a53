package domain

import "time"

// DeploymentLogLine is a single line appended to a deployment's log and
// streamed to live subscribers of its project.
type DeploymentLogLine struct {
	DeploymentID int64
	ProjectID    int64
	Level        string
	Message      string
	CreatedAt    time.Time
}
