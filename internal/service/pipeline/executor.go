// Package pipeline is the contract between the deployment lifecycle and the
// component that runs a project's pipeline steps.
package pipeline

import (
	"context"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
)

// Request asks an executor to run a deployment.
type Request struct {
	Deployment domain.Deployment
	Project    domain.Project
	Steps      []domain.PipelineStep
	// OnOutput receives progress lines while the deployment runs. May be nil.
	OnOutput func(line string)
}

// StepResult is the outcome of one pipeline step.
type StepResult struct {
	Name   string                  `json:"name"`
	Output string                  `json:"output"`
	Error  string                  `json:"error"`
	Status domain.DeploymentStatus `json:"status"`
}

// Result is delivered once per executed deployment.
type Result struct {
	Outcome      domain.DeploymentStatus
	ErrorMessage string
	Steps        []StepResult
}

// Executor runs deployments asynchronously. Execute returns a channel that
// receives exactly one Result unless the deployment is cancelled first.
// Cancel returns nil once the executor acknowledged the cancellation.
type Executor interface {
	Execute(ctx context.Context, req Request) (<-chan Result, error)
	Cancel(ctx context.Context, deploymentID int64) error
}
