package domain

import (
	"strings"
	"time"
)

// Project describes a deployable unit and the policy applied to its webhook events.
type Project struct {
	ID            int64
	Name          string
	RepoURL       string
	WebhookSecret string
	Policy        DeploymentPolicy
	Pipeline      []PipelineStep
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeploymentPolicy controls when pushes produce deployments and how many may run at once.
type DeploymentPolicy struct {
	AutoDeploy    bool
	TargetBranch  string
	PathFilters   []string
	MaxConcurrent int
}

// PipelineStep is a configured step handed to the pipeline executor verbatim.
type PipelineStep struct {
	Name    string `json:"name" yaml:"name"`
	Command string `json:"command" yaml:"command"`
}

// Concurrency returns the effective concurrency limit, never below one.
func (p DeploymentPolicy) Concurrency() int {
	if p.MaxConcurrent < 1 {
		return 1
	}
	return p.MaxConcurrent
}

// AcceptsWebhooks reports whether a shared secret is configured.
func (p Project) AcceptsWebhooks() bool {
	return strings.TrimSpace(p.WebhookSecret) != ""
}

// DefaultBranch is the branch used by manual triggers that do not name one.
func (p Project) DefaultBranch() string {
	if branch := strings.TrimSpace(p.Policy.TargetBranch); branch != "" {
		return branch
	}
	return "main"
}
