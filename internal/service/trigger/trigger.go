// Package trigger decides whether a canonical webhook event produces a deployment.
package trigger

import (
	"strings"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
)

// Reasons reported when an event does not deploy.
const (
	ReasonAutoDeployDisabled = "auto-deploy disabled"
	ReasonBranchMismatch     = "branch mismatch"
	ReasonRepositoryMismatch = "repository URL mismatch"
	ReasonNoWatchedChanges   = "no changes in watched paths"
)

// Decision is the outcome of ShouldTrigger. Reason is empty when ShouldDeploy is true.
type Decision struct {
	ShouldDeploy bool   `json:"should_deploy"`
	Reason       string `json:"reason,omitempty"`
}

func skip(reason string) Decision {
	return Decision{Reason: reason}
}

// ShouldTrigger applies the project's policy to event. Checks run in a fixed
// order and the first failing check names the reason.
func ShouldTrigger(project domain.Project, event domain.WebhookEvent) Decision {
	policy := project.Policy
	if !policy.AutoDeploy {
		return skip(ReasonAutoDeployDisabled)
	}
	if event.Branch() != policy.TargetBranch {
		return skip(ReasonBranchMismatch)
	}
	if NormalizeRepoURL(event.RepositoryURL) != NormalizeRepoURL(project.RepoURL) {
		return skip(ReasonRepositoryMismatch)
	}
	if len(policy.PathFilters) > 0 && !anyMatch(policy.PathFilters, event.ChangedFiles()) {
		return skip(ReasonNoWatchedChanges)
	}
	return Decision{ShouldDeploy: true}
}

// NormalizeRepoURL reduces https, ssh and scp-style clone URLs of the same
// repository to one comparable host/path form.
func NormalizeRepoURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	for _, scheme := range []string{"https://", "http://", "ssh://", "git://"} {
		if strings.HasPrefix(u, scheme) {
			u = strings.TrimPrefix(u, scheme)
			break
		}
	}
	if at := strings.Index(u, "@"); at >= 0 && at < strings.Index(u+"/", "/") {
		u = u[at+1:]
	}
	// scp form host:owner/repo; a numeric port after ssh:// stays host:port/...
	if colon := strings.Index(u, ":"); colon >= 0 {
		slash := strings.Index(u, "/")
		if slash < 0 || colon < slash {
			rest := u[colon+1:]
			if port, path, ok := strings.Cut(rest, "/"); ok && isDigits(port) {
				u = u[:colon] + "/" + path
			} else {
				u = u[:colon] + "/" + rest
			}
		}
	}
	u = strings.TrimRight(u, "/")
	u = strings.TrimSuffix(u, ".git")
	return strings.TrimRight(u, "/")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
