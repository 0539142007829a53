package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminalStatusesHaveNoSuccessors(t *testing.T) {
	for _, status := range []DeploymentStatus{DeploymentSuccess, DeploymentFailed, DeploymentCancelled} {
		assert.True(t, status.Terminal(), status)
		for _, next := range []DeploymentStatus{DeploymentPending, DeploymentQueued, DeploymentInProgress, DeploymentSuccess, DeploymentFailed, DeploymentCancelled} {
			assert.False(t, status.CanTransitionTo(next), "%s -> %s", status, next)
		}
	}
}

func TestLifecycleTransitions(t *testing.T) {
	assert.True(t, DeploymentPending.CanTransitionTo(DeploymentQueued))
	assert.True(t, DeploymentQueued.CanTransitionTo(DeploymentInProgress))
	assert.True(t, DeploymentInProgress.CanTransitionTo(DeploymentSuccess))
	assert.False(t, DeploymentPending.CanTransitionTo(DeploymentSuccess))
	assert.False(t, DeploymentQueued.CanTransitionTo(DeploymentSuccess))
	assert.False(t, DeploymentInProgress.CanTransitionTo(DeploymentQueued))
}

func TestPredecessorsOfCancelled(t *testing.T) {
	assert.Equal(t,
		[]DeploymentStatus{DeploymentPending, DeploymentQueued, DeploymentInProgress},
		PredecessorsOf(DeploymentCancelled))
	assert.Equal(t, []DeploymentStatus{DeploymentInProgress}, PredecessorsOf(DeploymentSuccess))
	assert.Empty(t, PredecessorsOf(DeploymentPending))
}

func TestWebhookEventBranch(t *testing.T) {
	assert.Equal(t, "main", WebhookEvent{RefName: "refs/heads/main"}.Branch())
	assert.Equal(t, "feature/x", WebhookEvent{RefName: "refs/heads/feature/x"}.Branch())
	assert.Equal(t, UnknownBranch, WebhookEvent{RefName: "refs/tags/v1.0.0"}.Branch())
	assert.Equal(t, UnknownBranch, WebhookEvent{RefName: "main"}.Branch())
}

func TestWebhookEventChangedFilesUnion(t *testing.T) {
	event := WebhookEvent{Commits: []Commit{
		{Added: []string{"a.go"}, Modified: []string{"b.go"}, Removed: []string{"c.go"}},
		{Modified: []string{"a.go", "d.go"}},
	}}
	assert.Equal(t, []string{"a.go", "b.go", "d.go"}, event.ChangedFiles())
}
