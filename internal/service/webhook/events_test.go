package webhook

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventTypeFromHeader(t *testing.T) {
	h := http.Header{}
	got, ok := EventTypeFromHeader(h)
	assert.True(t, ok)
	assert.Equal(t, EventPush, got)

	h.Set(GitHubEventTypeHeader, "release")
	got, ok = EventTypeFromHeader(h)
	assert.True(t, ok)
	assert.Equal(t, EventRelease, got)

	h.Set(EventTypeHeader, "Workflow_Run")
	got, ok = EventTypeFromHeader(h)
	assert.True(t, ok)
	assert.Equal(t, EventWorkflowRun, got)

	h.Set(EventTypeHeader, "issues")
	got, ok = EventTypeFromHeader(h)
	assert.False(t, ok)
	assert.Equal(t, EventType("issues"), got)
}
