package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/logger"
)

type fakeBroadcaster struct {
	mu       sync.Mutex
	projects []int64
	payloads [][]byte
}

func (f *fakeBroadcaster) Broadcast(projectID int64, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects = append(f.projects, projectID)
	f.payloads = append(f.payloads, payload)
}

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, _ interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	return redis.NewIntResult(1, f.err)
}

func sampleDeployment() domain.Deployment {
	completed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	duration := 90 * time.Second
	return domain.Deployment{
		ID:           11,
		ProjectID:    3,
		Status:       domain.DeploymentFailed,
		Branch:       "main",
		CommitHash:   "abc",
		TriggeredBy:  domain.TriggeredByWebhook,
		ErrorMessage: "step build failed",
		CompletedAt:  &completed,
		Duration:     &duration,
	}
}

func TestEventFromDeployment(t *testing.T) {
	ev := EventFromDeployment(sampleDeployment())
	assert.Equal(t, int64(90000), ev.DurationMS)
	assert.Equal(t, domain.DeploymentFailed, ev.Status)
	assert.Equal(t, "deployment", ev.Type)
}

func TestDispatcherDeliversToEverySink(t *testing.T) {
	hub := &fakeBroadcaster{}
	pub := &fakePublisher{err: errors.New("redis down")}
	d := NewDispatcher(logger.Discard(), NewHubSink(hub), NewRedisSink(pub, "deploys"))

	d.Dispatch(EventFromDeployment(sampleDeployment()))
	d.Close()

	require.Len(t, hub.payloads, 1)
	assert.Equal(t, []int64{3}, hub.projects)
	var decoded Event
	require.NoError(t, json.Unmarshal(hub.payloads[0], &decoded))
	assert.Equal(t, int64(11), decoded.DeploymentID)
	assert.Equal(t, []string{"deploys:3"}, pub.channels)
}

func TestDispatchAfterCloseIsDropped(t *testing.T) {
	d := NewDispatcher(logger.Discard())
	d.Close()
	assert.NotPanics(t, func() { d.Dispatch(Event{DeploymentID: 1}) })
}

func TestRedisSinkDefaultPrefix(t *testing.T) {
	assert.Equal(t, "deployments:9", NewRedisSink(&fakePublisher{}, "").Channel(9))
}
