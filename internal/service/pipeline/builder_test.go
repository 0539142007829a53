package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/logger"
)

type builderStub struct {
	mu       sync.Mutex
	paths    []string
	tokens   []string
	requests []deployRequest
	status   int
}

func (s *builderStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, r.URL.Path)
	s.tokens = append(s.tokens, r.Header.Get(BuilderTokenHeader))
	if r.URL.Path == "/deploy" {
		var req deployRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.requests = append(s.requests, req)
	}
	status := s.status
	if status == 0 {
		status = http.StatusAccepted
	}
	w.WriteHeader(status)
}

func (s *builderStub) snapshot() ([]string, []string, []deployRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...), append([]string(nil), s.tokens...), append([]deployRequest(nil), s.requests...)
}

func newStubbedExecutor(t *testing.T, stub *builderStub) *BuilderExecutor {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return NewBuilderExecutor(srv.URL+"/", "tok", time.Second, logger.Discard())
}

func sampleRequest(id int64) Request {
	return Request{
		Deployment: domain.Deployment{ID: id, ProjectID: 2, Branch: "main", CommitHash: "abc"},
		Project:    domain.Project{ID: 2, RepoURL: "https://github.com/acme/app"},
		Steps:      []domain.PipelineStep{{Name: "build", Command: "make"}},
	}
}

func TestExecuteAndDeliver(t *testing.T) {
	stub := &builderStub{}
	exec := newStubbedExecutor(t, stub)

	var lines []string
	req := sampleRequest(5)
	req.OnOutput = func(line string) { lines = append(lines, line) }
	results, err := exec.Execute(context.Background(), req)
	require.NoError(t, err)

	_, tokens, requests := stub.snapshot()
	require.Len(t, requests, 1)
	assert.Equal(t, int64(5), requests[0].DeploymentID)
	assert.Equal(t, "make", requests[0].Steps[0].Command)
	assert.Equal(t, []string{"tok"}, tokens)

	require.NoError(t, exec.Deliver(Callback{DeploymentID: 5, Status: "running", Message: "cloning"}))
	require.NoError(t, exec.Deliver(Callback{
		DeploymentID: 5,
		Status:       "success",
		Steps:        []StepResult{{Name: "build", Output: "ok", Status: domain.DeploymentSuccess}},
	}))
	assert.Equal(t, []string{"cloning"}, lines)

	res := <-results
	assert.Equal(t, domain.DeploymentSuccess, res.Outcome)
	require.Len(t, res.Steps, 1)

	assert.ErrorIs(t, exec.Deliver(Callback{DeploymentID: 5, Status: "success"}), ErrUnknownDeployment)
}

func TestExecuteBuilderRejects(t *testing.T) {
	stub := &builderStub{status: http.StatusServiceUnavailable}
	exec := newStubbedExecutor(t, stub)

	_, err := exec.Execute(context.Background(), sampleRequest(6))
	require.Error(t, err)
	assert.ErrorIs(t, exec.Deliver(Callback{DeploymentID: 6, Status: "failed"}), ErrUnknownDeployment)
}

func TestCancelForgetsExecution(t *testing.T) {
	stub := &builderStub{}
	exec := newStubbedExecutor(t, stub)

	_, err := exec.Execute(context.Background(), sampleRequest(7))
	require.NoError(t, err)
	require.NoError(t, exec.Cancel(context.Background(), 7))
	paths, _, _ := stub.snapshot()
	assert.Equal(t, []string{"/deploy", "/deploy/7/cancel"}, paths)

	assert.ErrorIs(t, exec.Deliver(Callback{DeploymentID: 7, Status: "success"}), ErrUnknownDeployment)
}

func TestDeliverValidation(t *testing.T) {
	exec := NewBuilderExecutor("http://builder", "", time.Second, logger.Discard())
	assert.ErrorIs(t, exec.Deliver(Callback{Status: "success"}), ErrInvalidCallback)
	assert.ErrorIs(t, exec.Deliver(Callback{DeploymentID: 1, Status: "exploded"}), ErrInvalidCallback)
}

func TestFailedCallbackFallsBackToMessage(t *testing.T) {
	exec := newStubbedExecutor(t, &builderStub{})
	results, err := exec.Execute(context.Background(), sampleRequest(8))
	require.NoError(t, err)

	require.NoError(t, exec.Deliver(Callback{DeploymentID: 8, Status: "failed", Message: "npm ERR!"}))
	res := <-results
	assert.Equal(t, domain.DeploymentFailed, res.Outcome)
	assert.Equal(t, "npm ERR!", res.ErrorMessage)
}

func TestCheckToken(t *testing.T) {
	open := NewBuilderExecutor("http://builder", "", time.Second, logger.Discard())
	assert.True(t, open.CheckToken("anything"))

	locked := NewBuilderExecutor("http://builder", "tok", time.Second, logger.Discard())
	assert.True(t, locked.CheckToken("tok"))
	assert.False(t, locked.CheckToken("tok2"))
	assert.False(t, locked.CheckToken(""))
}
