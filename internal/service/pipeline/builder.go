package pipeline

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
)

// BuilderTokenHeader authenticates calls between the API and the builder.
const BuilderTokenHeader = "X-Builder-Token"

var (
	// ErrUnknownDeployment is returned for callbacks nobody waits for.
	ErrUnknownDeployment = errors.New("pipeline: no execution awaiting this deployment")
	// ErrInvalidCallback is returned for malformed callbacks.
	ErrInvalidCallback = errors.New("pipeline: invalid callback")
)

// Callback is posted by the builder for progress and completion.
type Callback struct {
	DeploymentID int64        `json:"deployment_id"`
	Status       string       `json:"status"`
	Message      string       `json:"message"`
	Error        string       `json:"error"`
	Steps        []StepResult `json:"steps"`
}

type waiter struct {
	results  chan Result
	onOutput func(string)
}

// BuilderExecutor runs deployments on the remote builder service over HTTP.
type BuilderExecutor struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger

	mu      sync.Mutex
	waiters map[int64]*waiter
}

// NewBuilderExecutor constructs a BuilderExecutor.
func NewBuilderExecutor(baseURL, token string, timeout time.Duration, logger *slog.Logger) *BuilderExecutor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BuilderExecutor{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "builder_executor"),
		waiters: make(map[int64]*waiter),
	}
}

type deployRequest struct {
	DeploymentID  int64                 `json:"deployment_id"`
	ProjectID     int64                 `json:"project_id"`
	RepoURL       string                `json:"repo_url"`
	Branch        string                `json:"branch"`
	CommitHash    string                `json:"commit_hash"`
	CommitMessage string                `json:"commit_message"`
	Steps         []domain.PipelineStep `json:"steps"`
}

// Execute submits the deployment to the builder. The result arrives through Deliver.
func (b *BuilderExecutor) Execute(ctx context.Context, req Request) (<-chan Result, error) {
	id := req.Deployment.ID
	w := &waiter{results: make(chan Result, 1), onOutput: req.OnOutput}

	b.mu.Lock()
	if _, busy := b.waiters[id]; busy {
		b.mu.Unlock()
		return nil, fmt.Errorf("deployment %d is already executing", id)
	}
	b.waiters[id] = w
	b.mu.Unlock()

	steps := req.Steps
	if steps == nil {
		steps = []domain.PipelineStep{}
	}
	err := b.post(ctx, "/deploy", deployRequest{
		DeploymentID:  id,
		ProjectID:     req.Project.ID,
		RepoURL:       req.Project.RepoURL,
		Branch:        req.Deployment.Branch,
		CommitHash:    req.Deployment.CommitHash,
		CommitMessage: req.Deployment.CommitMessage,
		Steps:         steps,
	})
	if err != nil {
		b.forget(id)
		b.logger.Error("builder request failed", "deployment_id", id, "error", err)
		return nil, err
	}
	b.logger.Info("builder accepted deployment", "deployment_id", id, "project_id", req.Project.ID)
	return w.results, nil
}

// Cancel asks the builder to stop a deployment. A nil error is the builder's
// acknowledgement; later callbacks for the deployment are ignored.
func (b *BuilderExecutor) Cancel(ctx context.Context, deploymentID int64) error {
	b.forget(deploymentID)
	if err := b.post(ctx, fmt.Sprintf("/deploy/%d/cancel", deploymentID), nil); err != nil {
		return fmt.Errorf("cancel deployment %d: %w", deploymentID, err)
	}
	b.logger.Info("builder acknowledged cancellation", "deployment_id", deploymentID)
	return nil
}

// CheckToken compares a callback token with the configured one in constant time.
// Any token is accepted when none is configured.
func (b *BuilderExecutor) CheckToken(provided string) bool {
	if b.token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(b.token)) == 1
}

// Deliver routes a builder callback to the waiting execution. Progress
// callbacks feed OnOutput; terminal callbacks complete the execution.
func (b *BuilderExecutor) Deliver(cb Callback) error {
	if cb.DeploymentID <= 0 {
		return fmt.Errorf("%w: deployment_id required", ErrInvalidCallback)
	}
	outcome, terminal, err := mapBuilderStatus(cb.Status)
	if err != nil {
		return err
	}

	b.mu.Lock()
	w, ok := b.waiters[cb.DeploymentID]
	if ok && terminal {
		delete(b.waiters, cb.DeploymentID)
	}
	b.mu.Unlock()
	if !ok {
		return ErrUnknownDeployment
	}

	if !terminal {
		if w.onOutput != nil && strings.TrimSpace(cb.Message) != "" {
			w.onOutput(cb.Message)
		}
		return nil
	}
	res := Result{Outcome: outcome, ErrorMessage: cb.Error, Steps: cb.Steps}
	if outcome == domain.DeploymentFailed && res.ErrorMessage == "" {
		res.ErrorMessage = strings.TrimSpace(cb.Message)
	}
	w.results <- res
	return nil
}

func (b *BuilderExecutor) forget(deploymentID int64) {
	b.mu.Lock()
	delete(b.waiters, deploymentID)
	b.mu.Unlock()
}

func (b *BuilderExecutor) post(ctx context.Context, path string, body any) error {
	var payload io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set(BuilderTokenHeader, b.token)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("builder returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

func mapBuilderStatus(raw string) (domain.DeploymentStatus, bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "succeeded":
		return domain.DeploymentSuccess, true, nil
	case "failed", "error":
		return domain.DeploymentFailed, true, nil
	case "cancelled", "canceled":
		return domain.DeploymentCancelled, true, nil
	case "running", "progress", "log", "":
		return domain.DeploymentInProgress, false, nil
	}
	return "", false, fmt.Errorf("%w: unknown status %q", ErrInvalidCallback, raw)
}
