package webhook

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/trigger"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/logger"
)

type stubProjects map[int64]domain.Project

func (s stubProjects) Get(_ context.Context, id int64) (*domain.Project, error) {
	p, ok := s[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

type stubDeployer struct {
	events []domain.WebhookEvent
	err    error
}

func (s *stubDeployer) TriggerFromEvent(_ context.Context, project domain.Project, event domain.WebhookEvent) (*domain.Deployment, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.events = append(s.events, event)
	return &domain.Deployment{ID: 7, ProjectID: project.ID, Branch: event.Branch(), CommitHash: event.AfterSHA}, nil
}

const ingestBody = `{"ref":"refs/heads/main","after":"abc123","repository":{"clone_url":"https://github.com/acme/app.git"}}`

func newIngestFixture() (*Ingestor, *stubDeployer) {
	projects := stubProjects{
		1: {
			ID:            1,
			RepoURL:       "git@github.com:acme/app.git",
			WebhookSecret: "s3cret",
			Policy:        domain.DeploymentPolicy{AutoDeploy: true, TargetBranch: "main", MaxConcurrent: 1},
		},
		2: {ID: 2, RepoURL: "https://github.com/acme/other"},
	}
	deployer := &stubDeployer{}
	return NewIngestor(projects, deployer, logger.Discard()), deployer
}

func signedDelivery(projectID int64, body, secret, eventType string) Delivery {
	h := http.Header{}
	h.Set(SignatureHeader, Sign([]byte(body), secret))
	if eventType != "" {
		h.Set(EventTypeHeader, eventType)
	}
	return Delivery{ProjectID: projectID, Header: h, Body: []byte(body)}
}

func TestIngestTriggersDeployment(t *testing.T) {
	ing, deployer := newIngestFixture()
	d := signedDelivery(1, ingestBody, "s3cret", "push")
	d.Header.Set(DeliveryHeader, "delivery-1")

	out, err := ing.Ingest(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "delivery-1", out.DeliveryID)
	assert.True(t, out.Processed)
	assert.True(t, out.DeploymentTriggered)
	require.NotNil(t, out.Deployment)
	assert.Equal(t, "abc123", out.Deployment.CommitHash)
	require.Len(t, deployer.events, 1)
}

func TestIngestRejectsSignatures(t *testing.T) {
	ing, deployer := newIngestFixture()
	ctx := context.Background()

	_, err := ing.Ingest(ctx, Delivery{ProjectID: 1, Header: http.Header{}, Body: []byte(ingestBody)})
	require.ErrorIs(t, err, ErrMissingSignature)

	_, err = ing.Ingest(ctx, signedDelivery(1, ingestBody, "wrong", ""))
	require.ErrorIs(t, err, ErrInvalidSignature)

	_, err = ing.Ingest(ctx, signedDelivery(2, ingestBody, "any", ""))
	require.ErrorIs(t, err, ErrWebhooksDisabled)

	_, err = ing.Ingest(ctx, signedDelivery(99, ingestBody, "s3cret", ""))
	require.ErrorIs(t, err, repository.ErrNotFound)

	assert.Empty(t, deployer.events)
}

func TestIngestIgnoresUnprocessedEventTypes(t *testing.T) {
	ing, _ := newIngestFixture()
	out, err := ing.Ingest(context.Background(), signedDelivery(1, `{"zen":"hi"}`, "s3cret", "ping"))
	require.NoError(t, err)
	assert.False(t, out.Processed)
	assert.False(t, out.DeploymentTriggered)
	assert.Contains(t, out.Reason, "ping")
	assert.NotEmpty(t, out.DeliveryID)
}

func TestIngestReportsIgnoredEvents(t *testing.T) {
	ing, _ := newIngestFixture()
	body := `{"action":"completed","workflow_run":{"conclusion":"failure","head_branch":"main","head_sha":"abc"}}`
	out, err := ing.Ingest(context.Background(), signedDelivery(1, body, "s3cret", "workflow_run"))
	require.NoError(t, err)
	assert.False(t, out.Processed)
	assert.NotEmpty(t, out.Reason)
}

func TestIngestRejectsMalformedPayload(t *testing.T) {
	ing, _ := newIngestFixture()
	_, err := ing.Ingest(context.Background(), signedDelivery(1, `{"ref":"refs/heads/main"}`, "s3cret", ""))
	require.ErrorIs(t, err, ErrNormalization)
}

func TestIngestReportsNegativeDecision(t *testing.T) {
	ing, deployer := newIngestFixture()
	body := `{"ref":"refs/heads/develop","after":"abc123","repository":{"clone_url":"https://github.com/acme/app.git"}}`
	out, err := ing.Ingest(context.Background(), signedDelivery(1, body, "s3cret", ""))
	require.NoError(t, err)
	assert.True(t, out.Processed)
	assert.False(t, out.DeploymentTriggered)
	assert.Equal(t, trigger.ReasonBranchMismatch, out.Reason)
	assert.Empty(t, deployer.events)
}

func TestIngestPropagatesDeployerErrors(t *testing.T) {
	ing, deployer := newIngestFixture()
	deployer.err = errors.New("queue unavailable")
	_, err := ing.Ingest(context.Background(), signedDelivery(1, ingestBody, "s3cret", ""))
	require.EqualError(t, err, "queue unavailable")
}
