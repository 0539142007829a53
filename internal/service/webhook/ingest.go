package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/trigger"
)

// DeliveryHeader carries the sender's delivery id when present.
const DeliveryHeader = "X-GitHub-Delivery"

var (
	// ErrMissingSignature is returned for deliveries without a signature header.
	ErrMissingSignature = errors.New("webhook: missing signature")
	// ErrInvalidSignature is returned when the signature does not verify.
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	// ErrWebhooksDisabled is returned for projects without a webhook secret.
	ErrWebhooksDisabled = errors.New("webhook: project does not accept webhooks")
)

// ProjectSource resolves a project with its webhook secret.
type ProjectSource interface {
	Get(ctx context.Context, projectID int64) (*domain.Project, error)
}

// Deployer creates a deployment for an accepted event.
type Deployer interface {
	TriggerFromEvent(ctx context.Context, project domain.Project, event domain.WebhookEvent) (*domain.Deployment, error)
}

// Delivery is one inbound webhook request.
type Delivery struct {
	ProjectID int64
	Header    http.Header
	Body      []byte
}

// Outcome describes how a delivery was handled.
type Outcome struct {
	DeliveryID          string             `json:"delivery_id"`
	Processed           bool               `json:"processed"`
	DeploymentTriggered bool               `json:"deployment_triggered"`
	Reason              string             `json:"reason,omitempty"`
	Deployment          *domain.Deployment `json:"-"`
}

// Ingestor runs a delivery through verification, normalization and the
// trigger decision.
type Ingestor struct {
	projects ProjectSource
	deployer Deployer
	logger   *slog.Logger
}

// NewIngestor constructs an Ingestor.
func NewIngestor(projects ProjectSource, deployer Deployer, logger *slog.Logger) *Ingestor {
	return &Ingestor{projects: projects, deployer: deployer, logger: logger.With("component", "webhook_ingest")}
}

// Ingest handles a delivery. Signature failures and unknown projects are
// returned as errors; ignored events and negative decisions are reported in
// the outcome.
func (i *Ingestor) Ingest(ctx context.Context, d Delivery) (Outcome, error) {
	out := Outcome{DeliveryID: strings.TrimSpace(d.Header.Get(DeliveryHeader))}
	if out.DeliveryID == "" {
		out.DeliveryID = uuid.NewString()
	}
	log := i.logger.With("delivery_id", out.DeliveryID, "project_id", d.ProjectID)

	signature := strings.TrimSpace(d.Header.Get(SignatureHeader))
	if signature == "" {
		return out, ErrMissingSignature
	}
	project, err := i.projects.Get(ctx, d.ProjectID)
	if err != nil {
		return out, err
	}
	if !project.AcceptsWebhooks() {
		return out, ErrWebhooksDisabled
	}
	if !Verify(d.Body, signature, project.WebhookSecret) {
		log.Warn("webhook signature rejected")
		return out, ErrInvalidSignature
	}

	eventType, ok := EventTypeFromHeader(d.Header)
	if !ok {
		out.Reason = fmt.Sprintf("event type %q not processed", eventType)
		log.Info("webhook event ignored", "event_type", eventType)
		return out, nil
	}

	event, err := NormalizeEvent(eventType, d.Body)
	var ignored *IgnoredError
	if errors.As(err, &ignored) {
		out.Reason = ignored.Reason
		log.Info("webhook event ignored", "event_type", eventType, "reason", ignored.Reason)
		return out, nil
	}
	if err != nil {
		log.Warn("webhook payload rejected", "event_type", eventType, "error", err)
		return out, err
	}

	out.Processed = true
	decision := trigger.ShouldTrigger(*project, event)
	if !decision.ShouldDeploy {
		out.Reason = decision.Reason
		log.Info("webhook did not trigger deployment", "branch", event.Branch(), "reason", decision.Reason)
		return out, nil
	}

	deployment, err := i.deployer.TriggerFromEvent(ctx, *project, event)
	if err != nil {
		return out, err
	}
	out.DeploymentTriggered = true
	out.Deployment = deployment
	log.Info("webhook triggered deployment", "deployment_id", deployment.ID, "branch", deployment.Branch, "commit", deployment.CommitHash, "pusher", event.Pusher())
	return out, nil
}
