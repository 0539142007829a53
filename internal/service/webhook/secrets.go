package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/crypto"
)

// ErrSecretRequired is returned when rotating to an empty secret.
var ErrSecretRequired = errors.New("webhook secret is required")

// Secrets stores per-project webhook secrets encrypted at rest.
type Secrets struct {
	repo   repository.WebhookRepository
	key    string
	logger *slog.Logger
}

// NewSecrets constructs a secret store using key for AES-GCM sealing.
func NewSecrets(repo repository.WebhookRepository, key string, logger *slog.Logger) *Secrets {
	return &Secrets{repo: repo, key: key, logger: logger.With("component", "webhook_secrets")}
}

// Upsert seals and stores secret for a project.
func (s *Secrets) Upsert(ctx context.Context, projectID int64, secret string) error {
	value := strings.TrimSpace(secret)
	if value == "" {
		return ErrSecretRequired
	}
	sealed, err := crypto.EncryptString(s.key, value)
	if err != nil {
		return fmt.Errorf("seal webhook secret: %w", err)
	}
	if err := s.repo.UpsertWebhook(ctx, projectID, sealed); err != nil {
		return err
	}
	s.logger.Info("webhook secret stored", "project_id", projectID)
	return nil
}

// Lookup returns the plaintext secret of a project, or "" when none is stored.
func (s *Secrets) Lookup(ctx context.Context, projectID int64) (string, error) {
	sealed, err := s.repo.GetWebhookSecret(ctx, projectID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	plain, err := crypto.DecryptToString(s.key, sealed)
	if err != nil {
		return "", fmt.Errorf("open webhook secret for project %d: %w", projectID, err)
	}
	return plain, nil
}
