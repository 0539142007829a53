package logs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/ws"
)

// Log levels attached to deployment log lines.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Service appends deployment log lines and streams them to project subscribers.
type Service struct {
	repo   repository.DeploymentRepository
	hub    *ws.Hub
	logger *slog.Logger
}

// New constructs a log service. hub may be nil when streaming is disabled.
func New(repo repository.DeploymentRepository, hub *ws.Hub, logger *slog.Logger) *Service {
	return &Service{repo: repo, hub: hub, logger: logger.With("component", "deployment_logs")}
}

// Format renders a line as stored in a deployment's full log.
func Format(entry domain.DeploymentLogLine) string {
	message := strings.TrimRight(entry.Message, "\n")
	return fmt.Sprintf("%s [%s] %s\n", entry.CreatedAt.UTC().Format(time.RFC3339), entry.Level, message)
}

// Append persists entry to the deployment's full log and broadcasts it.
func (s *Service) Append(ctx context.Context, entry domain.DeploymentLogLine) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.AppendDeploymentLog(ctx, entry.DeploymentID, Format(entry)); err != nil {
		return err
	}
	s.Broadcast(entry)
	return nil
}

// Broadcast streams entry without persisting it.
func (s *Service) Broadcast(entry domain.DeploymentLogLine) {
	if s.hub == nil {
		return
	}
	data, err := MarshalEntry(entry)
	if err != nil {
		s.logger.Warn("failed to marshal log payload", "error", err)
		return
	}
	s.hub.Broadcast(entry.ProjectID, data)
}

// Hub returns the websocket hub (useful for HTTP handlers).
func (s *Service) Hub() *ws.Hub {
	return s.hub
}

// MarshalEntry formats a log line for streaming payloads.
func MarshalEntry(entry domain.DeploymentLogLine) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":          "log",
		"deployment_id": entry.DeploymentID,
		"project_id":    entry.ProjectID,
		"level":         entry.Level,
		"message":       entry.Message,
		"created_at":    entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}
