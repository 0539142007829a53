package project

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
)

// Manifest models the projects file loaded at startup.
type Manifest struct {
	Projects []ManifestProject `yaml:"projects"`
}

// ManifestProject is one project entry of a manifest. WebhookSecretEnv names
// an environment variable that overrides WebhookSecret when set.
type ManifestProject struct {
	ID               int64                 `yaml:"id"`
	Name             string                `yaml:"name"`
	RepoURL          string                `yaml:"repo_url"`
	WebhookSecret    string                `yaml:"webhook_secret"`
	WebhookSecretEnv string                `yaml:"webhook_secret_env"`
	AutoDeploy       *bool                 `yaml:"auto_deploy"`
	TargetBranch     string                `yaml:"target_branch"`
	PathFilters      []string              `yaml:"path_filters"`
	MaxConcurrent    int                   `yaml:"max_concurrent"`
	Pipeline         []domain.PipelineStep `yaml:"pipeline"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read projects manifest %s: %w", path, err)
	}
	return ParseManifest(bytes.NewReader(data))
}

// ParseManifest decodes a manifest. Unknown keys are rejected.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode projects manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks identifiers and required fields.
func (m *Manifest) Validate() error {
	seen := make(map[int64]struct{}, len(m.Projects))
	for i, p := range m.Projects {
		if p.ID <= 0 {
			return fmt.Errorf("projects[%d].id must be positive", i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("projects[%d].id %d is duplicated", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("projects[%d].name is required", i)
		}
		if strings.TrimSpace(p.RepoURL) == "" {
			return fmt.Errorf("projects[%d].repo_url is required", i)
		}
		if p.MaxConcurrent < 0 {
			return fmt.Errorf("projects[%d].max_concurrent must not be negative", i)
		}
	}
	return nil
}

func (p ManifestProject) input() UpsertInput {
	secret := p.WebhookSecret
	if p.WebhookSecretEnv != "" {
		if v := os.Getenv(p.WebhookSecretEnv); v != "" {
			secret = v
		}
	}
	autoDeploy := true
	if p.AutoDeploy != nil {
		autoDeploy = *p.AutoDeploy
	}
	return UpsertInput{
		ID:            p.ID,
		Name:          p.Name,
		RepoURL:       p.RepoURL,
		WebhookSecret: secret,
		AutoDeploy:    autoDeploy,
		TargetBranch:  p.TargetBranch,
		PathFilters:   p.PathFilters,
		MaxConcurrent: p.MaxConcurrent,
		Pipeline:      p.Pipeline,
		CreatedBy:     "manifest",
	}
}

// Seed upserts every manifest project and returns the stored projects.
func (s Service) Seed(ctx context.Context, m *Manifest) ([]domain.Project, error) {
	out := make([]domain.Project, 0, len(m.Projects))
	for _, p := range m.Projects {
		project, err := s.Upsert(ctx, p.input())
		if err != nil {
			return out, fmt.Errorf("seed project %d (%s): %w", p.ID, p.Name, err)
		}
		out = append(out, *project)
	}
	s.logger.Info("projects manifest applied", "projects", len(out))
	return out, nil
}
