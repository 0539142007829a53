package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository/memory"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/webhook"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/logger"
)

const sampleManifest = `
projects:
  - id: 3
    name: api
    repo_url: git@github.com:acme/api.git
    webhook_secret: from-file
    webhook_secret_env: API_HOOK_SECRET
    target_branch: main
    path_filters: ["src/**", "go.mod"]
    max_concurrent: 2
    pipeline:
      - name: build
        command: make build
  - id: 4
    name: docs
    repo_url: https://github.com/acme/docs
    auto_deploy: false
`

func newTestService(t *testing.T) (Service, *memory.Repository) {
	t.Helper()
	repo := memory.New()
	secrets := webhook.NewSecrets(repo, "manifest-key", logger.Discard())
	return New(repo, secrets, logger.Discard(), 1), repo
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest(strings.NewReader(sampleManifest))
	require.NoError(t, err)
	require.Len(t, m.Projects, 2)
	assert.Equal(t, []string{"src/**", "go.mod"}, m.Projects[0].PathFilters)
	assert.Equal(t, []domain.PipelineStep{{Name: "build", Command: "make build"}}, m.Projects[0].Pipeline)
	require.NotNil(t, m.Projects[1].AutoDeploy)
	assert.False(t, *m.Projects[1].AutoDeploy)
}

func TestParseManifestRejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "projects:\n  - id: 1\n    name: a\n    repo_url: x\n    branch: main\n",
		"missing id":    "projects:\n  - name: a\n    repo_url: x\n",
		"duplicate id":  "projects:\n  - id: 1\n    name: a\n    repo_url: x\n  - id: 1\n    name: b\n    repo_url: y\n",
		"missing name":  "projects:\n  - id: 1\n    repo_url: x\n",
		"missing repo":  "projects:\n  - id: 1\n    name: a\n",
		"negative slot": "projects:\n  - id: 1\n    name: a\n    repo_url: x\n    max_concurrent: -1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}

func TestParseEmptyManifest(t *testing.T) {
	m, err := ParseManifest(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, m.Projects)
}

func TestSeedStoresProjectsAndSecrets(t *testing.T) {
	t.Setenv("API_HOOK_SECRET", "from-env")
	path := filepath.Join(t.TempDir(), "projects.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o600))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	svc, _ := newTestService(t)
	ctx := context.Background()

	seeded, err := svc.Seed(ctx, m)
	require.NoError(t, err)
	require.Len(t, seeded, 2)

	api, err := svc.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "from-env", api.WebhookSecret)
	assert.True(t, api.Policy.AutoDeploy)
	assert.Equal(t, 2, api.Policy.MaxConcurrent)
	assert.True(t, api.AcceptsWebhooks())

	docs, err := svc.Get(ctx, 4)
	require.NoError(t, err)
	assert.False(t, docs.Policy.AutoDeploy)
	assert.Equal(t, 1, docs.Policy.MaxConcurrent)
	assert.False(t, docs.AcceptsWebhooks())

	// Reseeding updates in place.
	m.Projects[0].TargetBranch = "release"
	_, err = svc.Seed(ctx, m)
	require.NoError(t, err)
	api, err = svc.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "release", api.Policy.TargetBranch)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
