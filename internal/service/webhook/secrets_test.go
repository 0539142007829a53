package webhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository/memory"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/logger"
)

func TestSecretsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	project := &domain.Project{Name: "app"}
	require.NoError(t, repo.UpsertProject(ctx, project))

	secrets := NewSecrets(repo, "master-key", logger.Discard())

	got, err := secrets.Lookup(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.ErrorIs(t, secrets.Upsert(ctx, project.ID, "   "), ErrSecretRequired)
	require.NoError(t, secrets.Upsert(ctx, project.ID, " hook-secret "))

	stored, err := repo.GetWebhookSecret(ctx, project.ID)
	require.NoError(t, err)
	assert.NotContains(t, string(stored), "hook-secret")

	got, err = secrets.Lookup(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "hook-secret", got)
}
