package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/webhook"
)

func TestUpsertValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, UpsertInput{RepoURL: "x"})
	require.ErrorIs(t, err, errInvalidProjectName)
	assert.True(t, IsValidationError(err))

	_, err = svc.Upsert(ctx, UpsertInput{Name: "a"})
	require.ErrorIs(t, err, errInvalidRepoURL)

	_, err = svc.Upsert(ctx, UpsertInput{Name: "a", RepoURL: "x", Pipeline: []domain.PipelineStep{{Name: "build"}}})
	require.ErrorIs(t, err, errInvalidStep)

	_, err = svc.Upsert(ctx, UpsertInput{Name: "a", RepoURL: "x", MaxConcurrent: -2})
	require.ErrorIs(t, err, errInvalidConcurrency)
}

func TestUpsertAssignsIdentifierAndDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	project, err := svc.Upsert(context.Background(), UpsertInput{Name: "api", RepoURL: "https://github.com/acme/api"})
	require.NoError(t, err)
	assert.NotZero(t, project.ID)
	assert.Equal(t, 1, project.Policy.MaxConcurrent)
	assert.Empty(t, project.WebhookSecret)
}

func TestRotateSecret(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	project, err := svc.Upsert(ctx, UpsertInput{Name: "api", RepoURL: "x", WebhookSecret: "first"})
	require.NoError(t, err)

	require.NoError(t, svc.RotateSecret(ctx, project.ID, "second"))
	got, err := svc.Get(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.WebhookSecret)

	sealed, err := repo.GetWebhookSecret(ctx, project.ID)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "second")

	require.ErrorIs(t, svc.RotateSecret(ctx, project.ID, " "), webhook.ErrSecretRequired)
	require.ErrorIs(t, svc.RotateSecret(ctx, 404, "x"), repository.ErrNotFound)
}

func TestSetMaxConcurrent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	project, err := svc.Upsert(ctx, UpsertInput{Name: "api", RepoURL: "x"})
	require.NoError(t, err)

	updated, err := svc.SetMaxConcurrent(ctx, project.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Policy.MaxConcurrent)

	_, err = svc.SetMaxConcurrent(ctx, project.ID, 0)
	require.ErrorIs(t, err, errInvalidConcurrency)
}
