package webhook

import (
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
)

const githubPush = `{
	"ref": "refs/heads/main",
	"before": "000111",
	"after": "abc123",
	"repository": {"name": "app", "clone_url": "https://github.com/acme/app.git"},
	"pusher": {"name": "octocat"},
	"commits": [
		{"id": "abc122", "message": "first", "author": {"name": "Octo", "email": "o@acme.io"}, "added": ["src/a.go"], "modified": [], "removed": []},
		{"id": "abc123", "message": "second", "author": {"name": "Octo", "email": "o@acme.io"}, "added": [], "modified": ["docs/readme.md"], "removed": ["old.go"]}
	],
	"head_commit": {"id": "abc123", "message": "second", "author": {"name": "Octo", "email": "o@acme.io"}}
}`

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &obj))
	return obj
}

func TestNormalizeSnakeCaseObject(t *testing.T) {
	event, err := Normalize(decode(t, githubPush))
	require.NoError(t, err)

	assert.Equal(t, "refs/heads/main", event.RefName)
	assert.Equal(t, "main", event.Branch())
	assert.Equal(t, "000111", event.BeforeSHA)
	assert.Equal(t, "abc123", event.AfterSHA)
	assert.Equal(t, "https://github.com/acme/app.git", event.RepositoryURL)
	assert.Equal(t, "app", event.RepositoryName)
	assert.Equal(t, "octocat", event.PusherName)
	require.Len(t, event.Commits, 2)
	assert.Equal(t, []string{"src/a.go"}, event.Commits[0].Added)
	assert.Equal(t, "o@acme.io", event.Commits[1].AuthorEmail)
	require.NotNil(t, event.HeadCommit)
	assert.Equal(t, "second", event.HeadCommit.Message)
	assert.Equal(t, []string{"src/a.go", "docs/readme.md"}, event.ChangedFiles())
}

func TestNormalizePascalCaseObject(t *testing.T) {
	obj := map[string]any{
		"Ref":        "refs/heads/main",
		"After":      "abc123",
		"Repository": map[string]any{"CloneUrl": "https://github.com/acme/app.git", "Name": "app"},
		"HeadCommit": map[string]any{"Id": "abc123", "Message": "msg"},
	}
	event, err := Normalize(obj)
	require.NoError(t, err)
	assert.Equal(t, "main", event.Branch())
	assert.Equal(t, "https://github.com/acme/app.git", event.RepositoryURL)
	assert.Equal(t, "msg", event.CommitMessage())
}

func TestNormalizeAllWireShapesAgree(t *testing.T) {
	want, err := Normalize(decode(t, githubPush))
	require.NoError(t, err)

	form := url.Values{"payload": {githubPush}}
	shapes := map[string]any{
		"bytes":          []byte(githubPush),
		"string":         githubPush,
		"raw message":    json.RawMessage(githubPush),
		"double encoded": strconv.Quote(githubPush),
		"form values":    form,
		"form body":      []byte(form.Encode()),

		"object with payload string": map[string]any{"payload": githubPush},
	}
	for name, raw := range shapes {
		t.Run(name, func(t *testing.T) {
			got, err := Normalize(raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	once, err := Normalize([]byte(githubPush))
	require.NoError(t, err)

	twice, err := Normalize(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)

	twicePtr, err := Normalize(&once)
	require.NoError(t, err)
	assert.Equal(t, once, twicePtr)

	encoded, err := json.Marshal(once)
	require.NoError(t, err)
	reparsed, err := Normalize(encoded)
	require.NoError(t, err)
	assert.Equal(t, once, reparsed)
}

func TestNormalizeAfterFallsBackToHeadCommit(t *testing.T) {
	event, err := Normalize(`{"ref":"refs/heads/main","head_commit":{"id":"fff"},"repository":{"clone_url":"x"}}`)
	require.NoError(t, err)
	assert.Equal(t, "fff", event.AfterSHA)
}

func TestNormalizeTagRefHasUnknownBranch(t *testing.T) {
	event, err := Normalize(`{"ref":"refs/tags/v1","after":"abc","repository":{"clone_url":"x"}}`)
	require.NoError(t, err)
	assert.Equal(t, domain.UnknownBranch, event.Branch())
}

func TestNormalizeErrors(t *testing.T) {
	cases := map[string]any{
		"missing ref":        `{"after":"abc","repository":{"clone_url":"x"}}`,
		"missing commit":     `{"ref":"refs/heads/main","repository":{"clone_url":"x"}}`,
		"missing repository": `{"ref":"refs/heads/main","after":"abc"}`,
		"not json":           "definitely not json",
		"empty":              []byte("  "),
		"triple encoded":     strconv.Quote(strconv.Quote(githubPush)),
		"unsupported type":   42,
		"nil event":          (*domain.WebhookEvent)(nil),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNormalization), "got %v", err)
			var nerr *NormalizationError
			assert.ErrorAs(t, err, &nerr)
		})
	}
}

func TestNormalizeWorkflowRun(t *testing.T) {
	body := `{
		"action": "completed",
		"workflow_run": {
			"conclusion": "success",
			"head_branch": "main",
			"head_sha": "def456",
			"head_commit": {"id": "def456", "message": "ci green", "author": {"name": "Octo"}},
			"actor": {"login": "octocat"}
		},
		"repository": {"name": "app", "clone_url": "https://github.com/acme/app.git"}
	}`
	event, err := NormalizeEvent(EventWorkflowRun, body)
	require.NoError(t, err)
	assert.Equal(t, "main", event.Branch())
	assert.Equal(t, "def456", event.AfterSHA)
	assert.Equal(t, "octocat", event.PusherName)
	assert.Equal(t, "ci green", event.CommitMessage())
}

func TestNormalizeWorkflowRunNotSuccessfulIsIgnored(t *testing.T) {
	body := `{"workflow_run":{"conclusion":"failure","head_branch":"main","head_sha":"x"},"repository":{"clone_url":"x"}}`
	_, err := NormalizeEvent(EventWorkflowRun, body)
	assert.ErrorIs(t, err, ErrEventIgnored)
	assert.NotErrorIs(t, err, ErrNormalization)
}

func TestNormalizeRelease(t *testing.T) {
	body := `{
		"action": "published",
		"release": {"tag_name": "v1.2.0", "target_commitish": "main", "name": "Release 1.2", "author": {"login": "octocat"}},
		"repository": {"clone_url": "https://github.com/acme/app.git"}
	}`
	event, err := NormalizeEvent(EventRelease, url.Values{"payload": {body}})
	require.NoError(t, err)
	assert.Equal(t, "main", event.Branch())
	assert.Equal(t, "v1.2.0", event.AfterSHA)
	assert.Equal(t, "Release 1.2", event.CommitMessage())

	_, err = NormalizeEvent(EventRelease, `{"action":"created","release":{"tag_name":"v1"}}`)
	assert.ErrorIs(t, err, ErrEventIgnored)
}
