package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGettersFallBackWhenUnset(t *testing.T) {
	assert.Equal(t, "fallback", GetString("DEPLOY_TEST_UNSET_STRING", "fallback"))
	assert.Equal(t, 7, GetInt("DEPLOY_TEST_UNSET_INT", 7))
	assert.True(t, GetBool("DEPLOY_TEST_UNSET_BOOL", true))
}

func TestGettersReadEnvironment(t *testing.T) {
	t.Setenv("DEPLOY_TEST_STRING", "value")
	t.Setenv("DEPLOY_TEST_INT", "42")
	t.Setenv("DEPLOY_TEST_BAD_INT", "forty-two")
	t.Setenv("DEPLOY_TEST_BOOL", "false")

	assert.Equal(t, "value", GetString("DEPLOY_TEST_STRING", ""))
	assert.Equal(t, 42, GetInt("DEPLOY_TEST_INT", 0))
	assert.Equal(t, 3, GetInt("DEPLOY_TEST_BAD_INT", 3))
	assert.False(t, GetBool("DEPLOY_TEST_BOOL", true))
	assert.Equal(t, 42*time.Second, GetDuration("DEPLOY_TEST_INT", 1, time.Second))
}

func TestLoadAPIConfigRecoveryMode(t *testing.T) {
	t.Setenv("RECOVERY_MODE", "FAIL")
	assert.Equal(t, RecoveryFail, LoadAPIConfig().RecoveryMode)

	t.Setenv("RECOVERY_MODE", "bogus")
	assert.Equal(t, RecoveryRequeue, LoadAPIConfig().RecoveryMode)
}

func TestLoadFileKeepsEnvironmentPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "api.yaml")
	require.NoError(t, os.WriteFile(path, []byte("deploy_test_file_only: from-file\ndeploy_test_both: from-file\n"), 0o600))
	t.Setenv("DEPLOY_TEST_BOTH", "from-env")

	require.NoError(t, LoadFile(path))
	assert.Equal(t, "from-file", GetString("DEPLOY_TEST_FILE_ONLY", ""))
	assert.Equal(t, "from-env", GetString("DEPLOY_TEST_BOTH", ""))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("debug").String())
	assert.Equal(t, "WARN", ParseLevel("warn").String())
	assert.Equal(t, "INFO", ParseLevel("nonsense").String())
}
