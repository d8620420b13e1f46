package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/reviewflow/internal/config"
)

const minimalRepoFile = `
default_timezone: America/New_York
timezones:
  alice: Europe/London
repositories:
  - name: octocat/hello-world
    min_pr_number: 100
    reviewers: [alice, bob, carol]
`

// writeRepoFile writes a YAML config file into a temp dir and points
// REVIEWFLOW_CONFIG at it.
func writeRepoFile(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reviewflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("REVIEWFLOW_CONFIG", path)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REVIEWFLOW_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("REVIEWFLOW_GITHUB_TOKEN", "ghp_token")
	writeRepoFile(t, minimalRepoFile)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "reviewflow.db", cfg.DBPath)
	assert.Equal(t, 1*time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, 24*time.Hour, cfg.ReminderThreshold)
	assert.Equal(t, 10*time.Minute, cfg.AssignAfter)
	assert.Equal(t, "America/New_York", cfg.DefaultTimezone)
	assert.Equal(t, "Europe/London", cfg.Timezones["alice"])

	require.Len(t, cfg.Repos, 1)
	assert.Equal(t, "octocat/hello-world", cfg.Repos[0].Name)
	assert.Equal(t, 100, cfg.Repos[0].MinPRNumber)
	assert.Equal(t, []string{"alice", "bob", "carol"}, cfg.Repos[0].Reviewers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REVIEWFLOW_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("REVIEWFLOW_GITHUB_TOKEN", "ghp_token")
	t.Setenv("REVIEWFLOW_LISTEN_ADDR", "0.0.0.0:9999")
	t.Setenv("REVIEWFLOW_DB_PATH", "/tmp/other.db")
	t.Setenv("REVIEWFLOW_RECONCILE_INTERVAL", "30s")
	t.Setenv("REVIEWFLOW_REMINDER_THRESHOLD", "48h")
	t.Setenv("REVIEWFLOW_ASSIGN_AFTER", "5m")
	writeRepoFile(t, minimalRepoFile)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9999", cfg.ListenAddr)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 48*time.Hour, cfg.ReminderThreshold)
	assert.Equal(t, 5*time.Minute, cfg.AssignAfter)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("REVIEWFLOW_WEBHOOK_SECRET", "")
	t.Setenv("REVIEWFLOW_GITHUB_TOKEN", "ghp_token")

	_, err := config.Load()
	assert.ErrorContains(t, err, "REVIEWFLOW_WEBHOOK_SECRET")
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("REVIEWFLOW_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("REVIEWFLOW_GITHUB_TOKEN", "")
	t.Setenv("REVIEWFLOW_GITHUB_APP_ID", "")
	t.Setenv("REVIEWFLOW_GITHUB_APP_KEY", "")

	_, err := config.Load()
	assert.ErrorContains(t, err, "REVIEWFLOW_GITHUB_TOKEN")
}

func TestLoad_AppCredentials(t *testing.T) {
	t.Setenv("REVIEWFLOW_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("REVIEWFLOW_GITHUB_TOKEN", "")
	t.Setenv("REVIEWFLOW_GITHUB_APP_ID", "12345")
	t.Setenv("REVIEWFLOW_GITHUB_APP_KEY", "/etc/reviewflow/app.pem")
	writeRepoFile(t, minimalRepoFile)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.HasAppCredentials())
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("REVIEWFLOW_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("REVIEWFLOW_GITHUB_TOKEN", "ghp_token")
	t.Setenv("REVIEWFLOW_RECONCILE_INTERVAL", "not-a-duration")

	_, err := config.Load()
	assert.ErrorContains(t, err, "REVIEWFLOW_RECONCILE_INTERVAL")
}

func TestLoad_RepoFileValidation(t *testing.T) {
	t.Setenv("REVIEWFLOW_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("REVIEWFLOW_GITHUB_TOKEN", "ghp_token")

	tests := []struct {
		name    string
		content string
		errLike string
	}{
		{
			name:    "no repositories",
			content: "timezones: {}\n",
			errLike: "defines no repositories",
		},
		{
			name: "bad repo name",
			content: `
repositories:
  - name: not-a-full-name
    reviewers: [alice]
`,
			errLike: "not owner/repo",
		},
		{
			name: "no reviewers",
			content: `
repositories:
  - name: octocat/hello-world
    reviewers: []
`,
			errLike: "has no reviewers",
		},
		{
			name:    "malformed yaml",
			content: "repositories: [\n",
			errLike: "parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeRepoFile(t, tt.content)
			_, err := config.Load()
			assert.ErrorContains(t, err, tt.errLike)
		})
	}
}

func TestConfig_RepoLookup(t *testing.T) {
	t.Setenv("REVIEWFLOW_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("REVIEWFLOW_GITHUB_TOKEN", "ghp_token")
	writeRepoFile(t, minimalRepoFile)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.NotNil(t, cfg.Repo("octocat/hello-world"))
	assert.NotNil(t, cfg.Repo("Octocat/Hello-World"))
	assert.Nil(t, cfg.Repo("someone/else"))
}
