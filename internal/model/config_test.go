package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAppConfig(), cfg)
}

func TestLoadConfigDecodesAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
github:
  watched_repos: [" acme/widget ", "octocat/hello"]
  item_limit: 500
  timeout: 5s
  fetch_concurrency: 0
monitoring:
  database: /tmp/ghwatch.db
  schedule: "*/10 * * * *"
delivery:
  transport: nats
  retry_delay: 250ms
  nats:
    subject: gh.events
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"acme/widget", "octocat/hello"}, cfg.GitHub.WatchedRepos)
	assert.Equal(t, 100, cfg.GitHub.ItemLimit)
	assert.Equal(t, 5*time.Second, cfg.GitHub.Timeout)
	assert.Equal(t, 1, cfg.GitHub.FetchConcurrency)
	assert.Equal(t, "*/10 * * * *", cfg.Monitoring.Schedule)
	assert.Equal(t, "nats", cfg.Delivery.Transport)
	assert.Equal(t, 250*time.Millisecond, cfg.Delivery.RetryDelay)
	assert.Equal(t, "gh.events", cfg.Delivery.NATS.Subject)

	// Unset keys keep their defaults.
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Delivery.NATS.URL)
	assert.Equal(t, 3, cfg.Delivery.MaxAttempts)
	assert.Equal(t, "GITHUB_TOKEN", cfg.GitHub.TokenEnv)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	for name, body := range map[string]string{
		"bad repo":      "github:\n  watched_repos: [widget]\n",
		"bad transport": "delivery:\n  transport: pigeon\n",
		"empty db":      "monitoring:\n  database: \" \"\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := LoadConfig(path)
			require.Error(t, err)
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultAppConfig()
	cfg.GitHub.WatchedRepos = []string{"acme/widget"}
	cfg.GitHub.TokenRef = "keyring:github-token"
	cfg.Delivery.Transport = "redis"
	cfg.Monitoring.Database = "/tmp/ghwatch.db"
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme/widget"}, loaded.GitHub.WatchedRepos)
	assert.Equal(t, "keyring:github-token", loaded.GitHub.TokenRef)
	assert.Equal(t, "redis", loaded.Delivery.Transport)
	assert.Equal(t, 10*time.Second, loaded.Delivery.AttemptTimeout)
}

func TestValidRepoName(t *testing.T) {
	assert.True(t, ValidRepoName("acme/widget"))
	assert.False(t, ValidRepoName("acme"))
	assert.False(t, ValidRepoName("/widget"))
	assert.False(t, ValidRepoName("acme/wid get"))
	assert.False(t, ValidRepoName("acme/widget/extra"))
}

func TestEntityKeyAndRefs(t *testing.T) {
	assert.Equal(t, "acme/widget#12", ItemRef("acme/widget", 12))
	assert.Equal(t, "issue:acme/widget#12", EntityKey{Kind: KindIssue, Ref: ItemRef("acme/widget", 12)}.String())
	assert.Equal(t, "PR", KindPullRequest.Label())
	assert.False(t, Kind("gist").Valid())
	assert.True(t, StatusFailed.Valid())
}
