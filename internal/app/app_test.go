package app

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ghwatch/internal/credential"
	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/reconcile"
	"github.com/nhle/ghwatch/internal/source"
	"github.com/nhle/ghwatch/internal/transport"
	"github.com/nhle/ghwatch/internal/transport/logsink"
	"github.com/nhle/ghwatch/tests/testutil"
)

type stubSource struct{}

func (stubSource) Type() source.SourceType { return source.SourceTypeGitHub }

func (stubSource) ValidateConnection(context.Context) (string, error) { return "octocat", nil }

func (stubSource) ListUserRepos(context.Context, int) ([]string, error) { return nil, nil }

func (stubSource) FetchRepository(_ context.Context, repo string) (model.FetchedRecord, error) {
	return model.FetchedRecord{
		Kind:   model.KindRepository,
		Ref:    repo,
		Repo:   repo,
		Title:  repo,
		Fields: model.Fields{model.FieldPushedAt: "2026-03-01T10:00:00Z"},
	}, nil
}

func (stubSource) FetchIssues(context.Context, string, int) ([]model.FetchedRecord, error) {
	return nil, nil
}

func (stubSource) FetchPullRequests(context.Context, string, int) ([]model.FetchedRecord, error) {
	return nil, nil
}

type countingTransport struct {
	sent   int
	closed bool
}

func (c *countingTransport) Name() string { return "counting" }

func (c *countingTransport) Send(context.Context, model.NotificationRecord) error {
	c.sent++
	return nil
}

func (c *countingTransport) Close() error {
	c.closed = true
	return nil
}

func testConfig() *model.AppConfig {
	cfg := model.DefaultAppConfig()
	cfg.GitHub.WatchedRepos = []string{"acme/widget"}
	cfg.Monitoring.AutoWatchUserRepos = false
	cfg.Delivery.RetryDelay = 0
	return cfg
}

func TestRunPassDeliversThroughConfiguredTransport(t *testing.T) {
	tr := &countingTransport{}
	a := New(testConfig(), testutil.NewTestStore(t), zerolog.Nop(),
		WithSource(func(model.GitHubConfig) (source.Source, error) { return stubSource{}, nil }),
		WithTransport(func(model.DeliveryConfig, zerolog.Logger) (transport.Transport, error) { return tr, nil }),
	)

	summary, err := a.RunPass(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Delivery.Sent)
	assert.Equal(t, 1, tr.sent)
	assert.True(t, tr.closed)
}

func TestRunPassWithoutTokenAborts(t *testing.T) {
	cfg := testConfig()
	cfg.GitHub.TokenEnv = "GHWATCH_TEST_TOKEN_UNSET"
	t.Setenv("GHWATCH_TEST_TOKEN_UNSET", "")

	a := New(cfg, testutil.NewTestStore(t), zerolog.Nop())
	summary, err := a.RunPass(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrPassAborted)
	assert.True(t, source.IsAuthError(err))
	assert.NotEmpty(t, summary.Aborted)
}

func TestRunPassTransportFailureSkipsDelivery(t *testing.T) {
	a := New(testConfig(), testutil.NewTestStore(t), zerolog.Nop(),
		WithSource(func(model.GitHubConfig) (source.Source, error) { return stubSource{}, nil }),
		WithTransport(func(model.DeliveryConfig, zerolog.Logger) (transport.Transport, error) {
			return nil, errors.New("no chat id")
		}),
	)

	summary, err := a.RunPass(t.Context())
	require.NoError(t, err)
	assert.True(t, summary.DeliverySkipped)
	assert.Contains(t, summary.Errors, "transport: no chat id")

	pending, err := a.Store().ListPendingNotifications(t.Context())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSetConfigAppliesToNextPass(t *testing.T) {
	a := New(testConfig(), testutil.NewTestStore(t), zerolog.Nop(),
		WithSource(func(model.GitHubConfig) (source.Source, error) { return stubSource{}, nil }),
	)

	next := testConfig()
	next.GitHub.WatchedRepos = []string{"acme/widget", "acme/gadget"}
	next.Delivery.Enabled = false
	a.SetConfig(next)

	summary, err := a.RunPass(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Repositories)
	assert.True(t, summary.DeliverySkipped)
}

func TestNewTransportSelectsByName(t *testing.T) {
	cfg := model.DefaultAppConfig().Delivery

	cfg.Transport = logsink.Name
	tr, err := newTransport(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, logsink.Name, tr.Name())

	cfg.Transport = "carrier-pigeon"
	_, err = newTransport(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnknownTransport)

	cfg.Transport = "telegram"
	cfg.Telegram.BotTokenEnv = "GHWATCH_TEST_BOT_TOKEN"
	t.Setenv("GHWATCH_TEST_BOT_TOKEN", "")
	_, err = newTransport(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, credential.ErrMissing)
}

func TestCheckTokenExpiryWarns(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	cfg := model.GitHubConfig{TokenExpiresAtEnv: "GHWATCH_TEST_EXPIRES"}
	t.Setenv("GHWATCH_TEST_EXPIRES", "2026-03-04T00:00:00Z")

	e := checkTokenExpiry(cfg, now, log)
	assert.Equal(t, credential.ExpiryImminent, e.Level)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "expires in 3 day(s)")
}
