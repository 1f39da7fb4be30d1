// Package app wires configuration, credentials, the store, the GitHub
// source and the notification transport into runnable passes.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/ghwatch/internal/logging"
	"github.com/nhle/ghwatch/internal/metrics"
	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/outbox"
	"github.com/nhle/ghwatch/internal/reconcile"
	"github.com/nhle/ghwatch/internal/source"
	"github.com/nhle/ghwatch/internal/store"
	"github.com/nhle/ghwatch/internal/transport"
)

// App owns the store and the current configuration. Collaborators that
// depend on credentials are built per pass so a reloaded config takes
// effect on the next one.
type App struct {
	store   store.Store
	log     zerolog.Logger
	metrics metrics.Recorder
	now     func() time.Time

	mu  sync.RWMutex
	cfg *model.AppConfig

	// Overridable for tests.
	newSource    func(model.GitHubConfig) (source.Source, error)
	newTransport func(model.DeliveryConfig, zerolog.Logger) (transport.Transport, error)
}

// Option configures an App.
type Option func(*App)

// WithMetrics sets the recorder shared by passes and deliveries.
func WithMetrics(rec metrics.Recorder) Option {
	return func(a *App) {
		if rec != nil {
			a.metrics = rec
		}
	}
}

// WithSource replaces the GitHub source factory.
func WithSource(fn func(model.GitHubConfig) (source.Source, error)) Option {
	return func(a *App) { a.newSource = fn }
}

// WithTransport replaces the transport factory.
func WithTransport(fn func(model.DeliveryConfig, zerolog.Logger) (transport.Transport, error)) Option {
	return func(a *App) { a.newTransport = fn }
}

// New creates an App over an open store.
func New(cfg *model.AppConfig, s store.Store, log zerolog.Logger, opts ...Option) *App {
	a := &App{
		store:        s,
		log:          log,
		metrics:      metrics.NoopRecorder{},
		now:          time.Now,
		cfg:          cfg,
		newSource:    newSource,
		newTransport: newTransport,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Open opens the SQLite store named by cfg and returns an App over it.
func Open(cfg *model.AppConfig, log zerolog.Logger, opts ...Option) (*App, error) {
	s, err := store.NewSQLiteStore(cfg.Monitoring.Database)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return New(cfg, s, log, opts...), nil
}

// Store returns the underlying store.
func (a *App) Store() store.Store { return a.store }

// Config returns the current configuration.
func (a *App) Config() *model.AppConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// SetConfig replaces the configuration used from the next pass on. The
// database path cannot change while the store is open.
func (a *App) SetConfig(cfg *model.AppConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cfg.Monitoring.Database != a.cfg.Monitoring.Database {
		a.log.Warn().
			Str("database", cfg.Monitoring.Database).
			Msg("database path change takes effect after restart")
	}
	a.cfg = cfg
}

// Close closes the store.
func (a *App) Close() error { return a.store.Close() }

// RunPass runs one reconciliation pass with the current configuration.
// A source that cannot be built aborts the pass like rejected
// credentials; a transport that cannot be built only skips delivery.
func (a *App) RunPass(ctx context.Context) (model.PassSummary, error) {
	cfg := a.Config()
	log := logging.Component(a.log, "app")

	checkTokenExpiry(cfg.GitHub, a.now(), log)

	src, err := a.newSource(cfg.GitHub)
	if err != nil {
		now := a.now().UTC()
		summary := model.PassSummary{StartedAt: now, FinishedAt: now, Aborted: err.Error()}
		a.metrics.IncPassOutcome(metrics.OutcomeAborted)
		return summary, fmt.Errorf("%w: %w", reconcile.ErrPassAborted, err)
	}

	opts := []reconcile.Option{reconcile.WithMetrics(a.metrics)}
	var transportErr error
	if cfg.Delivery.Enabled {
		t, err := a.newTransport(cfg.Delivery, a.log)
		if err != nil {
			transportErr = err
			log.Error().Err(err).Str("transport", cfg.Delivery.Transport).Msg("delivery disabled for this pass")
		} else {
			defer closeTransport(t, log)
			opts = append(opts, reconcile.WithOutbox(a.outbox(cfg.Delivery, t)))
		}
	}

	summary, err := reconcile.New(a.store, src, a.log, opts...).RunOnce(ctx, cfg)
	if transportErr != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("transport: %v", transportErr))
	}
	return summary, err
}

// Deliver drains the outbox once without fetching anything.
func (a *App) Deliver(ctx context.Context) (model.DeliverySummary, error) {
	cfg := a.Config()
	t, err := a.newTransport(cfg.Delivery, a.log)
	if err != nil {
		return model.DeliverySummary{}, fmt.Errorf("building transport: %w", err)
	}
	defer closeTransport(t, a.log)
	return a.outbox(cfg.Delivery, t).DeliverPending(ctx)
}

// ValidateConnection checks the GitHub credentials and returns the login.
func (a *App) ValidateConnection(ctx context.Context) (string, error) {
	src, err := a.newSource(a.Config().GitHub)
	if err != nil {
		return "", err
	}
	return src.ValidateConnection(ctx)
}

func (a *App) outbox(cfg model.DeliveryConfig, t transport.Transport) *outbox.Manager {
	return outbox.New(a.store, t, outbox.OptionsFromConfig(cfg), a.log, a.metrics)
}

func closeTransport(t transport.Transport, log zerolog.Logger) {
	if err := t.Close(); err != nil {
		log.Warn().Err(err).Str("transport", t.Name()).Msg("closing transport")
	}
}
