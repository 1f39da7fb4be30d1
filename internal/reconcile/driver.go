// Package reconcile runs reconciliation passes: fetch every watched
// repository, classify each entity against its stored snapshot, commit the
// changes together with their notifications, then drain the outbox.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/ghwatch/internal/detect"
	"github.com/nhle/ghwatch/internal/logging"
	"github.com/nhle/ghwatch/internal/metrics"
	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/source"
	"github.com/nhle/ghwatch/internal/store"
)

// ErrPassAborted wraps the cause of a pass that stopped before finishing:
// an unreachable store or rejected credentials.
var ErrPassAborted = errors.New("reconciliation pass aborted")

// Phase is the current stage of a pass.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseDetecting
	PhaseCommitting
	PhaseDelivering
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseDetecting:
		return "detecting"
	case PhaseCommitting:
		return "committing"
	case PhaseDelivering:
		return "delivering"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Deliverer drains the outbox. *outbox.Manager implements it.
type Deliverer interface {
	DeliverPending(ctx context.Context) (model.DeliverySummary, error)
}

// Driver runs reconciliation passes against one store and one source.
// RunOnce must not be called concurrently.
type Driver struct {
	store    store.Store
	source   source.Source
	outbox   Deliverer
	log      zerolog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
	newRunID func() string

	mu    gosync.Mutex
	phase Phase
}

// Option configures a Driver.
type Option func(*Driver)

// WithOutbox sets the deliverer used at the end of each pass. Without one
// delivery is skipped.
func WithOutbox(d Deliverer) Option {
	return func(dr *Driver) { dr.outbox = d }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(dr *Driver) {
		if rec != nil {
			dr.metrics = rec
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(dr *Driver) { dr.now = now }
}

// WithRunID overrides run ID generation.
func WithRunID(fn func() string) Option {
	return func(dr *Driver) { dr.newRunID = fn }
}

// New creates a Driver.
func New(s store.Store, src source.Source, log zerolog.Logger, opts ...Option) *Driver {
	d := &Driver{
		store:    s,
		source:   src,
		log:      logging.Component(log, "reconcile"),
		metrics:  metrics.NoopRecorder{},
		now:      time.Now,
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Phase returns the stage of the pass in flight, or PhaseIdle.
func (d *Driver) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

func (d *Driver) setPhase(p Phase) {
	d.mu.Lock()
	changed := d.phase != p
	d.phase = p
	d.mu.Unlock()
	if changed {
		d.log.Trace().Str(logging.FieldPhase, p.String()).Msg("phase")
	}
}

// pass carries the state of one RunOnce call.
type pass struct {
	cfg     *model.AppConfig
	summary model.PassSummary
	log     zerolog.Logger
}

// RunOnce performs one complete pass with cfg and returns its summary. The
// summary is meaningful even when the error is non-nil. The error wraps
// ErrPassAborted when the store is unreachable or credentials are rejected;
// every other failure is scoped to one entity and only counted.
// Cancellation stops the pass at the next entity boundary and sets
// Interrupted.
func (d *Driver) RunOnce(ctx context.Context, cfg *model.AppConfig) (model.PassSummary, error) {
	if cfg == nil {
		cfg = model.DefaultAppConfig()
	}
	p := &pass{cfg: cfg}
	p.summary.RunID = d.newRunID()
	p.summary.StartedAt = d.now().UTC()
	p.log = d.log.With().Str(logging.FieldRunID, p.summary.RunID).Logger()

	defer d.setPhase(PhaseIdle)

	err := d.run(ctx, p)
	if err != nil {
		p.summary.Aborted = err.Error()
		p.log.Error().Err(err).Msg("pass aborted")
		err = fmt.Errorf("%w: %w", ErrPassAborted, err)
	}
	d.finish(ctx, p)
	return p.summary, err
}

// run executes the phases. A returned error aborts the pass.
func (d *Driver) run(ctx context.Context, p *pass) error {
	d.setPhase(PhaseFetching)
	if ctx.Err() != nil {
		p.summary.Interrupted = true
		return nil
	}
	if err := d.store.Ping(ctx); err != nil {
		return err
	}

	repos, err := d.resolveWatchList(ctx, p.cfg)
	if err != nil {
		if store.IsUnavailable(err) || source.IsAuthError(err) {
			return err
		}
		p.summary.FetchFailed++
		p.summary.Errors = append(p.summary.Errors, fmt.Sprintf("watch list: %v", err))
		p.log.Warn().Err(err).Msg("resolving watch list")
	}
	p.summary.Repositories = len(repos)
	p.log.Info().Int("repositories", len(repos)).Msg("pass started")

	batches, err := d.fetchAll(ctx, repos, p.cfg.GitHub)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		p.summary.Interrupted = true
		return nil
	}

	for _, b := range batches {
		if err := d.applyBatch(ctx, p, b); err != nil {
			return err
		}
		if p.summary.Interrupted {
			return nil
		}
	}

	d.setPhase(PhaseDelivering)
	if !p.cfg.Delivery.Enabled || d.outbox == nil {
		p.summary.DeliverySkipped = true
		return nil
	}
	ds, err := d.outbox.DeliverPending(ctx)
	p.summary.Delivery = ds
	if err != nil {
		return err
	}
	return nil
}

// resolveWatchList returns the active watch list. Configured repositories
// never seen before are added to it; when the list has never held anything
// and auto-watch is on, the user's most recently pushed repositories are
// discovered and persisted.
func (d *Driver) resolveWatchList(ctx context.Context, cfg *model.AppConfig) ([]string, error) {
	all, err := d.store.ListWatchEntries(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(all))
	for _, e := range all {
		known[e.Repo] = true
	}

	for _, repo := range cfg.GitHub.WatchedRepos {
		if known[repo] {
			continue
		}
		if !model.ValidRepoName(repo) {
			d.log.Warn().Str(logging.FieldRepo, repo).Msg("ignoring invalid repository name in config")
			continue
		}
		if err := d.store.AddWatched(ctx, repo, model.OriginConfig); err != nil {
			return nil, err
		}
		known[repo] = true
	}

	if len(known) == 0 && cfg.Monitoring.AutoWatchUserRepos {
		discovered, err := d.source.ListUserRepos(ctx, cfg.Monitoring.MaxReposToWatch)
		if err != nil {
			return nil, fmt.Errorf("discovering repositories: %w", err)
		}
		for _, repo := range discovered {
			if err := d.store.AddWatched(ctx, repo, model.OriginDiscovered); err != nil {
				return nil, err
			}
		}
		d.log.Info().Int("repositories", len(discovered)).Msg("discovered repositories to watch")
	}

	entries, err := d.store.ListWatched(ctx)
	if err != nil {
		return nil, err
	}
	repos := make([]string, 0, len(entries))
	for _, e := range entries {
		repos = append(repos, e.Repo)
	}
	return repos, nil
}

// applyBatch classifies and commits the records of one repository in
// order. It returns an error only when the pass must abort.
func (d *Driver) applyBatch(ctx context.Context, p *pass, b repoBatch) error {
	for _, f := range b.failures {
		p.summary.FetchFailed++
		p.summary.Errors = append(p.summary.Errors, fmt.Sprintf("%s %s: %v", b.repo, unitLabel(f.kind), f.err))
		d.metrics.IncFetchFailure(string(f.kind))
	}
	if len(b.failures) > 0 {
		key := model.EntityKey{Kind: model.KindRepository, Ref: model.RepoRef(b.repo)}
		if err := d.store.Touch(ctx, key, d.now().UTC()); err != nil {
			if store.IsUnavailable(err) {
				return err
			}
			p.log.Warn().Err(err).Str(logging.FieldRepo, b.repo).Msg("touching repository after fetch failure")
		}
	}

	for _, rec := range b.records {
		if ctx.Err() != nil {
			p.summary.Interrupted = true
			p.log.Info().Msg("pass interrupted")
			return nil
		}
		if err := d.applyRecord(ctx, p, rec); err != nil {
			return err
		}
		if p.summary.Interrupted {
			return nil
		}
	}
	return nil
}

// applyRecord runs detection and commit for one entity.
func (d *Driver) applyRecord(ctx context.Context, p *pass, rec model.FetchedRecord) error {
	log := p.log.With().
		Str(logging.FieldKind, string(rec.Kind)).
		Str(logging.FieldRef, rec.Ref).
		Logger()

	d.setPhase(PhaseDetecting)
	prev, err := d.store.GetSnapshot(ctx, rec.Key())
	if err != nil {
		return d.commitFailed(ctx, p, log, rec, err)
	}
	change := detect.Classify(prev, rec)
	p.summary.Checked++

	d.setPhase(PhaseCommitting)
	now := d.now().UTC()

	if change == model.ChangeUnchanged {
		if err := d.store.Touch(ctx, rec.Key(), now); err != nil {
			if store.IsUnavailable(err) {
				return err
			}
			log.Warn().Err(err).Msg("touching unchanged entity")
		}
		p.summary.Unchanged++
		d.metrics.AddEntities(string(rec.Kind), string(change), 1)
		return nil
	}

	snapshot := model.Snapshot{
		Kind:          rec.Kind,
		Ref:           rec.Ref,
		RemoteID:      rec.RemoteID,
		Fields:        rec.Fields.Clone(),
		LastChangedAt: now,
		LastCheckedAt: now,
	}
	n := &model.NotificationRecord{
		Entity:     rec.Key(),
		ChangeKind: change,
		Payload:    detect.RenderPayload(rec, change, prev),
		RunID:      p.summary.RunID,
	}
	id, err := d.store.Commit(ctx, snapshot, n)
	if err != nil {
		return d.commitFailed(ctx, p, log, rec, err)
	}

	switch change {
	case model.ChangeCreated:
		p.summary.Created++
	case model.ChangeUpdated:
		p.summary.Updated++
	}
	p.summary.Changes = append(p.summary.Changes, model.ChangeItem{
		Kind:       rec.Kind,
		ChangeKind: change,
		Ref:        rec.Ref,
		Title:      rec.Title,
		Author:     rec.Author,
	})
	d.metrics.AddEntities(string(rec.Kind), string(change), 1)
	log.Debug().Str("change", string(change)).Int64(logging.FieldNotificationID, id).Msg("entity committed")
	return nil
}

// commitFailed counts a per-entity store failure, or returns it when the
// store itself is gone. A failure caused by cancellation interrupts the pass.
func (d *Driver) commitFailed(ctx context.Context, p *pass, log zerolog.Logger, rec model.FetchedRecord, err error) error {
	if store.IsUnavailable(err) {
		return err
	}
	if ctx.Err() != nil {
		p.summary.Interrupted = true
		return nil
	}
	p.summary.CommitFailed++
	p.summary.Errors = append(p.summary.Errors, fmt.Sprintf("%s: %v", rec.Key(), err))
	d.metrics.IncCommitFailure()
	log.Error().Err(err).Msg("commit failed; entity will be retried next pass")
	return nil
}

// finish stamps the summary, persists the pass and reports metrics.
func (d *Driver) finish(ctx context.Context, p *pass) {
	s := &p.summary
	s.FinishedAt = d.now().UTC()

	rec := model.PassRecord{
		RunID:        s.RunID,
		StartedAt:    s.StartedAt,
		FinishedAt:   s.FinishedAt,
		Checked:      s.Checked,
		Created:      s.Created,
		Updated:      s.Updated,
		Unchanged:    s.Unchanged,
		FetchFailed:  s.FetchFailed,
		CommitFailed: s.CommitFailed,
		Sent:         s.Delivery.Sent,
		Failed:       s.Delivery.Failed,
		Aborted:      s.Aborted,
	}
	if rec.Aborted == "" && s.Interrupted {
		rec.Aborted = "interrupted"
	}
	// An interrupted pass is still recorded.
	if err := d.store.RecordPass(context.WithoutCancel(ctx), rec); err != nil {
		p.log.Warn().Err(err).Msg("recording pass history")
	}

	d.metrics.ObservePassDuration(s.Duration())
	d.metrics.IncPassOutcome(outcomeOf(*s))

	p.log.Info().
		Int("checked", s.Checked).
		Int("created", s.Created).
		Int("updated", s.Updated).
		Int("unchanged", s.Unchanged).
		Int("fetch_failed", s.FetchFailed).
		Int("commit_failed", s.CommitFailed).
		Int("sent", s.Delivery.Sent).
		Int("delivery_failed", s.Delivery.Failed).
		Dur("duration", s.Duration()).
		Msg("pass finished")
}

func outcomeOf(s model.PassSummary) string {
	switch {
	case s.Aborted != "":
		return metrics.OutcomeAborted
	case s.Interrupted:
		return metrics.OutcomeInterrupted
	case s.FetchFailed > 0 || s.CommitFailed > 0 || s.Delivery.Failed > 0:
		return metrics.OutcomePartial
	}
	return metrics.OutcomeOK
}
