// Package schedule runs reconciliation passes on a cron schedule for
// daemon mode. Passes never overlap: a tick that fires while a pass is
// still running is skipped.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/nhle/ghwatch/internal/logging"
	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/reconcile"
)

// Runner runs one pass. *app.App implements it.
type Runner interface {
	RunPass(ctx context.Context) (model.PassSummary, error)
}

// specParser accepts standard five-field cron, an optional seconds field,
// and descriptors.
var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSpec validates a cron expression or descriptor such as "@every 20m".
func ParseSpec(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("empty schedule")
	}
	sched, err := specParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Scheduler triggers passes of a Runner on a cron schedule.
type Scheduler struct {
	runner    Runner
	log       zerolog.Logger
	onSummary func(model.PassSummary, error)
	notify    func(state string)

	mu      sync.Mutex
	c       *cron.Cron
	entryID cron.EntryID
	spec    string
	job     cron.Job
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSummaryHandler is called after every pass, aborted ones included.
func WithSummaryHandler(fn func(model.PassSummary, error)) Option {
	return func(s *Scheduler) { s.onSummary = fn }
}

// WithNotifier replaces the service manager notifier.
func WithNotifier(fn func(state string)) Option {
	return func(s *Scheduler) { s.notify = fn }
}

// New creates a Scheduler.
func New(r Runner, log zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner: r,
		log:    logging.Component(log, "schedule"),
	}
	s.notify = func(state string) { notifySystemd(s.log, state) }
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one pass immediately, then one per schedule tick until ctx
// is cancelled. Cancellation interrupts a running pass at its next entity
// boundary; Run returns once that pass has finished.
func (s *Scheduler) Run(ctx context.Context, spec string) error {
	sched, err := ParseSpec(spec)
	if err != nil {
		return err
	}

	cl := cronLogger{log: s.log}
	job := cron.NewChain(cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() { s.runPass(ctx) }))

	s.mu.Lock()
	s.c = cron.New(cron.WithParser(specParser), cron.WithLogger(cl))
	s.job = job
	s.spec = strings.TrimSpace(spec)
	s.entryID = s.c.Schedule(sched, job)
	s.c.Start()
	s.mu.Unlock()

	s.log.Info().Str("schedule", s.spec).Msg("scheduler started")
	s.notify(sdReady)

	// First pass right away, through the same chain so a tick cannot
	// overlap it.
	var first sync.WaitGroup
	first.Add(1)
	go func() {
		defer first.Done()
		job.Run()
	}()

	<-ctx.Done()
	s.notify(sdStopping)
	s.log.Info().Msg("scheduler stopping")

	s.mu.Lock()
	stopCtx := s.c.Stop()
	s.mu.Unlock()
	<-stopCtx.Done()
	first.Wait()
	return nil
}

// Reschedule swaps the schedule of a running Scheduler. An invalid spec
// keeps the current one.
func (s *Scheduler) Reschedule(spec string) error {
	sched, err := ParseSpec(spec)
	if err != nil {
		return err
	}
	spec = strings.TrimSpace(spec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return errors.New("scheduler is not running")
	}
	if spec == s.spec {
		return nil
	}
	s.c.Remove(s.entryID)
	s.entryID = s.c.Schedule(sched, s.job)
	s.log.Info().Str("schedule", spec).Str("previous", s.spec).Msg("schedule changed")
	s.spec = spec
	return nil
}

// Spec returns the active schedule.
func (s *Scheduler) Spec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

func (s *Scheduler) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	summary, err := s.runner.RunPass(ctx)
	switch {
	case err == nil:
	case errors.Is(err, reconcile.ErrPassAborted):
		// The daemon keeps running; the next tick retries.
		s.log.Error().Err(err).Msg("pass aborted")
	default:
		s.log.Error().Err(err).Msg("pass failed")
	}
	if s.onSummary != nil {
		s.onSummary(summary, err)
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
