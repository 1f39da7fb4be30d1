// Package outbox drains Pending notification records through a transport.
//
// Each record is sent with a fixed number of attempts. A record is marked
// Sent only after the transport confirms delivery and Failed once its
// attempts are exhausted; Failed records stay put until an operator
// resets them. One record's failure never stops the drain.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/ghwatch/internal/logging"
	"github.com/nhle/ghwatch/internal/metrics"
	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/store"
	"github.com/nhle/ghwatch/internal/transport"
)

// Options bounds delivery retries.
type Options struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryDelay     time.Duration
}

// OptionsFromConfig extracts delivery options from cfg.
func OptionsFromConfig(cfg model.DeliveryConfig) Options {
	return Options{
		MaxAttempts:    cfg.MaxAttempts,
		AttemptTimeout: cfg.AttemptTimeout,
		RetryDelay:     cfg.RetryDelay,
	}
}

// Manager delivers the outbox of one store through one transport.
type Manager struct {
	store     store.Store
	transport transport.Transport
	opts      Options
	log       zerolog.Logger
	metrics   metrics.Recorder
	now       func() time.Time
}

// New creates a Manager. A nil recorder disables metrics.
func New(
	s store.Store,
	t transport.Transport,
	opts Options,
	log zerolog.Logger,
	rec metrics.Recorder,
) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Manager{
		store:     s,
		transport: t,
		opts:      opts,
		log:       logging.Component(log, "outbox"),
		metrics:   rec,
		now:       time.Now,
	}
}

// DeliverPending drains every Pending record in enqueue order. It returns
// an error only when the store itself fails; per-record delivery failures
// are counted in the summary. Cancellation stops the drain between
// attempts and leaves the rest Pending.
func (m *Manager) DeliverPending(ctx context.Context) (model.DeliverySummary, error) {
	var summary model.DeliverySummary

	pending, err := m.store.ListPendingNotifications(ctx)
	if err != nil {
		return summary, err
	}
	if len(pending) == 0 {
		m.metrics.SetPending(0)
		return summary, nil
	}

	m.log.Debug().Int("pending", len(pending)).Str("transport", m.transport.Name()).Msg("draining outbox")

	for i, rec := range pending {
		if ctx.Err() != nil {
			summary.Remaining += len(pending) - i
			break
		}

		res, err := m.deliver(ctx, rec)
		if err != nil {
			summary.Remaining += len(pending) - i
			m.metrics.SetPending(summary.Remaining)
			return summary, err
		}
		if res == outcomeInterrupted {
			summary.Remaining += len(pending) - i
			break
		}
		switch res {
		case outcomeSent:
			summary.Sent++
		case outcomeFailed:
			summary.Failed++
		case outcomeUnrecorded:
			summary.Remaining++
		}
	}

	m.metrics.SetPending(summary.Remaining)
	if summary.Remaining > 0 {
		m.log.Info().Int("remaining", summary.Remaining).Msg("records left pending")
	}
	return summary, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeInterrupted
	outcomeSkipped
	// outcomeUnrecorded means the status write failed and the record is
	// still Pending.
	outcomeUnrecorded
)

// deliver sends one record with bounded retries and records the result.
// The returned error is non-nil only for storage failures.
func (m *Manager) deliver(ctx context.Context, rec model.NotificationRecord) (outcome, error) {
	log := m.log.With().
		Int64(logging.FieldNotificationID, rec.ID).
		Str(logging.FieldKind, string(rec.Entity.Kind)).
		Str(logging.FieldRef, rec.Entity.Ref).
		Logger()

	// Status writes must land even when ctx is cancelled right after the
	// transport confirmed delivery.
	writeCtx := context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, m.opts.AttemptTimeout)
		err := m.transport.Send(attemptCtx, rec)
		cancel()

		if err == nil {
			m.metrics.IncDelivery(m.transport.Name(), metrics.DeliverySent)
			sentAt := m.now().UTC()
			if err := m.store.MarkNotification(writeCtx, rec.ID, model.StatusSent, &sentAt); err != nil {
				return m.markFailed(log, err)
			}
			log.Info().Int(logging.FieldAttempt, attempt).Msg("notification sent")
			return outcomeSent, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			// The drain was cancelled mid-attempt; the record stays Pending.
			log.Warn().Err(err).Int(logging.FieldAttempt, attempt).Msg("delivery interrupted")
			return outcomeInterrupted, nil
		}

		log.Warn().Err(err).Int(logging.FieldAttempt, attempt).Int("max_attempts", m.opts.MaxAttempts).Msg("delivery attempt failed")
		if recErr := m.store.RecordDeliveryAttempt(writeCtx, rec.ID, err.Error()); recErr != nil {
			if store.IsUnavailable(recErr) {
				return outcomeSkipped, recErr
			}
			log.Error().Err(recErr).Msg("recording delivery attempt")
		}

		if attempt < m.opts.MaxAttempts {
			m.metrics.IncDelivery(m.transport.Name(), metrics.DeliveryRetry)
			if err := sleep(ctx, m.opts.RetryDelay); err != nil {
				return outcomeInterrupted, nil
			}
		}
	}

	m.metrics.IncDelivery(m.transport.Name(), metrics.DeliveryFailed)
	if err := m.store.MarkNotification(writeCtx, rec.ID, model.StatusFailed, nil); err != nil {
		return m.markFailed(log, err)
	}
	log.Error().Err(lastErr).Int("attempts", m.opts.MaxAttempts).Msg("notification failed")
	return outcomeFailed, nil
}

// markFailed handles an error from MarkNotification. Contract violations
// are logged and skipped, storage failures abort the drain, and anything
// else leaves the record Pending.
func (m *Manager) markFailed(log zerolog.Logger, err error) (outcome, error) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidTransition) {
		log.Error().Err(err).Msg("outbox status update rejected")
		return outcomeSkipped, nil
	}
	if store.IsUnavailable(err) {
		return outcomeSkipped, err
	}
	log.Error().Err(err).Msg("updating notification status")
	return outcomeUnrecorded, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
