package store

import (
	"context"
	"time"

	"github.com/nhle/ghwatch/internal/model"
)

// NotificationFilter controls filtering and pagination for outbox queries.
type NotificationFilter struct {
	Status *model.NotificationStatus
	Entity *model.EntityKey
	Limit  int
}

// Store defines the persistence interface for entity snapshots, the
// notification outbox, the watch list, and pass history.
type Store interface {
	// Ping verifies the underlying database is reachable.
	Ping(ctx context.Context) error

	// === Entities ===

	// GetSnapshot returns the last persisted snapshot, or nil when the
	// entity has never been committed.
	GetSnapshot(ctx context.Context, key model.EntityKey) (*model.Snapshot, error)

	// Commit atomically writes snapshot and, when n is non-nil, appends n
	// to the outbox as Pending. Either both are visible afterwards or
	// neither is. It returns the new notification ID, or 0.
	Commit(ctx context.Context, snapshot model.Snapshot, n *model.NotificationRecord) (int64, error)

	// Touch refreshes last_checked_at of an existing entity without
	// changing its snapshot. Unknown entities are ignored.
	Touch(ctx context.Context, key model.EntityKey, at time.Time) error

	// ListSnapshots returns every snapshot of the given kind.
	ListSnapshots(ctx context.Context, kind model.Kind) ([]model.Snapshot, error)

	// === Outbox ===

	// ListPendingNotifications returns Pending records oldest first.
	ListPendingNotifications(ctx context.Context) ([]model.NotificationRecord, error)

	// MarkNotification sets the status of one record. Sent is terminal.
	MarkNotification(ctx context.Context, id int64, status model.NotificationStatus, sentAt *time.Time) error

	// RecordDeliveryAttempt increments the attempt counter and stores the
	// last error message, leaving the status untouched.
	RecordDeliveryAttempt(ctx context.Context, id int64, errMsg string) error

	GetNotification(ctx context.Context, id int64) (*model.NotificationRecord, error)
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]model.NotificationRecord, error)

	// ResetFailed moves Failed records back to Pending. With no ids every
	// Failed record is reset.
	ResetFailed(ctx context.Context, ids ...int64) (int64, error)

	// === Watch list ===

	ListWatched(ctx context.Context) ([]model.WatchEntry, error)
	ListWatchEntries(ctx context.Context) ([]model.WatchEntry, error)
	HasWatchEntries(ctx context.Context) (bool, error)
	AddWatched(ctx context.Context, repo, origin string) error
	RemoveWatched(ctx context.Context, repo string) error

	// === Pass history ===

	RecordPass(ctx context.Context, rec model.PassRecord) error
	ListPasses(ctx context.Context, limit int) ([]model.PassRecord, error)

	Close() error
}
