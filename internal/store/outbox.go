package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/ghwatch/internal/model"
)

// execer is satisfied by both *sqlx.DB and *sqlx.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// notificationRow is the database representation of an outbox record.
type notificationRow struct {
	ID         int64      `db:"id"`
	EntityKind string     `db:"entity_kind"`
	EntityRef  string     `db:"entity_ref"`
	ChangeKind string     `db:"change_kind"`
	Payload    string     `db:"payload"`
	Status     string     `db:"status"`
	RunID      string     `db:"run_id"`
	Attempts   int        `db:"attempts"`
	LastError  string     `db:"last_error"`
	CreatedAt  time.Time  `db:"created_at"`
	SentAt     *time.Time `db:"sent_at"`
}

func (r notificationRow) toModel() (model.NotificationRecord, error) {
	rec := model.NotificationRecord{
		ID:         r.ID,
		Entity:     model.EntityKey{Kind: model.Kind(r.EntityKind), Ref: r.EntityRef},
		ChangeKind: model.ChangeKind(r.ChangeKind),
		Status:     model.NotificationStatus(r.Status),
		RunID:      r.RunID,
		Attempts:   r.Attempts,
		LastError:  r.LastError,
		CreatedAt:  r.CreatedAt,
		SentAt:     r.SentAt,
	}
	if err := json.Unmarshal([]byte(r.Payload), &rec.Payload); err != nil {
		return rec, fmt.Errorf("decoding payload of notification %d: %w", r.ID, err)
	}
	return rec, nil
}

func rowsToNotifications(rows []notificationRow) ([]model.NotificationRecord, error) {
	out := make([]model.NotificationRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ListPendingNotifications returns Pending records in enqueue order.
func (s *SQLiteStore) ListPendingNotifications(ctx context.Context) ([]model.NotificationRecord, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM notifications WHERE status = ? ORDER BY created_at, id",
		model.StatusPending,
	)
	if err != nil {
		return nil, classify("listing pending notifications", err)
	}
	return rowsToNotifications(rows)
}

// MarkNotification moves a Pending record to Sent or Failed. Any other
// transition, including re-marking a Sent record, is rejected.
func (s *SQLiteStore) MarkNotification(
	ctx context.Context,
	id int64,
	status model.NotificationStatus,
	sentAt *time.Time,
) error {
	if status != model.StatusSent && status != model.StatusFailed {
		return fmt.Errorf("marking notification %d as %q: %w", id, status, ErrInvalidTransition)
	}

	var stamp *time.Time
	if status == model.StatusSent {
		t := s.timestamp()
		if sentAt != nil {
			t = sentAt.UTC()
		}
		stamp = &t
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET status = ?, sent_at = ? WHERE id = ? AND status = ?",
		status, stamp, id, model.StatusPending,
	)
	if err != nil {
		return classify(fmt.Sprintf("marking notification %d", id), err)
	}
	rows, _ := res.RowsAffected()
	if rows == 1 {
		return nil
	}

	current, err := s.notificationStatus(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("marking notification %d %s as %s: %w", id, current, status, ErrInvalidTransition)
}

// notificationStatus returns the current status of a record or ErrNotFound.
func (s *SQLiteStore) notificationStatus(ctx context.Context, id int64) (model.NotificationStatus, error) {
	var status string
	err := s.db.GetContext(ctx, &status, "SELECT status FROM notifications WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", classify(fmt.Sprintf("reading notification %d", id), err)
	}
	return model.NotificationStatus(status), nil
}

// RecordDeliveryAttempt bumps the attempt counter of a record.
func (s *SQLiteStore) RecordDeliveryAttempt(ctx context.Context, id int64, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET attempts = attempts + 1, last_error = ? WHERE id = ?",
		errMsg, id,
	)
	if err != nil {
		return classify(fmt.Sprintf("recording attempt for notification %d", id), err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetNotification retrieves a single outbox record by ID.
func (s *SQLiteStore) GetNotification(ctx context.Context, id int64) (*model.NotificationRecord, error) {
	var row notificationRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM notifications WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Sprintf("getting notification %d", id), err)
	}
	rec, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListNotifications returns records matching filter, newest first.
func (s *SQLiteStore) ListNotifications(
	ctx context.Context,
	filter NotificationFilter,
) ([]model.NotificationRecord, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Entity != nil {
		conditions = append(conditions, "entity_kind = ? AND entity_ref = ?")
		args = append(args, filter.Entity.Kind, filter.Entity.Ref)
	}

	query := "SELECT * FROM notifications"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classify("listing notifications", err)
	}
	return rowsToNotifications(rows)
}

// ResetFailed moves Failed records back to Pending and clears their attempt
// bookkeeping. Passing no ids resets every Failed record. Named records
// that do not exist or are not Failed abort the whole reset.
func (s *SQLiteStore) ResetFailed(ctx context.Context, ids ...int64) (int64, error) {
	const reset = "UPDATE notifications SET status = ?, attempts = 0, last_error = '' WHERE status = ?"

	if len(ids) == 0 {
		res, err := s.db.ExecContext(ctx, reset, model.StatusPending, model.StatusFailed)
		if err != nil {
			return 0, classify("resetting failed notifications", err)
		}
		n, _ := res.RowsAffected()
		return n, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, classify("beginning reset", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, id := range ids {
		var status string
		err := tx.GetContext(ctx, &status, "SELECT status FROM notifications WHERE id = ?", id)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("notification %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return 0, classify(fmt.Sprintf("reading notification %d", id), err)
		}
		if model.NotificationStatus(status) != model.StatusFailed {
			return 0, fmt.Errorf("resetting notification %d (%s): %w", id, status, ErrInvalidTransition)
		}
		res, err := tx.ExecContext(ctx, reset+" AND id = ?", model.StatusPending, model.StatusFailed, id)
		if err != nil {
			return 0, classify(fmt.Sprintf("resetting notification %d", id), err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("committing reset", err)
	}
	return total, nil
}
