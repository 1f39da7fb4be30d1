package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/ghwatch/internal/model"
)

// entityRow is the database representation of a snapshot.
type entityRow struct {
	Kind          string    `db:"kind"`
	Ref           string    `db:"ref"`
	RemoteID      int64     `db:"remote_id"`
	Snapshot      string    `db:"snapshot"`
	FirstSeenAt   time.Time `db:"first_seen_at"`
	LastChangedAt time.Time `db:"last_changed_at"`
	LastCheckedAt time.Time `db:"last_checked_at"`
}

func (r entityRow) toModel() (model.Snapshot, error) {
	snap := model.Snapshot{
		Kind:          model.Kind(r.Kind),
		Ref:           r.Ref,
		RemoteID:      r.RemoteID,
		FirstSeenAt:   r.FirstSeenAt,
		LastChangedAt: r.LastChangedAt,
		LastCheckedAt: r.LastCheckedAt,
	}
	if err := json.Unmarshal([]byte(r.Snapshot), &snap.Fields); err != nil {
		return snap, fmt.Errorf("decoding snapshot of %s:%s: %w", r.Kind, r.Ref, err)
	}
	return snap, nil
}

// GetSnapshot returns the stored snapshot for key, or nil if there is none.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, key model.EntityKey) (*model.Snapshot, error) {
	var row entityRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM entities WHERE kind = ? AND ref = ?", key.Kind, key.Ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Sprintf("getting snapshot %s", key), err)
	}
	snap, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Commit writes snapshot and the optional notification in one transaction.
func (s *SQLiteStore) Commit(
	ctx context.Context,
	snapshot model.Snapshot,
	n *model.NotificationRecord,
) (int64, error) {
	if !snapshot.Kind.Valid() {
		return 0, fmt.Errorf("committing snapshot: unknown kind %q", snapshot.Kind)
	}
	if snapshot.Ref == "" {
		return 0, fmt.Errorf("committing snapshot: empty ref")
	}
	if n != nil && n.ChangeKind != model.ChangeCreated && n.ChangeKind != model.ChangeUpdated {
		return 0, fmt.Errorf("committing snapshot %s: cannot enqueue %q change", snapshot.Key(), n.ChangeKind)
	}

	fields, err := json.Marshal(snapshot.Fields)
	if err != nil {
		return 0, fmt.Errorf("encoding snapshot %s: %w", snapshot.Key(), err)
	}

	now := s.timestamp()
	firstSeen := snapshot.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = now
	}
	changed := snapshot.LastChangedAt
	if changed.IsZero() {
		changed = now
	}
	checked := snapshot.LastCheckedAt
	if checked.IsZero() {
		checked = now
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, classify("beginning commit", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (
			kind, ref, remote_id, snapshot,
			first_seen_at, last_changed_at, last_checked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, ref) DO UPDATE SET
			remote_id = excluded.remote_id,
			snapshot = excluded.snapshot,
			last_changed_at = excluded.last_changed_at,
			last_checked_at = excluded.last_checked_at`,
		snapshot.Kind, snapshot.Ref, snapshot.RemoteID, string(fields),
		firstSeen.UTC(), changed.UTC(), checked.UTC(),
	)
	if err != nil {
		return 0, classify(fmt.Sprintf("writing snapshot %s", snapshot.Key()), err)
	}

	if s.afterSnapshotWrite != nil {
		if err := s.afterSnapshotWrite(); err != nil {
			return 0, err
		}
	}

	var id int64
	if n != nil {
		id, err = insertNotification(ctx, tx, snapshot.Key(), n, now)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify(fmt.Sprintf("committing %s", snapshot.Key()), err)
	}
	return id, nil
}

func insertNotification(
	ctx context.Context,
	tx execer,
	key model.EntityKey,
	n *model.NotificationRecord,
	now time.Time,
) (int64, error) {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return 0, fmt.Errorf("encoding payload for %s: %w", key, err)
	}
	if n.Entity.Ref != "" {
		key = n.Entity
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (
			entity_kind, entity_ref, change_kind, payload,
			status, run_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.Kind, key.Ref, n.ChangeKind, string(payload),
		model.StatusPending, n.RunID, now,
	)
	if err != nil {
		return 0, classify(fmt.Sprintf("enqueueing notification for %s", key), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, classify("reading notification id", err)
	}
	return id, nil
}

// Touch refreshes last_checked_at of an existing entity.
func (s *SQLiteStore) Touch(ctx context.Context, key model.EntityKey, at time.Time) error {
	if at.IsZero() {
		at = s.timestamp()
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE entities SET last_checked_at = ? WHERE kind = ? AND ref = ?",
		at.UTC(), key.Kind, key.Ref,
	)
	if err != nil {
		return classify(fmt.Sprintf("touching %s", key), err)
	}
	return nil
}

// ListSnapshots returns all snapshots of kind ordered by ref.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, kind model.Kind) ([]model.Snapshot, error) {
	var rows []entityRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM entities WHERE kind = ? ORDER BY ref", kind)
	if err != nil {
		return nil, classify("listing snapshots", err)
	}
	out := make([]model.Snapshot, 0, len(rows))
	for _, r := range rows {
		snap, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}
