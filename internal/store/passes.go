package store

import (
	"context"
	"fmt"

	"github.com/nhle/ghwatch/internal/model"
)

// RecordPass stores the summary of one reconciliation pass.
func (s *SQLiteStore) RecordPass(ctx context.Context, rec model.PassRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("recording pass: empty run id")
	}
	rec.StartedAt = rec.StartedAt.UTC()
	rec.FinishedAt = rec.FinishedAt.UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO pass_runs (
			run_id, started_at, finished_at,
			checked, created, updated, unchanged,
			fetch_failed, commit_failed, sent, failed, aborted
		) VALUES (
			:run_id, :started_at, :finished_at,
			:checked, :created, :updated, :unchanged,
			:fetch_failed, :commit_failed, :sent, :failed, :aborted
		)`, rec)
	if err != nil {
		return classify(fmt.Sprintf("recording pass %s", rec.RunID), err)
	}
	return nil
}

// ListPasses returns the most recent passes, newest first. A non-positive
// limit returns every pass.
func (s *SQLiteStore) ListPasses(ctx context.Context, limit int) ([]model.PassRecord, error) {
	query := "SELECT * FROM pass_runs ORDER BY started_at DESC, run_id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	var passes []model.PassRecord
	if err := s.db.SelectContext(ctx, &passes, query, args...); err != nil {
		return nil, classify("listing passes", err)
	}
	return passes, nil
}
