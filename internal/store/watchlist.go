package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/ghwatch/internal/model"
)

// ListWatched returns the active watch list ordered by insertion.
func (s *SQLiteStore) ListWatched(ctx context.Context) ([]model.WatchEntry, error) {
	var entries []model.WatchEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM watchlist WHERE active = 1 ORDER BY added_at, repo")
	if err != nil {
		return nil, classify("listing watched repositories", err)
	}
	return entries, nil
}

// ListWatchEntries returns every watch list row, including removed ones.
func (s *SQLiteStore) ListWatchEntries(ctx context.Context) ([]model.WatchEntry, error) {
	var entries []model.WatchEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM watchlist ORDER BY added_at, repo")
	if err != nil {
		return nil, classify("listing watch entries", err)
	}
	return entries, nil
}

// HasWatchEntries reports whether the watch list has ever been populated.
// A list whose entries were all removed still counts as populated.
func (s *SQLiteStore) HasWatchEntries(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM watchlist"); err != nil {
		return false, classify("counting watch entries", err)
	}
	return count > 0, nil
}

// AddWatched inserts repo into the watch list or reactivates it.
func (s *SQLiteStore) AddWatched(ctx context.Context, repo, origin string) error {
	repo = strings.TrimSpace(repo)
	if !model.ValidRepoName(repo) {
		return fmt.Errorf("invalid repository name %q: expected owner/name", repo)
	}
	switch origin {
	case model.OriginConfig, model.OriginDiscovered, model.OriginManual:
	case "":
		origin = model.OriginManual
	default:
		return fmt.Errorf("invalid watch origin %q", origin)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watchlist (repo, origin, active, added_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(repo) DO UPDATE SET active = 1, origin = excluded.origin`,
		repo, origin, s.timestamp(),
	)
	if err != nil {
		return classify(fmt.Sprintf("adding %s to watch list", repo), err)
	}
	return nil
}

// RemoveWatched deactivates repo. Its snapshots and notifications are kept.
func (s *SQLiteStore) RemoveWatched(ctx context.Context, repo string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE watchlist SET active = 0 WHERE repo = ? AND active = 1",
		strings.TrimSpace(repo),
	)
	if err != nil {
		return classify(fmt.Sprintf("removing %s from watch list", repo), err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("watched repository %s: %w", repo, ErrNotFound)
	}
	return nil
}
