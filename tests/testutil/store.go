// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied
// and closes it when the test completes.
func NewTestStore(t *testing.T, opts ...store.Option) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:", opts...)
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Enqueue commits a new open issue titled title under ref and returns the
// ID of its Pending "New Issue" notification.
func Enqueue(t *testing.T, s store.Store, ref, title string) int64 {
	t.Helper()

	snap := model.Snapshot{
		Kind:   model.KindIssue,
		Ref:    ref,
		Fields: model.Fields{model.FieldTitle: title, model.FieldState: "open"},
	}
	id, err := s.Commit(t.Context(), snap, &model.NotificationRecord{
		Entity:     snap.Key(),
		ChangeKind: model.ChangeCreated,
		RunID:      "run-1",
		Payload: model.Payload{
			Headline: "New Issue",
			Subject:  ref,
			Title:    title,
			Text:     "New Issue\n" + ref + "\n" + title,
		},
	})
	if err != nil {
		t.Fatalf("enqueueing %s: %v", ref, err)
	}
	return id
}
