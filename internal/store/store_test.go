package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ghwatch/internal/model"
)

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", WithClock(stepClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func issueSnapshot(ref, state string) model.Snapshot {
	return model.Snapshot{
		Kind:     model.KindIssue,
		Ref:      ref,
		RemoteID: 42,
		Fields: model.Fields{
			model.FieldTitle:     "Bug X",
			model.FieldState:     state,
			model.FieldUpdatedAt: "2026-01-01T00:00:00Z",
		},
	}
}

func notificationFor(snap model.Snapshot, change model.ChangeKind) *model.NotificationRecord {
	return &model.NotificationRecord{
		Entity:     snap.Key(),
		ChangeKind: change,
		RunID:      "run-1",
		Payload: model.Payload{
			Headline: "New Issue",
			Subject:  snap.Ref,
			Title:    "Bug X",
			HTML:     "<b>" + snap.Ref + "</b>",
			Text:     snap.Ref,
		},
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.runMigrations())

	var version int
	require.NoError(t, s.db.Get(&version, "SELECT MAX(version) FROM schema_version"))
	assert.Equal(t, len(migrations), version)
}

func TestGetSnapshotMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.GetSnapshot(t.Context(), model.EntityKey{Kind: model.KindIssue, Ref: "acme/widget#1"})
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestCommitWritesSnapshotAndNotification(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	snap := issueSnapshot("acme/widget#7", "open")

	id, err := s.Commit(ctx, snap, notificationFor(snap, model.ChangeCreated))
	require.NoError(t, err)
	assert.NotZero(t, id)

	got, err := s.GetSnapshot(ctx, snap.Key())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.Fields, got.Fields)
	assert.Equal(t, int64(42), got.RemoteID)
	assert.False(t, got.FirstSeenAt.IsZero())

	pending, err := s.ListPendingNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, snap.Key(), pending[0].Entity)
	assert.Equal(t, model.ChangeCreated, pending[0].ChangeKind)
	assert.Equal(t, model.StatusPending, pending[0].Status)
	assert.Equal(t, "New Issue", pending[0].Payload.Headline)
	assert.Equal(t, "run-1", pending[0].RunID)
	assert.Nil(t, pending[0].SentAt)
}

func TestCommitUpdateKeepsFirstSeen(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	snap := issueSnapshot("acme/widget#7", "open")

	_, err := s.Commit(ctx, snap, notificationFor(snap, model.ChangeCreated))
	require.NoError(t, err)
	first, err := s.GetSnapshot(ctx, snap.Key())
	require.NoError(t, err)

	closed := issueSnapshot("acme/widget#7", "closed")
	_, err = s.Commit(ctx, closed, notificationFor(closed, model.ChangeUpdated))
	require.NoError(t, err)

	second, err := s.GetSnapshot(ctx, snap.Key())
	require.NoError(t, err)
	assert.Equal(t, "closed", second.Fields[model.FieldState])
	assert.True(t, first.FirstSeenAt.Equal(second.FirstSeenAt))
	assert.True(t, second.LastChangedAt.After(first.LastChangedAt))

	pending, err := s.ListPendingNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, model.ChangeCreated, pending[0].ChangeKind)
	assert.Equal(t, model.ChangeUpdated, pending[1].ChangeKind)
}

func TestCommitWithoutNotification(t *testing.T) {
	s := newTestStore(t)
	snap := issueSnapshot("acme/widget#7", "open")

	id, err := s.Commit(t.Context(), snap, nil)
	require.NoError(t, err)
	assert.Zero(t, id)

	pending, err := s.ListPendingNotifications(t.Context())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCommitIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	crash := errors.New("simulated crash")
	s.afterSnapshotWrite = func() error { return crash }

	snap := issueSnapshot("acme/widget#7", "open")
	_, err := s.Commit(ctx, snap, notificationFor(snap, model.ChangeCreated))
	require.ErrorIs(t, err, crash)

	got, err := s.GetSnapshot(ctx, snap.Key())
	require.NoError(t, err)
	assert.Nil(t, got, "snapshot must not be visible without its notification")

	pending, err := s.ListPendingNotifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A retry after the crash re-detects the change and succeeds.
	s.afterSnapshotWrite = nil
	_, err = s.Commit(ctx, snap, notificationFor(snap, model.ChangeCreated))
	require.NoError(t, err)
	pending, err = s.ListPendingNotifications(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestCommitRejectsUnchangedNotification(t *testing.T) {
	s := newTestStore(t)
	snap := issueSnapshot("acme/widget#7", "open")
	_, err := s.Commit(t.Context(), snap, notificationFor(snap, model.ChangeUnchanged))
	require.Error(t, err)
}

func TestTouchOnlyRefreshesLastChecked(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	snap := issueSnapshot("acme/widget#7", "open")
	_, err := s.Commit(ctx, snap, nil)
	require.NoError(t, err)
	before, err := s.GetSnapshot(ctx, snap.Key())
	require.NoError(t, err)

	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Touch(ctx, snap.Key(), at))

	after, err := s.GetSnapshot(ctx, snap.Key())
	require.NoError(t, err)
	assert.True(t, after.LastCheckedAt.Equal(at))
	assert.True(t, after.LastChangedAt.Equal(before.LastChangedAt))
	assert.Equal(t, before.Fields, after.Fields)

	// Unknown entities are ignored.
	require.NoError(t, s.Touch(ctx, model.EntityKey{Kind: model.KindRepository, Ref: "acme/none"}, at))
}

func TestListPendingIsEnqueueOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	var ids []int64
	for _, ref := range []string{"acme/widget#3", "acme/widget#1", "acme/widget#2"} {
		snap := issueSnapshot(ref, "open")
		id, err := s.Commit(ctx, snap, notificationFor(snap, model.ChangeCreated))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	pending, err := s.ListPendingNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, rec := range pending {
		assert.Equal(t, ids[i], rec.ID)
	}
}

func TestMarkNotificationTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	snap := issueSnapshot("acme/widget#7", "open")
	id, err := s.Commit(ctx, snap, notificationFor(snap, model.ChangeCreated))
	require.NoError(t, err)

	require.NoError(t, s.MarkNotification(ctx, id, model.StatusSent, nil))

	rec, err := s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, rec.Status)
	require.NotNil(t, rec.SentAt)

	// Sent is terminal.
	err = s.MarkNotification(ctx, id, model.StatusSent, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)
	err = s.MarkNotification(ctx, id, model.StatusFailed, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)

	pending, err := s.ListPendingNotifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMarkNotificationNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.MarkNotification(t.Context(), 999, model.StatusSent, nil)
	require.ErrorIs(t, err, ErrNotFound)

	err = s.RecordDeliveryAttempt(t.Context(), 999, "boom")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetNotification(t.Context(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMarkNotificationRejectsPendingTarget(t *testing.T) {
	s := newTestStore(t)
	snap := issueSnapshot("acme/widget#7", "open")
	id, err := s.Commit(t.Context(), snap, notificationFor(snap, model.ChangeCreated))
	require.NoError(t, err)

	err = s.MarkNotification(t.Context(), id, model.StatusPending, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecordDeliveryAttemptAndResetFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	snap := issueSnapshot("acme/widget#7", "open")
	id, err := s.Commit(ctx, snap, notificationFor(snap, model.ChangeCreated))
	require.NoError(t, err)

	require.NoError(t, s.RecordDeliveryAttempt(ctx, id, "timeout"))
	require.NoError(t, s.RecordDeliveryAttempt(ctx, id, "connection refused"))
	require.NoError(t, s.MarkNotification(ctx, id, model.StatusFailed, nil))

	rec, err := s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, "connection refused", rec.LastError)

	// Failed records are never listed as pending.
	pending, err := s.ListPendingNotifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err := s.ResetFailed(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err = s.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Zero(t, rec.Attempts)
	assert.Empty(t, rec.LastError)

	// Resetting a Pending record is not allowed.
	_, err = s.ResetFailed(ctx, id)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.ResetFailed(ctx, 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResetFailedAll(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	for _, ref := range []string{"acme/widget#1", "acme/widget#2"} {
		snap := issueSnapshot(ref, "open")
		id, err := s.Commit(ctx, snap, notificationFor(snap, model.ChangeCreated))
		require.NoError(t, err)
		require.NoError(t, s.MarkNotification(ctx, id, model.StatusFailed, nil))
	}

	n, err := s.ResetFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	pending, err := s.ListPendingNotifications(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestListNotificationsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	a := issueSnapshot("acme/widget#1", "open")
	b := issueSnapshot("acme/widget#2", "open")
	idA, err := s.Commit(ctx, a, notificationFor(a, model.ChangeCreated))
	require.NoError(t, err)
	_, err = s.Commit(ctx, b, notificationFor(b, model.ChangeCreated))
	require.NoError(t, err)
	require.NoError(t, s.MarkNotification(ctx, idA, model.StatusSent, nil))

	all, err := s.ListNotifications(ctx, NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "acme/widget#2", all[0].Entity.Ref, "newest first")

	sent := model.StatusSent
	onlySent, err := s.ListNotifications(ctx, NotificationFilter{Status: &sent})
	require.NoError(t, err)
	require.Len(t, onlySent, 1)
	assert.Equal(t, idA, onlySent[0].ID)

	key := b.Key()
	forB, err := s.ListNotifications(ctx, NotificationFilter{Entity: &key, Limit: 10})
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, "acme/widget#2", forB[0].Entity.Ref)

	limited, err := s.ListNotifications(ctx, NotificationFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestListSnapshotsByKind(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	_, err := s.Commit(ctx, issueSnapshot("acme/widget#2", "open"), nil)
	require.NoError(t, err)
	_, err = s.Commit(ctx, issueSnapshot("acme/widget#1", "open"), nil)
	require.NoError(t, err)
	_, err = s.Commit(ctx, model.Snapshot{
		Kind:   model.KindRepository,
		Ref:    "acme/widget",
		Fields: model.Fields{model.FieldPushedAt: "2026-01-01T00:00:00Z"},
	}, nil)
	require.NoError(t, err)

	issues, err := s.ListSnapshots(ctx, model.KindIssue)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "acme/widget#1", issues[0].Ref)

	repos, err := s.ListSnapshots(ctx, model.KindRepository)
	require.NoError(t, err)
	assert.Len(t, repos, 1)
}

func TestWatchList(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	has, err := s.HasWatchEntries(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.AddWatched(ctx, "acme/widget", model.OriginManual))
	require.NoError(t, s.AddWatched(ctx, "acme/gadget", model.OriginConfig))
	require.Error(t, s.AddWatched(ctx, "not-a-repo", model.OriginManual))
	require.Error(t, s.AddWatched(ctx, "acme/x", "bogus"))

	watched, err := s.ListWatched(ctx)
	require.NoError(t, err)
	require.Len(t, watched, 2)
	assert.Equal(t, "acme/widget", watched[0].Repo)
	assert.True(t, watched[0].Active)

	require.NoError(t, s.RemoveWatched(ctx, "acme/widget"))
	require.ErrorIs(t, s.RemoveWatched(ctx, "acme/widget"), ErrNotFound)

	watched, err = s.ListWatched(ctx)
	require.NoError(t, err)
	require.Len(t, watched, 1)
	assert.Equal(t, "acme/gadget", watched[0].Repo)

	entries, err := s.ListWatchEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// Re-adding reactivates the entry.
	require.NoError(t, s.AddWatched(ctx, "acme/widget", ""))
	watched, err = s.ListWatched(ctx)
	require.NoError(t, err)
	assert.Len(t, watched, 2)
}

func TestRecordAndListPasses(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b"} {
		require.NoError(t, s.RecordPass(ctx, model.PassRecord{
			RunID:      id,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Checked:    3,
			Created:    i,
			Sent:       i,
		}))
	}
	require.Error(t, s.RecordPass(ctx, model.PassRecord{}))

	passes, err := s.ListPasses(ctx, 10)
	require.NoError(t, err)
	require.Len(t, passes, 2)
	assert.Equal(t, "run-b", passes[0].RunID)
	assert.Equal(t, 3, passes[0].Checked)

	passes, err = s.ListPasses(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, passes, 1)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Ping(t.Context())
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))

	_, err = s.GetSnapshot(t.Context(), model.EntityKey{Kind: model.KindIssue, Ref: "acme/widget#1"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}
