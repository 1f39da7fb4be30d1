package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/store"
	"github.com/nhle/ghwatch/internal/transport"
	"github.com/nhle/ghwatch/tests/testutil"
)

// scriptedTransport fails the n-th Send call of a record when script[ref]
// has an error at index n. Calls beyond the script succeed.
type scriptedTransport struct {
	mu     sync.Mutex
	script map[string][]error
	calls  map[string]int
	sent   []string
	onSend func(ref string)
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{script: map[string][]error{}, calls: map[string]int{}}
}

func (f *scriptedTransport) Name() string { return "fake" }

func (f *scriptedTransport) Send(ctx context.Context, n model.NotificationRecord) error {
	f.mu.Lock()
	ref := n.Entity.Ref
	call := f.calls[ref]
	f.calls[ref]++
	var err error
	if call < len(f.script[ref]) {
		err = f.script[ref][call]
	}
	if err == nil {
		f.sent = append(f.sent, ref)
	}
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(ref)
	}
	if err != nil {
		return transport.Wrap("fake", err)
	}
	return ctx.Err()
}

func (f *scriptedTransport) Close() error { return nil }

func (f *scriptedTransport) failTimes(ref string, n int) {
	for range n {
		f.script[ref] = append(f.script[ref], errors.New("connection reset"))
	}
}

func (f *scriptedTransport) callsFor(ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ref]
}

// rejectingStore refuses every status update with ErrNotFound.
type rejectingStore struct {
	store.Store
}

func (rejectingStore) MarkNotification(context.Context, int64, model.NotificationStatus, *time.Time) error {
	return store.ErrNotFound
}

// failingStatusStore fails every status update with a statement error.
type failingStatusStore struct {
	store.Store
}

func (failingStatusStore) MarkNotification(context.Context, int64, model.NotificationStatus, *time.Time) error {
	return errors.New("constraint failed")
}

// cancelOnSendTransport confirms every send after cancelling the drain.
type cancelOnSendTransport struct {
	cancel context.CancelFunc
	sent   []string
}

func (c *cancelOnSendTransport) Name() string { return "fake" }

func (c *cancelOnSendTransport) Send(_ context.Context, n model.NotificationRecord) error {
	c.sent = append(c.sent, n.Entity.Ref)
	c.cancel()
	return nil
}

func (c *cancelOnSendTransport) Close() error { return nil }

func newManager(s store.Store, tr transport.Transport, attempts int) *Manager {
	return New(s, tr, Options{MaxAttempts: attempts, AttemptTimeout: time.Second}, zerolog.Nop(), nil)
}

func TestDeliverPendingRetriesUntilSent(t *testing.T) {
	s := testutil.NewTestStore(t)
	id := testutil.Enqueue(t, s, "acme/widget#1", "Bug X")

	tr := newScriptedTransport()
	tr.failTimes("acme/widget#1", 2)

	summary, err := newManager(s, tr, 3).DeliverPending(t.Context())
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySummary{Sent: 1}, summary)
	assert.Equal(t, 3, tr.callsFor("acme/widget#1"))

	rec, err := s.GetNotification(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
	assert.NotNil(t, rec.SentAt)
}

func TestDeliverPendingExhaustedAttemptsEndFailed(t *testing.T) {
	s := testutil.NewTestStore(t)
	id := testutil.Enqueue(t, s, "acme/widget#1", "Bug X")

	tr := newScriptedTransport()
	tr.failTimes("acme/widget#1", 3)
	m := newManager(s, tr, 3)

	summary, err := m.DeliverPending(t.Context())
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySummary{Failed: 1}, summary)

	rec, err := s.GetNotification(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, 3, rec.Attempts)
	assert.Contains(t, rec.LastError, "connection reset")

	// A later drain leaves the Failed record alone.
	summary, err = m.DeliverPending(t.Context())
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySummary{}, summary)
	assert.Equal(t, 3, tr.callsFor("acme/widget#1"))
}

func TestDeliverPendingResetRecordIsRetried(t *testing.T) {
	s := testutil.NewTestStore(t)
	id := testutil.Enqueue(t, s, "acme/widget#1", "Bug X")

	tr := newScriptedTransport()
	tr.failTimes("acme/widget#1", 1)
	m := newManager(s, tr, 1)

	_, err := m.DeliverPending(t.Context())
	require.NoError(t, err)

	n, err := s.ResetFailed(t.Context(), id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	summary, err := m.DeliverPending(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
}

func TestDeliverPendingNeverResendsSent(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.Enqueue(t, s, "acme/widget#1", "Bug X")

	tr := newScriptedTransport()
	m := newManager(s, tr, 3)

	_, err := m.DeliverPending(t.Context())
	require.NoError(t, err)
	summary, err := m.DeliverPending(t.Context())
	require.NoError(t, err)

	assert.Equal(t, model.DeliverySummary{}, summary)
	assert.Equal(t, []string{"acme/widget#1"}, tr.sent)
}

func TestDeliverPendingContinuesPastFailure(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.Enqueue(t, s, "acme/widget#1", "Bug X")
	testutil.Enqueue(t, s, "acme/widget#2", "Bug X")
	testutil.Enqueue(t, s, "acme/widget#3", "Bug X")

	tr := newScriptedTransport()
	tr.failTimes("acme/widget#2", 2)

	summary, err := newManager(s, tr, 2).DeliverPending(t.Context())
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySummary{Sent: 2, Failed: 1}, summary)
	assert.Equal(t, []string{"acme/widget#1", "acme/widget#3"}, tr.sent)
}

func TestDeliverPendingCancellationLeavesRestPending(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.Enqueue(t, s, "acme/widget#1", "Bug X")
	testutil.Enqueue(t, s, "acme/widget#2", "Bug X")
	testutil.Enqueue(t, s, "acme/widget#3", "Bug X")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	tr := newScriptedTransport()
	tr.onSend = func(ref string) {
		if ref == "acme/widget#1" {
			cancel()
		}
	}

	summary, err := newManager(s, tr, 3).DeliverPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 3, summary.Remaining)

	pending, err := s.ListPendingNotifications(t.Context())
	require.NoError(t, err)
	assert.Len(t, pending, 3)
	for _, rec := range pending {
		assert.Zero(t, rec.Attempts)
	}
}

func TestDeliverPendingSkipsRejectedStatusUpdate(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.Enqueue(t, s, "acme/widget#1", "Bug X")
	testutil.Enqueue(t, s, "acme/widget#2", "Bug X")

	tr := newScriptedTransport()
	summary, err := newManager(rejectingStore{Store: s}, tr, 3).DeliverPending(t.Context())
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySummary{}, summary)
	assert.Equal(t, []string{"acme/widget#1", "acme/widget#2"}, tr.sent)
}

func TestDeliverPendingStoreUnavailable(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = newManager(s, newScriptedTransport(), 3).DeliverPending(t.Context())
	require.Error(t, err)
	assert.True(t, store.IsUnavailable(err))
}

func TestDeliverPendingConfirmedSendSurvivesCancellation(t *testing.T) {
	s := testutil.NewTestStore(t)
	first := testutil.Enqueue(t, s, "acme/widget#1", "Bug X")
	testutil.Enqueue(t, s, "acme/widget#2", "Bug X")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	tr := &cancelOnSendTransport{cancel: cancel}

	summary, err := newManager(s, tr, 3).DeliverPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySummary{Sent: 1, Remaining: 1}, summary)

	rec, err := s.GetNotification(t.Context(), first)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, rec.Status)
	assert.NotNil(t, rec.SentAt)

	// The next drain only picks up the record that was never sent.
	tr.cancel = func() {}
	summary, err = newManager(s, tr, 3).DeliverPending(t.Context())
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySummary{Sent: 1}, summary)
	assert.Equal(t, []string{"acme/widget#1", "acme/widget#2"}, tr.sent)
}

func TestDeliverPendingUnwrittenStatusCountsAsRemaining(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.Enqueue(t, s, "acme/widget#1", "Bug X")
	testutil.Enqueue(t, s, "acme/widget#2", "Bug X")

	summary, err := newManager(failingStatusStore{Store: s}, newScriptedTransport(), 3).DeliverPending(t.Context())
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySummary{Remaining: 2}, summary)

	pending, err := s.ListPendingNotifications(t.Context())
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
