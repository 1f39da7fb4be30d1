package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"github.com/nhle/ghwatch/internal/model"
)

func TestPassSummaryWithoutChanges(t *testing.T) {
	out := DefaultRenderer().PassSummary(model.PassSummary{
		RunID:        "0123456789abcdef",
		Repositories: 2,
		Checked:      7,
		Unchanged:    7,
	})

	assert.Contains(t, out, "Pass 01234567")
	assert.Contains(t, out, "2 repositories, 7 entities checked: 0 new, 0 updated, 7 unchanged")
	assert.Contains(t, out, "No changes detected")
	assert.Contains(t, out, "Notifications: 0 sent, 0 failed")
	assert.NotContains(t, out, "Errors")
}

func TestPassSummaryGroupsChangesPerKind(t *testing.T) {
	out := DefaultRenderer().PassSummary(model.PassSummary{
		Checked: 3,
		Created: 2,
		Updated: 1,
		Changes: []model.ChangeItem{
			{Kind: model.KindIssue, ChangeKind: model.ChangeCreated, Ref: "acme/widget#1", Title: "Bug X", Author: "octocat"},
			{Kind: model.KindPullRequest, ChangeKind: model.ChangeUpdated, Ref: "acme/widget#2", Title: "Fix X"},
			{Kind: model.KindRepository, ChangeKind: model.ChangeCreated, Ref: "acme/widget", Title: "acme/widget"},
		},
		Delivery: model.DeliverySummary{Sent: 2, Failed: 1},
	})

	assert.Contains(t, out, "New Repositories (1)")
	assert.Contains(t, out, "New Issues (1)")
	assert.Contains(t, out, "Updated PRs (1)")
	assert.Contains(t, out, "acme/widget#1  Bug X")
	assert.Contains(t, out, "by octocat")
	assert.Contains(t, out, "Notifications: 2 sent, 1 failed")
	assert.NotContains(t, out, "No changes detected")
	assert.NotContains(t, out, "Updated Issues")

	assert.Less(t, strings.Index(out, "New Repositories"), strings.Index(out, "New Issues"))
	assert.Less(t, strings.Index(out, "New Issues"), strings.Index(out, "Updated PRs"))
}

func TestPassSummaryReportsAbortAndErrors(t *testing.T) {
	out := DefaultRenderer().PassSummary(model.PassSummary{
		Aborted:         "github authentication failed",
		FetchFailed:     1,
		Errors:          []string{"acme/gadget issues: timeout"},
		DeliverySkipped: true,
	})

	assert.Contains(t, out, "Aborted: github authentication failed")
	assert.Contains(t, out, "Errors (1 fetch, 0 commit)")
	assert.Contains(t, out, "acme/gadget issues: timeout")
	assert.Contains(t, out, "Delivery skipped")
}

func TestPassSummaryInterrupted(t *testing.T) {
	out := DefaultRenderer().PassSummary(model.PassSummary{Interrupted: true, Aborted: "interrupted"})
	assert.Contains(t, out, "Interrupted")
	assert.NotContains(t, out, "Aborted:")
}

func TestRendererFormatsNumbersForLocale(t *testing.T) {
	s := model.PassSummary{Checked: 12345, Unchanged: 12345}

	assert.Contains(t, NewRenderer(language.English).PassSummary(s), "12,345 entities checked")
	assert.Contains(t, NewRenderer(language.German).PassSummary(s), "12.345 entities checked")
}

func TestDeliveryMentionsRemaining(t *testing.T) {
	out := DefaultRenderer().Delivery(model.DeliverySummary{Sent: 1, Remaining: 4})
	assert.Contains(t, out, "1 sent, 0 failed, 4 left pending")
}

func TestTables(t *testing.T) {
	r := DefaultRenderer()
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	assert.Contains(t, r.Notifications(nil, now), "Outbox is empty")
	out := r.Notifications([]model.NotificationRecord{{
		ID:         42,
		Entity:     model.EntityKey{Kind: model.KindIssue, Ref: "acme/widget#1"},
		ChangeKind: model.ChangeCreated,
		Status:     model.StatusFailed,
		Attempts:   3,
		LastError:  "telegram: chat not found",
		CreatedAt:  now.Add(-2 * time.Hour),
	}}, now)
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "issue:acme/widget#1")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "2h ago")
	assert.Contains(t, out, "chat not found")

	assert.Contains(t, r.History(nil), "No passes recorded yet")
	hist := r.History([]model.PassRecord{{
		RunID:      "abcdef0123456789",
		StartedAt:  now,
		FinishedAt: now.Add(1500 * time.Millisecond),
		Checked:    1200,
		Aborted:    "storage unavailable",
	}})
	assert.Contains(t, hist, "abcdef01")
	assert.Contains(t, hist, "1.5s")
	assert.Contains(t, hist, "1,200")
	assert.Contains(t, hist, "storage unavailable")

	watch := r.WatchList([]model.WatchEntry{
		{Repo: "acme/widget", Origin: model.OriginConfig, Active: true, AddedAt: now},
		{Repo: "acme/old", Origin: model.OriginManual, Active: false, AddedAt: now},
	}, map[string]time.Time{"acme/widget": now.Add(-5 * time.Minute)}, now)
	assert.Contains(t, watch, "acme/widget")
	assert.Contains(t, watch, "removed")
	assert.Contains(t, watch, "5m ago")
	assert.Contains(t, watch, "never")
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "", RelativeTime(time.Time{}, now))
	assert.Equal(t, "just now", RelativeTime(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m ago", RelativeTime(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3d ago", RelativeTime(now.Add(-72*time.Hour), now))
	assert.Equal(t, "2w ago", RelativeTime(now.Add(-15*24*time.Hour), now))
}

func TestLayoutFillsWidth(t *testing.T) {
	l := NewLayout(40, 10)
	assert.Equal(t, 8, l.ContentHeight())
	assert.Equal(t, 40, lipgloss.Width(l.RenderHeader("ghwatch", "all")))
	assert.Equal(t, 0, NewLayout(10, 1).ContentHeight())
}
