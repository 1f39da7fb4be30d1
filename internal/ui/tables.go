package ui

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/theme"
)

const timeLayout = "2006-01-02 15:04"

var headerCellStyle = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCellStyle
			}
			return cellStyle
		})
}

// Notifications renders outbox records as a table.
func (r Renderer) Notifications(recs []model.NotificationRecord, now time.Time) string {
	if len(recs) == 0 {
		return theme.DimmedStyle.Render("Outbox is empty") + "\n"
	}
	t := newTable("ID", "Status", "Change", "Entity", "Attempts", "Created", "Last error")
	for _, n := range recs {
		t.Row(
			strconv.FormatInt(n.ID, 10),
			theme.NotificationStatusStyle(string(n.Status)).Render(string(n.Status)),
			string(n.ChangeKind),
			n.Entity.String(),
			strconv.Itoa(n.Attempts),
			RelativeTime(n.CreatedAt, now),
			truncate(n.LastError, 40),
		)
	}
	return t.String() + "\n"
}

// History renders recorded passes, newest first as given.
func (r Renderer) History(passes []model.PassRecord) string {
	if len(passes) == 0 {
		return theme.DimmedStyle.Render("No passes recorded yet") + "\n"
	}
	t := newTable("Run", "Started", "Duration", "Checked", "New", "Updated", "Fetch err", "Commit err", "Sent", "Failed", "Aborted")
	for _, p := range passes {
		dur := ""
		if !p.FinishedAt.IsZero() {
			dur = p.FinishedAt.Sub(p.StartedAt).Round(time.Millisecond).String()
		}
		t.Row(
			shortID(p.RunID),
			p.StartedAt.Local().Format(timeLayout),
			dur,
			r.p.Sprintf("%d", p.Checked),
			r.p.Sprintf("%d", p.Created),
			r.p.Sprintf("%d", p.Updated),
			r.p.Sprintf("%d", p.FetchFailed),
			r.p.Sprintf("%d", p.CommitFailed),
			r.p.Sprintf("%d", p.Sent),
			r.p.Sprintf("%d", p.Failed),
			p.Aborted,
		)
	}
	return t.String() + "\n"
}

// WatchList renders the watch list, removed entries included.
// WatchList renders the watch list. checked maps a repository to the last
// time a pass looked at it; repositories missing from it show "never".
func (r Renderer) WatchList(entries []model.WatchEntry, checked map[string]time.Time, now time.Time) string {
	if len(entries) == 0 {
		return theme.DimmedStyle.Render("Watch list is empty") + "\n"
	}
	t := newTable("Repository", "Origin", "Active", "Added", "Last checked")
	for _, e := range entries {
		active := "yes"
		if !e.Active {
			active = "removed"
		}
		last := "never"
		if at, ok := checked[e.Repo]; ok && !at.IsZero() {
			last = RelativeTime(at, now)
		}
		t.Row(e.Repo, e.Origin, active, e.AddedAt.Local().Format(timeLayout), last)
	}
	return t.String() + "\n"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
