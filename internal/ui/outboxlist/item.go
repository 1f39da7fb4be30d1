package outboxlist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/theme"
	"github.com/nhle/ghwatch/internal/ui"
)

// NotificationItem wraps a model.NotificationRecord so it can be used in a
// bubbles/list.
type NotificationItem struct {
	Record model.NotificationRecord
}

// FilterValue returns the string used for fuzzy filtering.
func (i NotificationItem) FilterValue() string {
	return i.Record.Entity.Ref + " " + i.Record.Payload.Title
}

// Title returns the entity reference.
func (i NotificationItem) Title() string { return i.Record.Entity.Ref }

// Description returns a short summary line.
func (i NotificationItem) Description() string {
	parts := []string{
		string(i.Record.Status),
		string(i.Record.ChangeKind),
		i.Record.Payload.Title,
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate renders one notification per line.
type ItemDelegate struct {
	now func() time.Time
}

func (d ItemDelegate) Height() int { return 1 }

func (d ItemDelegate) Spacing() int { return 0 }

func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ni, ok := item.(NotificationItem)
	if !ok {
		return
	}
	rec := ni.Record

	status := theme.NotificationStatusStyle(string(rec.Status)).Render(statusLabel(rec.Status))
	kind := theme.KindBadgeStyle(string(rec.Entity.Kind)).Render(kindLabel(rec.Entity.Kind))
	change := theme.ChangeStyle(string(rec.ChangeKind)).Render(changeMark(rec.ChangeKind))

	title := rec.Payload.Title
	if title == "" {
		title = rec.Payload.Headline
	}

	attempts := ""
	if rec.Attempts > 0 {
		attempts = lipgloss.NewStyle().Foreground(theme.ColorYellow).
			Render(fmt.Sprintf(" ↻%d", rec.Attempts))
	}

	age := theme.DimmedStyle.Render(ui.RelativeTime(rec.CreatedAt, d.now()))

	line := fmt.Sprintf("%s %s %s %s %s%s  %s",
		status, kind, change, rec.Entity.Ref, title, attempts, age)

	if rec.Status == model.StatusSent {
		line = theme.DimmedStyle.Render(line)
	}

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

func statusLabel(s model.NotificationStatus) string {
	switch s {
	case model.StatusPending:
		return "PEND"
	case model.StatusSent:
		return "SENT"
	case model.StatusFailed:
		return "FAIL"
	}
	return strings.ToUpper(string(s))
}

func kindLabel(k model.Kind) string {
	switch k {
	case model.KindRepository:
		return "REPO"
	case model.KindIssue:
		return "ISS"
	case model.KindPullRequest:
		return "PR"
	}
	return "?"
}

func changeMark(c model.ChangeKind) string {
	if c == model.ChangeCreated {
		return "+"
	}
	return "~"
}
