// Package outboxlist is the interactive outbox browser behind
// "ghwatch outbox browse".
package outboxlist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ghwatch/internal/keys"
	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/store"
	"github.com/nhle/ghwatch/internal/theme"
	"github.com/nhle/ghwatch/internal/ui"
	"github.com/nhle/ghwatch/internal/ui/help"
)

// loadLimit caps how many records the browser shows.
const loadLimit = 500

// NotificationsLoadedMsg carries the result of a store query.
type NotificationsLoadedMsg struct {
	Records []model.NotificationRecord
	Err     error
}

// ResetDoneMsg reports how many Failed records were moved back to Pending.
type ResetDoneMsg struct {
	Count int64
	Err   error
}

// Model is the outbox browser.
type Model struct {
	ctx    context.Context
	store  store.Store
	keys   *keys.KeyMap
	list   list.Model
	help   help.Model
	layout ui.Layout
	now    func() time.Time

	status     *model.NotificationStatus
	showDetail bool
	showHelp   bool
	message    string
}

// New creates a browser over the outbox of s.
func New(ctx context.Context, s store.Store, k *keys.KeyMap, width, height int) Model {
	now := time.Now
	l := list.New([]list.Item{}, ItemDelegate{now: now}, width, height)
	l.SetShowTitle(false)
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.SetStatusBarItemName("notification", "notifications")

	m := Model{
		ctx:    ctx,
		store:  s,
		keys:   k,
		list:   l,
		help:   help.New(k, "Outbox browser", width, height),
		layout: ui.NewLayout(width, height),
		now:    now,
	}
	m.SetSize(width, height)
	return m
}

// Init loads the first page of records.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Update handles messages for the browser.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case NotificationsLoadedMsg:
		if msg.Err != nil {
			m.message = "load failed: " + msg.Err.Error()
			return m, nil
		}
		items := make([]list.Item, len(msg.Records))
		for i, rec := range msg.Records {
			items[i] = NotificationItem{Record: rec}
		}
		return m, m.list.SetItems(items)

	case ResetDoneMsg:
		if msg.Err != nil {
			m.message = "reset failed: " + msg.Err.Error()
			return m, nil
		}
		m.message = fmt.Sprintf("%d notification(s) queued for delivery", msg.Count)
		return m, m.Load()

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		if key.Matches(msg, m.keys.Help, m.keys.Back) {
			m.showHelp = false
		}
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Back):
		m.showDetail = false
		return m, nil

	case key.Matches(msg, m.keys.Select):
		if _, ok := m.list.SelectedItem().(NotificationItem); ok {
			m.showDetail = !m.showDetail
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.message = ""
		return m, m.Load()

	case key.Matches(msg, m.keys.FilterPending):
		return m.setFilter(model.StatusPending)
	case key.Matches(msg, m.keys.FilterSent):
		return m.setFilter(model.StatusSent)
	case key.Matches(msg, m.keys.FilterFailed):
		return m.setFilter(model.StatusFailed)
	case key.Matches(msg, m.keys.FilterAll):
		m.status = nil
		return m, m.Load()

	case key.Matches(msg, m.keys.Reset):
		item, ok := m.list.SelectedItem().(NotificationItem)
		if !ok {
			return m, nil
		}
		if item.Record.Status != model.StatusFailed {
			m.message = "only failed notifications can be retried"
			return m, nil
		}
		return m, m.reset(item.Record.ID)

	case key.Matches(msg, m.keys.ResetAll):
		return m, m.reset()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) setFilter(status model.NotificationStatus) (tea.Model, tea.Cmd) {
	m.status = &status
	m.showDetail = false
	return m, m.Load()
}

// Load returns a command that queries the store with the current filter.
func (m Model) Load() tea.Cmd {
	ctx, s := m.ctx, m.store
	filter := store.NotificationFilter{Status: m.status, Limit: loadLimit}
	return func() tea.Msg {
		recs, err := s.ListNotifications(ctx, filter)
		return NotificationsLoadedMsg{Records: recs, Err: err}
	}
}

func (m Model) reset(ids ...int64) tea.Cmd {
	ctx, s := m.ctx, m.store
	return func() tea.Msg {
		n, err := s.ResetFailed(ctx, ids...)
		return ResetDoneMsg{Count: n, Err: err}
	}
}

// View renders the browser.
func (m Model) View() string {
	if m.showHelp {
		return m.help.View()
	}

	header := m.layout.RenderHeader("ghwatch outbox", "filter: "+m.filterLabel())
	hints := m.help.ShortView()
	if m.message != "" {
		hints = m.message
	}
	statusBar := m.layout.RenderStatusBar(hints)

	var content string
	switch {
	case len(m.list.Items()) == 0:
		content = m.renderEmptyState()
	case m.showDetail:
		content = m.renderDetail()
	default:
		content = m.list.View()
	}
	return m.layout.RenderWithFrame(header, content, statusBar)
}

func (m Model) filterLabel() string {
	if m.status == nil {
		return "all"
	}
	return string(*m.status)
}

func (m Model) renderEmptyState() string {
	text := "Outbox is empty.\n\nRun \"ghwatch check\" to poll watched repositories."
	if m.status != nil {
		text = fmt.Sprintf("No %s notifications.\nPress 0 to show all.", *m.status)
	}
	return lipgloss.NewStyle().
		Width(m.layout.Width).
		Height(m.layout.ContentHeight()).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray).
		Render(text)
}

func (m Model) renderDetail() string {
	item, ok := m.list.SelectedItem().(NotificationItem)
	if !ok {
		return ""
	}
	rec := item.Record

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n",
		theme.NotificationStatusStyle(string(rec.Status)).Render(string(rec.Status)),
		theme.DimmedStyle.Render(fmt.Sprintf("#%d  run %s", rec.ID, rec.RunID)))
	fmt.Fprintf(&b, "Entity:   %s\n", rec.Entity)
	fmt.Fprintf(&b, "Created:  %s\n", rec.CreatedAt.Local().Format(time.RFC3339))
	if rec.SentAt != nil {
		fmt.Fprintf(&b, "Sent:     %s\n", rec.SentAt.Local().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Attempts: %d\n", rec.Attempts)
	if rec.LastError != "" {
		fmt.Fprintf(&b, "Error:    %s\n", theme.ErrorStyle.Render(rec.LastError))
	}
	b.WriteString("\n")
	b.WriteString(rec.Payload.Text)

	return theme.DetailPanelStyle.
		Width(max(m.layout.Width-4, 0)).
		Height(max(m.layout.ContentHeight()-2, 0)).
		Render(b.String())
}

// SetSize updates the browser dimensions.
func (m *Model) SetSize(width, height int) {
	m.layout = ui.NewLayout(width, height)
	m.list.SetSize(width, m.layout.ContentHeight())
	m.help.SetSize(width, height)
}
