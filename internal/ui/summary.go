package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/theme"
)

// Renderer formats pass results for the terminal.
type Renderer struct {
	p *message.Printer
}

// NewRenderer creates a Renderer that formats numbers for the given locale.
func NewRenderer(tag language.Tag) Renderer {
	return Renderer{p: message.NewPrinter(tag)}
}

// DefaultRenderer formats numbers for English.
func DefaultRenderer() Renderer {
	return NewRenderer(language.English)
}

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	itemStyle    = lipgloss.NewStyle().PaddingLeft(2)
)

// PassSummary renders the outcome of one pass: counts, the new and updated
// items grouped per kind, delivery totals, and any errors.
func (r Renderer) PassSummary(s model.PassSummary) string {
	var b strings.Builder

	header := "Pass " + shortID(s.RunID)
	if d := s.Duration(); d > 0 {
		header += theme.DimmedStyle.Render("  " + d.Round(time.Millisecond).String())
	}
	b.WriteString(sectionStyle.Render(header))
	b.WriteString("\n")

	switch {
	case s.Aborted != "" && s.Aborted != "interrupted":
		b.WriteString(theme.WarningStyle.Render("Aborted: " + s.Aborted))
		b.WriteString("\n")
	case s.Interrupted:
		b.WriteString(theme.WarningStyle.Render("Interrupted before all entities were checked"))
		b.WriteString("\n")
	}

	b.WriteString(r.p.Sprintf("%d repositories, %d entities checked: %d new, %d updated, %d unchanged",
		s.Repositories, s.Checked, s.Created, s.Updated, s.Unchanged))
	b.WriteString("\n")

	if len(s.Changes) == 0 {
		b.WriteString(theme.DimmedStyle.Render("No changes detected"))
		b.WriteString("\n")
	} else {
		for _, kind := range model.Kinds {
			r.writeChanges(&b, kind, s.Changes)
		}
	}

	switch {
	case s.DeliverySkipped:
		b.WriteString(theme.DimmedStyle.Render("Delivery skipped"))
		b.WriteString("\n")
	default:
		b.WriteString(r.Delivery(s.Delivery))
	}

	if s.FetchFailed > 0 || s.CommitFailed > 0 || len(s.Errors) > 0 {
		b.WriteString(theme.ErrorStyle.Render(r.p.Sprintf("Errors (%d fetch, %d commit)", s.FetchFailed, s.CommitFailed)))
		b.WriteString("\n")
		for _, e := range s.Errors {
			b.WriteString(itemStyle.Render(theme.ErrorStyle.Render("✗ " + e)))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (r Renderer) writeChanges(b *strings.Builder, kind model.Kind, changes []model.ChangeItem) {
	var created, updated []model.ChangeItem
	for _, c := range changes {
		if c.Kind != kind {
			continue
		}
		if c.ChangeKind == model.ChangeCreated {
			created = append(created, c)
		} else {
			updated = append(updated, c)
		}
	}
	r.writeGroup(b, "New "+pluralLabel(kind), created)
	r.writeGroup(b, "Updated "+pluralLabel(kind), updated)
}

func (r Renderer) writeGroup(b *strings.Builder, title string, items []model.ChangeItem) {
	if len(items) == 0 {
		return
	}
	b.WriteString(sectionStyle.Render(r.p.Sprintf("%s (%d)", title, len(items))))
	b.WriteString("\n")
	for _, c := range items {
		line := theme.ChangeStyle(string(c.ChangeKind)).Render("•") + " " + c.Ref
		if c.Title != "" && c.Title != c.Ref {
			line += "  " + c.Title
		}
		if c.Author != "" {
			line += theme.DimmedStyle.Render(" by " + c.Author)
		}
		b.WriteString(itemStyle.Render(line))
		b.WriteString("\n")
	}
}

// Delivery renders an outbox drain result on one line.
func (r Renderer) Delivery(d model.DeliverySummary) string {
	line := r.p.Sprintf("Notifications: %d sent, %d failed", d.Sent, d.Failed)
	if d.Remaining > 0 {
		line += r.p.Sprintf(", %d left pending", d.Remaining)
	}
	if d.Failed > 0 {
		return theme.ErrorStyle.Render(line) + "\n"
	}
	return line + "\n"
}

func pluralLabel(k model.Kind) string {
	switch k {
	case model.KindRepository:
		return "Repositories"
	case model.KindIssue:
		return "Issues"
	case model.KindPullRequest:
		return "PRs"
	}
	return string(k)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

// RelativeTime returns a human-friendly age of t as seen at now.
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
