package detect

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/nhle/ghwatch/internal/model"
)

// excerptLimit caps the body excerpt in runes.
const excerptLimit = 200

var headlines = map[model.Kind]map[model.ChangeKind]string{
	model.KindRepository: {
		model.ChangeCreated: "New Repository",
		model.ChangeUpdated: "Repository Updated",
	},
	model.KindIssue: {
		model.ChangeCreated: "New Issue",
		model.ChangeUpdated: "Issue Updated",
	},
	model.KindPullRequest: {
		model.ChangeCreated: "New PR",
		model.ChangeUpdated: "PR Updated",
	},
}

var emoji = map[model.Kind]map[model.ChangeKind]string{
	model.KindRepository: {
		model.ChangeCreated: "📦",
		model.ChangeUpdated: "📤",
	},
	model.KindIssue: {
		model.ChangeCreated: "🆕",
		model.ChangeUpdated: "📝",
	},
	model.KindPullRequest: {
		model.ChangeCreated: "🔀",
		model.ChangeUpdated: "📝",
	},
}

// Headline returns the event label for a kind and change.
func Headline(kind model.Kind, change model.ChangeKind) string {
	if h, ok := headlines[kind][change]; ok {
		return h
	}
	return fmt.Sprintf("%s %s", kind.Label(), change)
}

// RenderPayload builds the immutable payload of a notification for a
// created or updated entity. previous may be nil.
func RenderPayload(rec model.FetchedRecord, change model.ChangeKind, previous *model.Snapshot) model.Payload {
	p := model.Payload{
		Headline: Headline(rec.Kind, change),
		Subject:  rec.Ref,
		Title:    rec.Title,
		URL:      rec.URL,
	}

	var lines []string
	switch change {
	case model.ChangeUpdated:
		if previous != nil {
			for _, f := range ChangedFields(previous.Fields, rec.Kind, rec.Fields) {
				if f == model.FieldUpdatedAt || f == model.FieldPushedAt {
					continue
				}
				lines = append(lines, fmt.Sprintf("%s: %s → %s", f, orNone(previous.Fields[f]), orNone(rec.Fields[f])))
			}
		}
	case model.ChangeCreated:
		if rec.Author != "" {
			lines = append(lines, "by @"+rec.Author)
		}
		if ex := Excerpt(rec.Body); ex != "" {
			lines = append(lines, ex)
		}
	}
	p.Summary = strings.Join(lines, "\n")

	icon := emoji[rec.Kind][change]
	if icon == "" {
		icon = "📢"
	}

	var h strings.Builder
	fmt.Fprintf(&h, "%s <b>%s</b>\n<b>%s</b>\n%s", icon, html.EscapeString(p.Headline),
		html.EscapeString(p.Subject), html.EscapeString(p.Title))
	if p.Summary != "" {
		fmt.Fprintf(&h, "\n<i>%s</i>", html.EscapeString(p.Summary))
	}
	if p.URL != "" {
		fmt.Fprintf(&h, "\n<a href=\"%s\">View on GitHub</a>", html.EscapeString(p.URL))
	}
	p.HTML = h.String()

	var t strings.Builder
	fmt.Fprintf(&t, "%s %s\n%s\n%s", icon, p.Headline, p.Subject, p.Title)
	if p.Summary != "" {
		fmt.Fprintf(&t, "\n%s", p.Summary)
	}
	if p.URL != "" {
		fmt.Fprintf(&t, "\n%s", p.URL)
	}
	p.Text = t.String()

	return p
}

// Excerpt returns the first paragraph of a markdown body as plain text,
// truncated to a short description.
func Excerpt(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	src := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var para ast.Node
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if n.Kind() == ast.KindParagraph {
			para = n
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	if para == nil {
		return ""
	}

	var b strings.Builder
	_ = ast.Walk(para, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})

	return truncate(strings.Join(strings.Fields(b.String()), " "), excerptLimit)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:limit-1])) + "…"
}

func orNone(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}
