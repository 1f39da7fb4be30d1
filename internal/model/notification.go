package model

import "time"

// ChangeKind classifies the delta between a fetched record and its snapshot.
type ChangeKind string

const (
	ChangeCreated   ChangeKind = "created"
	ChangeUpdated   ChangeKind = "updated"
	ChangeUnchanged ChangeKind = "unchanged"
)

// NotificationStatus is the delivery state of a notification record.
type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSent    NotificationStatus = "sent"
	StatusFailed  NotificationStatus = "failed"
)

// Valid reports whether s is a known notification status.
func (s NotificationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}

// Payload is the rendered, human-readable content of a notification. It is
// computed once at enqueue time and never rewritten.
type Payload struct {
	// Headline is the short event label, e.g. "New Issue".
	Headline string `json:"headline"`

	// Subject is the entity reference shown in bold, e.g. "acme/widget#12".
	Subject string `json:"subject"`

	Title string `json:"title"`
	URL   string `json:"url"`

	// Summary is a short plain-text description (state, author, excerpt).
	Summary string `json:"summary,omitempty"`

	// HTML is the full message in Telegram-compatible HTML.
	HTML string `json:"html"`

	// Text is the full message as plain text.
	Text string `json:"text"`
}

// NotificationRecord is one entry of the durable outbox.
type NotificationRecord struct {
	ID         int64
	Entity     EntityKey
	ChangeKind ChangeKind
	Payload    Payload
	Status     NotificationStatus

	// RunID identifies the reconciliation pass that enqueued the record.
	RunID string

	Attempts  int
	LastError string

	CreatedAt time.Time
	SentAt    *time.Time
}
