package model

import "time"

// ChangeItem describes a single detected change for display in a pass summary.
type ChangeItem struct {
	Kind       Kind
	ChangeKind ChangeKind
	Ref        string
	Title      string
	Author     string
}

// DeliverySummary reports the outcome of one outbox drain.
type DeliverySummary struct {
	Sent   int
	Failed int
	// Remaining counts records left Pending, either because the drain was
	// cancelled or because their status could not be written.
	Remaining int
}

// PassSummary reports the outcome of one reconciliation pass.
type PassSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Repositories int
	Checked      int
	Created      int
	Updated      int
	Unchanged    int
	FetchFailed  int
	CommitFailed int

	Delivery DeliverySummary
	// DeliverySkipped is set when delivery is disabled or no transport is configured.
	DeliverySkipped bool

	Changes []ChangeItem
	Errors  []string

	// Aborted holds the reason when the pass stopped early.
	Aborted string
	// Interrupted is set when the pass stopped at an entity boundary on cancellation.
	Interrupted bool
}

// Duration returns the wall-clock duration of the pass.
func (s PassSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Changed returns the number of entities classified created or updated.
func (s PassSummary) Changed() int {
	return s.Created + s.Updated
}

// PassRecord is a persisted pass summary row.
type PassRecord struct {
	RunID        string    `db:"run_id"`
	StartedAt    time.Time `db:"started_at"`
	FinishedAt   time.Time `db:"finished_at"`
	Checked      int       `db:"checked"`
	Created      int       `db:"created"`
	Updated      int       `db:"updated"`
	Unchanged    int       `db:"unchanged"`
	FetchFailed  int       `db:"fetch_failed"`
	CommitFailed int       `db:"commit_failed"`
	Sent         int       `db:"sent"`
	Failed       int       `db:"failed"`
	Aborted      string    `db:"aborted"`
}

// WatchEntry is one repository in the watch list.
type WatchEntry struct {
	Repo    string    `db:"repo"`
	Origin  string    `db:"origin"`
	Active  bool      `db:"active"`
	AddedAt time.Time `db:"added_at"`
}

// Watch list origins.
const (
	OriginConfig     = "config"
	OriginDiscovered = "discovered"
	OriginManual     = "manual"
)
