package model

import (
	"fmt"
	"time"
)

// Kind identifies the variant of a tracked entity.
type Kind string

const (
	KindRepository  Kind = "repository"
	KindIssue       Kind = "issue"
	KindPullRequest Kind = "pull_request"
)

// Kinds lists every tracked entity kind in processing order.
var Kinds = []Kind{KindRepository, KindIssue, KindPullRequest}

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRepository, KindIssue, KindPullRequest:
		return true
	}
	return false
}

// Label returns the human-readable name of the kind.
func (k Kind) Label() string {
	switch k {
	case KindRepository:
		return "Repository"
	case KindIssue:
		return "Issue"
	case KindPullRequest:
		return "PR"
	}
	return string(k)
}

// Fingerprint field names. Not every field takes part in change detection;
// see detect.ComparisonFields for the per-kind comparison set.
const (
	FieldTitle           = "title"
	FieldState           = "state"
	FieldUpdatedAt       = "updated_at"
	FieldCommentCount    = "comment_count"
	FieldMerged          = "merged"
	FieldDraft           = "draft"
	FieldPushedAt        = "pushed_at"
	FieldOpenIssuesCount = "open_issues_count"
	FieldStargazers      = "stargazers_count"
	FieldDescription     = "description"
)

// Fields maps fingerprint field names to their string-encoded values.
type Fields map[string]string

// Clone returns an independent copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// EntityKey is the stable identity of a tracked entity.
type EntityKey struct {
	Kind Kind
	// Ref is owner/name for repositories and owner/name#number for
	// issues and pull requests.
	Ref string
}

func (k EntityKey) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.Ref)
}

// RepoRef builds the stable reference of a repository.
func RepoRef(fullName string) string { return fullName }

// ItemRef builds the stable reference of an issue or pull request.
func ItemRef(fullName string, number int) string {
	return fmt.Sprintf("%s#%d", fullName, number)
}

// FetchedRecord is a freshly fetched remote entity, already reduced to its
// fingerprint fields plus the display data needed to render a payload.
type FetchedRecord struct {
	Kind     Kind
	Ref      string
	RemoteID int64

	// Repo is the owner/name of the repository the entity belongs to.
	Repo   string
	Number int

	Title  string
	URL    string
	Author string
	// Body is the raw markdown description, used for the payload excerpt.
	Body string

	Fields Fields
}

// Key returns the entity key of the record.
func (r FetchedRecord) Key() EntityKey {
	return EntityKey{Kind: r.Kind, Ref: r.Ref}
}

// Snapshot is the last persisted fingerprint of one entity.
type Snapshot struct {
	Kind          Kind
	Ref           string
	RemoteID      int64
	Fields        Fields
	FirstSeenAt   time.Time
	LastChangedAt time.Time
	LastCheckedAt time.Time
}

// Key returns the entity key of the snapshot.
func (s Snapshot) Key() EntityKey {
	return EntityKey{Kind: s.Kind, Ref: s.Ref}
}
