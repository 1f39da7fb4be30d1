// Package detect classifies the delta between a freshly fetched entity and
// its last persisted snapshot.
//
// Classification compares a fixed, per-kind set of fingerprint fields rather
// than a hash of the whole record, so volatile fields such as star counts or
// comment counts never produce a notification on their own:
//
//	repository:    pushed_at
//	issue:         state, updated_at, title
//	pull_request:  state, updated_at, title, merged
package detect

import (
	"github.com/nhle/ghwatch/internal/model"
)

// comparisonFields is the per-kind table of fields whose change is
// notification-worthy.
var comparisonFields = map[model.Kind][]string{
	model.KindRepository: {
		model.FieldPushedAt,
	},
	model.KindIssue: {
		model.FieldState,
		model.FieldUpdatedAt,
		model.FieldTitle,
	},
	model.KindPullRequest: {
		model.FieldState,
		model.FieldUpdatedAt,
		model.FieldTitle,
		model.FieldMerged,
	},
}

// ComparisonFields returns a copy of the comparison set for kind.
func ComparisonFields(kind model.Kind) []string {
	fields := comparisonFields[kind]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// Classify returns Created when previous is nil, Updated when any comparison
// field of current differs from previous, and Unchanged otherwise. A field
// missing on one side and present on the other counts as a difference.
func Classify(previous *model.Snapshot, current model.FetchedRecord) model.ChangeKind {
	if previous == nil {
		return model.ChangeCreated
	}
	if len(ChangedFields(previous.Fields, current.Kind, current.Fields)) > 0 {
		return model.ChangeUpdated
	}
	return model.ChangeUnchanged
}

// ChangedFields lists the comparison fields of kind whose values differ
// between before and after, in table order.
func ChangedFields(before model.Fields, kind model.Kind, after model.Fields) []string {
	var changed []string
	for _, name := range comparisonFields[kind] {
		bv, bok := before[name]
		av, aok := after[name]
		if bok != aok || bv != av {
			changed = append(changed, name)
		}
	}
	return changed
}
