// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

// Package coalesce merges the "preprint updated" notifications raised within
// one unit of work and releases them once, after the unit commits.
//
//	ctx, uow := coalesce.WithUnitOfWork(ctx)
//	_ = coalesce.Notify(ctx, preprint.Event{PreprintID: "abc12", UpdateShare: true})
//	_ = coalesce.Notify(ctx, preprint.Event{PreprintID: "abc12", OldSubjects: []string{"s1"}})
//	n, err := uow.Commit(ctx, publisher) // publishes one merged event
package coalesce

import (
	"slices"

	"github.com/tomtom215/sharesync/internal/preprint"
)

// Merge combines two pending events for the same preprint:
//   - update_share is OR-ed
//   - share_type keeps the latest non-empty value
//   - old_subjects become the sorted union
//   - saved_fields become the union of names
//
// Apart from conflicting share types, the result does not depend on the
// order in which the events arrived.
func Merge(earlier, later preprint.Event) preprint.Event {
	merged := preprint.Event{
		PreprintID:  earlier.PreprintID,
		UpdateShare: earlier.UpdateShare || later.UpdateShare,
		ShareType:   earlier.ShareType,
	}
	if later.ShareType != "" {
		merged.ShareType = later.ShareType
	}

	if len(earlier.OldSubjects)+len(later.OldSubjects) > 0 {
		subjects := slices.Concat(earlier.OldSubjects, later.OldSubjects)
		slices.Sort(subjects)
		merged.OldSubjects = slices.Compact(subjects)
	}

	if len(earlier.SavedFields)+len(later.SavedFields) > 0 {
		merged.SavedFields = make(preprint.FieldSet, len(earlier.SavedFields)+len(later.SavedFields))
		for name := range earlier.SavedFields {
			merged.SavedFields[name] = struct{}{}
		}
		for name := range later.SavedFields {
			merged.SavedFields[name] = struct{}{}
		}
	}
	return merged
}

// normalize gives a single event the same shape Merge produces, so a
// preprint notified once and one notified many times publish alike.
func normalize(e preprint.Event) preprint.Event {
	return Merge(preprint.Event{PreprintID: e.PreprintID}, e)
}
