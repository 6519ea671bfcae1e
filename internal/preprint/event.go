// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package preprint

import (
	"fmt"
	"slices"
	"sort"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sharesync/internal/validation"
)

// FieldDOICreated is set in SavedFields by the save that first stores a
// preprint DOI.
const FieldDOICreated = "preprint_doi_created"

// Event is a "preprint updated" notification raised when a mutation of
// preprint-relevant state commits.
type Event struct {
	PreprintID  string   `json:"preprint_id" validate:"required,objectid,max=64"`
	UpdateShare bool     `json:"update_share"`
	ShareType   string   `json:"share_type,omitempty" validate:"omitempty,sharetype,max=64"`
	OldSubjects []string `json:"old_subjects,omitempty" validate:"max=1000,dive,required,max=64"`
	SavedFields FieldSet `json:"saved_fields,omitempty" validate:"max=200"`
}

// Validate checks the event payload.
func (e *Event) Validate() error {
	if verr := validation.ValidateStruct(e); verr != nil {
		return verr
	}
	return nil
}

// String identifies the event in logs.
func (e Event) String() string {
	return fmt.Sprintf("preprint %s (share=%t type=%q old_subjects=%d saved_fields=%d)",
		e.PreprintID, e.UpdateShare, e.ShareType, len(e.OldSubjects), len(e.SavedFields))
}

// FieldSet is the set of field names touched by a save.
//
// It encodes as a sorted JSON array and decodes from either an array of
// names or an object whose keys are the names, which is how some emitters
// report saved fields.
type FieldSet map[string]struct{}

// NewFieldSet builds a set from names.
func NewFieldSet(names ...string) FieldSet {
	fs := make(FieldSet, len(names))
	for _, n := range names {
		fs[n] = struct{}{}
	}
	return fs
}

// Has reports whether name is in the set.
func (fs FieldSet) Has(name string) bool {
	_, ok := fs[name]
	return ok
}

// Names returns the sorted field names.
func (fs FieldSet) Names() []string {
	names := make([]string, 0, len(fs))
	for n := range fs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON encodes the set as a sorted array.
func (fs FieldSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(fs.Names())
}

// UnmarshalJSON accepts ["a","b"] or {"a": ..., "b": ...}.
func (fs *FieldSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		*fs = NewFieldSet(names...)
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("saved_fields must be an array or object: %w", err)
	}
	set := make(FieldSet, len(obj))
	for n := range obj {
		set[n] = struct{}{}
	}
	*fs = set
	return nil
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	out := e
	out.OldSubjects = slices.Clone(e.OldSubjects)
	if e.SavedFields != nil {
		out.SavedFields = make(FieldSet, len(e.SavedFields))
		for n := range e.SavedFields {
			out.SavedFields[n] = struct{}{}
		}
	}
	return out
}
