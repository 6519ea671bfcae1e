// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package preprint

import (
	"slices"
	"time"
)

// Snapshot is an immutable copy of a preprint and everything the formatter
// reads. It is the View implementation loaded by the database layer.
type Snapshot struct {
	PreprintID      string
	Node            *Container
	Service         *Provider
	ModifiedAt      time.Time
	PublishedAt     time.Time
	IsPublished     bool
	IsDeleted       bool
	ReviewState     string
	ArticleDOIValue string
	URL             string
	Identifiers     map[string]string
	CurrentSubjects []*Subject
	Catalog         map[string]*Subject
	ContributorList []Contributor
}

var _ View = (*Snapshot)(nil)

func (s *Snapshot) ID() string                  { return s.PreprintID }
func (s *Snapshot) Container() *Container       { return s.Node }
func (s *Snapshot) Provider() *Provider         { return s.Service }
func (s *Snapshot) Modified() time.Time         { return s.ModifiedAt }
func (s *Snapshot) ArticleDOI() string          { return s.ArticleDOIValue }
func (s *Snapshot) AbsoluteURL() string         { return s.URL }
func (s *Snapshot) Subjects() []*Subject        { return s.CurrentSubjects }
func (s *Snapshot) Contributors() []Contributor { return s.ContributorList }

// DatePublished returns the publication time, or zero when unpublished.
func (s *Snapshot) DatePublished() time.Time {
	if !s.IsPublished {
		return time.Time{}
	}
	return s.PublishedAt
}

// VerifiedPublishable reports whether the preprint may be shown publicly:
// published, not deleted, backed by a public container and, under a
// moderation workflow, accepted.
func (s *Snapshot) VerifiedPublishable() bool {
	if !s.IsPublished || s.IsDeleted || s.Node == nil || !s.Node.Public {
		return false
	}
	if s.Service.Moderated() && s.ReviewState != ReviewStateAccepted {
		return false
	}
	return true
}

// ShouldRequestIdentifiers excludes QA test preprints from DOI minting.
func (s *Snapshot) ShouldRequestIdentifiers() bool {
	return !s.Node.HasTag(QATestTag)
}

// Identifier returns the identifier value for category.
func (s *Snapshot) Identifier(category string) (string, bool) {
	v, ok := s.Identifiers[category]
	return v, ok && v != ""
}

// HasSubject reports whether id is currently attached to the preprint.
func (s *Snapshot) HasSubject(id string) bool {
	return slices.ContainsFunc(s.CurrentSubjects, func(sub *Subject) bool { return sub.ID == id })
}

// LookupSubject resolves a subject id through the current subjects and the
// catalog of former subjects loaded with the snapshot.
func (s *Snapshot) LookupSubject(id string) (*Subject, bool) {
	for _, sub := range s.CurrentSubjects {
		if sub.ID == id {
			return sub, true
		}
	}
	sub, ok := s.Catalog[id]
	return sub, ok
}

// AffiliatedInstitutionNames returns the container's institutions.
func (s *Snapshot) AffiliatedInstitutionNames() []string {
	if s.Node == nil {
		return nil
	}
	return s.Node.Institutions
}
