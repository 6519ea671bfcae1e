// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

// Package preprint holds the read model of a preprint and its related
// records, as seen by the synchronization pipeline.
//
// The pipeline never mutates domain state. Each dispatch attempt loads a
// fresh Snapshot (one read transaction) and hands it around as a View.
package preprint

import (
	"slices"
	"time"
)

// QATestTag marks containers created by QA. Their preprints are published
// to SHARE as deleted and never request identifier updates.
const QATestTag = "qatest"

// CategoryDOI is the identifier category of a preprint DOI.
const CategoryDOI = "doi"

// ReviewStateAccepted is the review state a moderated preprint needs to be
// publishable.
const ReviewStateAccepted = "accepted"

// View is the read-only query interface consumed by the formatter and the
// identifier trigger.
type View interface {
	ID() string
	// Container returns the project the preprint belongs to, or nil.
	Container() *Container
	Provider() *Provider
	Modified() time.Time
	// DatePublished returns the zero time when unpublished.
	DatePublished() time.Time
	VerifiedPublishable() bool
	ShouldRequestIdentifiers() bool
	// ArticleDOI is the DOI of a copy of this work published elsewhere.
	ArticleDOI() string
	AbsoluteURL() string
	Identifier(category string) (string, bool)
	Subjects() []*Subject
	HasSubject(id string) bool
	// LookupSubject resolves any known subject id, current or former.
	LookupSubject(id string) (*Subject, bool)
	// Contributors returns every contributor of the container in citation
	// order.
	Contributors() []Contributor
	AffiliatedInstitutionNames() []string
}

// Container is the project backing a preprint. Title, description, tags and
// affiliations of a preprint are stored here.
type Container struct {
	ID           string
	Title        string
	Description  string
	Modified     time.Time
	Public       bool
	Tags         []string
	Institutions []string
}

// HasTag reports whether the container carries tag.
func (c *Container) HasTag(tag string) bool {
	return c != nil && slices.Contains(c.Tags, tag)
}

// Provider is the preprint service policy relevant to SHARE.
type Provider struct {
	ID   string
	Name string

	// AccessToken authenticates pushes to SHARE on behalf of the provider.
	AccessToken string

	// SharePublishType is the default root node type, e.g. "preprint".
	SharePublishType string

	// DomainRedirectEnabled adds the provider-domain URL as an identifier.
	DomainRedirectEnabled bool

	// ReviewsWorkflow is "" when unmoderated, else "pre-moderation" or
	// "post-moderation".
	ReviewsWorkflow string
}

// Moderated reports whether the provider runs a review workflow.
func (p *Provider) Moderated() bool {
	return p != nil && p.ReviewsWorkflow != ""
}

// Subject is a taxonomy entry.
type Subject struct {
	ID   string
	Name string
	URI  string

	// Parent is nil at the root of the taxonomy.
	Parent *Subject

	// CentralSynonym maps a custom provider taxonomy onto the shared
	// bepress taxonomy; nil for bepress subjects themselves.
	CentralSynonym *Subject
}

// Contributor is a user credited on the container.
type Contributor struct {
	UserID      string
	FullName    string
	GivenName   string
	FamilyName  string
	MiddleNames string
	Suffix      string
	AbsoluteURL string

	// ORCID is the verified ORCID iD URL, empty when unverified.
	ORCID string

	// Bibliographic contributors are cited as creators.
	Bibliographic bool

	Institutions []string
}
