// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

// Package formatter turns a preprint View into the SHARE metadata graph.
//
// The root creative work carries the preprint's scalar metadata. Identifier,
// tag, subject, contributor and institution relations point back at the
// root, and the document is the breadth-first closure over all of them,
// de-duplicated by structural identity.
package formatter

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/tomtom215/sharesync/internal/graph"
	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/preprint"
)

// TimestampLayout renders date_updated and date_published: RFC 3339 with
// microseconds, always UTC.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// DefaultRootType is used when neither the event nor the provider names a
// share type.
const DefaultRootType = "creativework"

// Formatter builds preprint graphs. It is safe for concurrent use.
type Formatter struct {
	domain *url.URL
}

// New returns a Formatter resolving canonical preprint URLs against domain
// (e.g. "https://osf.io/").
func New(domain string) (*Formatter, error) {
	u, err := url.Parse(domain)
	if err != nil {
		return nil, err
	}
	return &Formatter{domain: u}, nil
}

// CanonicalURL returns the public URL of a preprint id.
func (f *Formatter) CanonicalURL(id string) string {
	return f.domain.ResolveReference(&url.URL{Path: id + "/"}).String()
}

// DateUpdated is the timestamp SHARE orders updates by. Fields such as the
// title live on the container, so edits there must bump the timestamp too.
func DateUpdated(p preprint.View) time.Time {
	updated := p.Modified()
	if c := p.Container(); c != nil && c.Modified.After(updated) {
		updated = c.Modified
	}
	return updated.UTC()
}

// DOIURL returns the resolver URL of a DOI.
func DOIURL(doi string) string {
	return "https://doi.org/" + doi
}

// builder holds the per-call memo tables so that a subject, person or
// institution reached through several paths is built once.
type builder struct {
	g            *graph.Graph
	root         graph.Handle
	subjects     map[string]graph.Handle
	people       map[string]graph.Handle
	institutions map[string]graph.Handle
}

// Format builds the closed graph of a preprint. shareType names the root
// node type; oldSubjects are the subject ids attached before the triggering
// change, used to emit deletion tombstones.
func (f *Formatter) Format(p preprint.View, shareType string, oldSubjects []string) *graph.Closure {
	b := &builder{
		g:            graph.New(),
		subjects:     make(map[string]graph.Handle),
		people:       make(map[string]graph.Handle),
		institutions: make(map[string]graph.Handle),
	}

	container := p.Container()
	if container == nil {
		container = &preprint.Container{}
	}

	if shareType == "" {
		shareType = DefaultRootType
	}
	var published any
	if dp := p.DatePublished(); !dp.IsZero() {
		published = dp.UTC().Format(TimestampLayout)
	}
	b.root = b.g.AddWithID(shareType, p.ID(), graph.Fields{
		"title":          container.Title,
		"description":    container.Description,
		"is_deleted":     !p.VerifiedPublishable() || container.HasTag(preprint.QATestTag),
		"date_updated":   DateUpdated(p).Format(TimestampLayout),
		"date_published": published,
	})

	toVisit := []graph.Handle{
		b.root,
		b.workIdentifier(b.root, f.CanonicalURL(p.ID())),
	}

	if doi, ok := p.Identifier(preprint.CategoryDOI); ok {
		toVisit = append(toVisit, b.workIdentifier(b.root, DOIURL(doi)))
	}

	if prov := p.Provider(); prov != nil && prov.DomainRedirectEnabled && p.AbsoluteURL() != "" {
		toVisit = append(toVisit, b.workIdentifier(b.root, p.AbsoluteURL()))
	}

	// The article DOI identifies a copy of this work hosted elsewhere, so it
	// hangs off a separate creative work rather than the root.
	if article := p.ArticleDOI(); article != "" {
		related := b.g.AddWithID("creativework", "doi:"+strings.ToLower(article), nil)
		toVisit = append(toVisit,
			b.g.Add("workrelation", graph.Fields{"subject": b.root, "related": related}),
			b.workIdentifier(related, DOIURL(article)),
		)
	}

	b.g.Set(b.root, "tags", b.tags(container.Tags))
	b.g.Set(b.root, "subjects", b.subjectRelations(p, oldSubjects))

	for i, c := range p.Contributors() {
		toVisit = append(toVisit, b.contributor(c, i))
	}
	for _, name := range p.AffiliatedInstitutionNames() {
		toVisit = append(toVisit, b.g.Add("agentworkrelation", graph.Fields{
			"creative_work": b.root,
			"agent":         b.institution(name),
		}))
	}

	return b.g.Closure(toVisit...)
}

func (b *builder) workIdentifier(work graph.Handle, uri string) graph.Handle {
	return b.g.Add("workidentifier", graph.Fields{"creative_work": work, "uri": uri})
}

func (b *builder) tags(names []string) []graph.Handle {
	out := make([]graph.Handle, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		tag := b.g.AddWithID("tag", name, graph.Fields{"name": name})
		out = append(out, b.g.Add("throughtags", graph.Fields{"creative_work": b.root, "tag": tag}))
	}
	return out
}

// subjectRelations emits a live relation for every current subject and a
// tombstone for every former subject that is no longer attached. A subject
// present in both sets stays live.
func (b *builder) subjectRelations(p preprint.View, oldSubjects []string) []graph.Handle {
	current := p.Subjects()
	out := make([]graph.Handle, 0, len(current)+len(oldSubjects))
	for _, s := range current {
		out = append(out, b.throughSubject(s, false))
	}

	seen := make(map[string]bool, len(oldSubjects))
	for _, id := range oldSubjects {
		if seen[id] || p.HasSubject(id) {
			continue
		}
		seen[id] = true
		s, ok := p.LookupSubject(id)
		if !ok {
			logging.Warn().Str("preprint_id", p.ID()).Str("subject_id", id).
				Msg("Former subject not found, no deletion sent")
			continue
		}
		out = append(out, b.throughSubject(s, true))
	}
	return out
}

func (b *builder) throughSubject(s *preprint.Subject, deleted bool) graph.Handle {
	return b.g.Add("throughsubjects", graph.Fields{
		"creative_work": b.root,
		"is_deleted":    deleted,
		"subject":       b.subject(s),
	})
}

func (b *builder) subject(s *preprint.Subject) graph.Handle {
	if h, ok := b.subjects[s.ID]; ok {
		return h
	}
	h := b.g.AddWithID("subject", s.ID, graph.Fields{"name": s.Name, "uri": s.URI})
	b.subjects[s.ID] = h
	if s.Parent != nil {
		b.g.Set(h, "parent", b.subject(s.Parent))
	}
	if s.CentralSynonym != nil {
		b.g.Set(h, "central_synonym", b.subject(s.CentralSynonym))
	}
	return h
}

// contributor emits a creator for bibliographic contributors, cited in
// position order, and a plain contributor otherwise.
func (b *builder) contributor(c preprint.Contributor, index int) graph.Handle {
	fields := graph.Fields{
		"agent":         b.person(c),
		"creative_work": b.root,
		"cited_as":      c.FullName,
	}
	typ := "contributor"
	if c.Bibliographic {
		typ = "creator"
		fields["order_cited"] = index
	}
	return b.g.Add(typ, fields)
}

// person memoises by user id. Contributors without one each get their own
// node, identified by their attributes.
func (b *builder) person(c preprint.Contributor) graph.Handle {
	if h, ok := b.people[c.UserID]; ok && c.UserID != "" {
		return h
	}
	h := b.g.AddWithID("person", c.UserID, graph.Fields{
		"given_name":      c.GivenName,
		"family_name":     c.FamilyName,
		"additional_name": c.MiddleNames,
		"suffix":          c.Suffix,
	})
	if c.UserID != "" {
		b.people[c.UserID] = h
	}

	var identifiers []graph.Handle
	for _, uri := range []string{c.AbsoluteURL, c.ORCID} {
		if uri != "" {
			identifiers = append(identifiers, b.g.Add("agentidentifier", graph.Fields{"agent": h, "uri": uri}))
		}
	}
	b.g.Set(h, "identifiers", identifiers)

	affiliations := make([]graph.Handle, 0, len(c.Institutions))
	for _, name := range slices.Compact(slices.Sorted(slices.Values(c.Institutions))) {
		affiliations = append(affiliations, b.g.Add("isaffiliatedwith", graph.Fields{
			"subject": h,
			"related": b.institution(name),
		}))
	}
	b.g.Set(h, "related_agents", affiliations)
	return h
}

func (b *builder) institution(name string) graph.Handle {
	if h, ok := b.institutions[name]; ok {
		return h
	}
	h := b.g.AddWithID("institution", name, graph.Fields{"name": name})
	b.institutions[name] = h
	return h
}
