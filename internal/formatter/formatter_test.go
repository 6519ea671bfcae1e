// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package formatter

import (
	"sort"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sharesync/internal/preprint"
)

var (
	preprintModified  = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	containerModified = time.Date(2026, 5, 2, 9, 30, 0, 123456000, time.UTC)
)

// scenario builds a published preprint with one subject, one tag and one
// visible contributor.
func scenario() *preprint.Snapshot {
	s1 := &preprint.Subject{ID: "S1", Name: "Biology", URI: "https://api.osf.io/v2/taxonomies/S1/"}
	return &preprint.Snapshot{
		PreprintID: "abc12",
		Node: &preprint.Container{
			ID:          "node1",
			Title:       "On Things",
			Description: "A study.",
			Modified:    preprintModified.Add(-time.Hour),
			Public:      true,
			Tags:        []string{"t1"},
		},
		Service:         &preprint.Provider{ID: "osf", SharePublishType: "preprint", AccessToken: "tok"},
		ModifiedAt:      preprintModified,
		PublishedAt:     preprintModified.Add(-24 * time.Hour),
		IsPublished:     true,
		URL:             "https://osf.io/preprints/osf/abc12/",
		CurrentSubjects: []*preprint.Subject{s1},
		ContributorList: []preprint.Contributor{{
			UserID:        "u1",
			FullName:      "Ada Lovelace",
			GivenName:     "Ada",
			FamilyName:    "Lovelace",
			AbsoluteURL:   "https://osf.io/u1/",
			Bibliographic: true,
		}},
	}
}

func newFormatter(t *testing.T) *Formatter {
	t.Helper()
	f, err := New("https://osf.io/")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

func format(t *testing.T, p preprint.View, oldSubjects []string) []map[string]any {
	t.Helper()
	return newFormatter(t).Format(p, "preprint", oldSubjects).Serialize()
}

func byType(records []map[string]any, typ string) []map[string]any {
	var out []map[string]any
	for _, r := range records {
		if r["@type"] == typ {
			out = append(out, r)
		}
	}
	return out
}

func byID(records []map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(records))
	for _, r := range records {
		out[r["@id"].(string)] = r
	}
	return out
}

func refID(t *testing.T, rec map[string]any, key string) string {
	t.Helper()
	ref, ok := rec[key].(map[string]any)
	if !ok {
		t.Fatalf("%v.%s = %v, want reference", rec["@type"], key, rec[key])
	}
	return ref["@id"].(string)
}

func TestFormatScenario(t *testing.T) {
	t.Parallel()

	records := format(t, scenario(), nil)

	want := map[string]int{
		"preprint":        1,
		"workidentifier":  1,
		"throughtags":     1,
		"tag":             1,
		"throughsubjects": 1,
		"subject":         1,
		"creator":         1,
		"person":          1,
		"agentidentifier": 1,
	}
	got := make(map[string]int)
	for _, r := range records {
		got[r["@type"].(string)]++
	}
	for typ, n := range want {
		if got[typ] != n {
			t.Errorf("%s nodes = %d, want %d", typ, got[typ], n)
		}
	}
	if len(records) != 9 {
		t.Errorf("total nodes = %d, want 9: %v", len(records), got)
	}
	if len(byID(records)) != len(records) {
		t.Error("duplicate @id in document")
	}

	root := byType(records, "preprint")[0]
	if root["is_deleted"] != false {
		t.Errorf("root is_deleted = %v, want false", root["is_deleted"])
	}
	if root["title"] != "On Things" || root["description"] != "A study." {
		t.Errorf("root metadata = %v", root)
	}
	if root["date_published"] != "2026-04-30T10:00:00.000000Z" {
		t.Errorf("date_published = %v", root["date_published"])
	}

	ident := byType(records, "workidentifier")[0]
	if ident["uri"] != "https://osf.io/abc12/" {
		t.Errorf("canonical uri = %v", ident["uri"])
	}
	if refID(t, ident, "creative_work") != root["@id"] {
		t.Error("canonical identifier should point at the root")
	}

	creator := byType(records, "creator")[0]
	if creator["order_cited"] != 0 || creator["cited_as"] != "Ada Lovelace" {
		t.Errorf("creator = %v", creator)
	}
	if tag := byType(records, "tag")[0]; tag["name"] != "t1" {
		t.Errorf("tag = %v", tag)
	}
}

func TestFormatSubjectDiff(t *testing.T) {
	t.Parallel()

	a := &preprint.Subject{ID: "A", Name: "Anthropology"}
	b := &preprint.Subject{ID: "B", Name: "Biology"}
	c := &preprint.Subject{ID: "C", Name: "Chemistry"}
	p := scenario()
	p.CurrentSubjects = []*preprint.Subject{a, b}
	p.Catalog = map[string]*preprint.Subject{"C": c}

	records := format(t, p, []string{"B", "C", "C"})
	subjects := byID(byType(records, "subject"))

	live := map[string]int{}
	deleted := map[string]int{}
	for _, ts := range byType(records, "throughsubjects") {
		name := subjects[refID(t, ts, "subject")]["name"].(string)
		if ts["is_deleted"] == true {
			deleted[name]++
		} else {
			live[name]++
		}
	}

	if live["Anthropology"] != 1 || live["Biology"] != 1 || len(live) != 2 {
		t.Errorf("live subjects = %v, want Anthropology and Biology once each", live)
	}
	if deleted["Chemistry"] != 1 || len(deleted) != 1 {
		t.Errorf("tombstones = %v, want exactly one for Chemistry", deleted)
	}
}

func TestFormatUnknownFormerSubjectIsSkipped(t *testing.T) {
	t.Parallel()

	records := format(t, scenario(), []string{"gone"})
	if n := len(byType(records, "throughsubjects")); n != 1 {
		t.Errorf("throughsubjects = %d, want only the current subject", n)
	}
}

func TestFormatArticleDOIIsolation(t *testing.T) {
	t.Parallel()

	p := scenario()
	p.Identifiers = map[string]string{preprint.CategoryDOI: "10.31219/osf.io/abc12"}
	p.ArticleDOIValue = "10.1000/journal.123"

	records := format(t, p, nil)
	root := byType(records, "preprint")[0]
	rootID := root["@id"].(string)

	works := byType(records, "creativework")
	if len(works) != 1 {
		t.Fatalf("related creative works = %d, want 1", len(works))
	}
	relatedID := works[0]["@id"].(string)
	if relatedID == rootID {
		t.Fatal("related work must be distinct from the root")
	}

	rels := byType(records, "workrelation")
	if len(rels) != 1 || refID(t, rels[0], "subject") != rootID || refID(t, rels[0], "related") != relatedID {
		t.Errorf("workrelation = %v", rels)
	}

	owners := map[string]string{}
	for _, wi := range byType(records, "workidentifier") {
		owners[wi["uri"].(string)] = refID(t, wi, "creative_work")
	}
	if owners["https://doi.org/10.1000/journal.123"] != relatedID {
		t.Error("article DOI must identify the related work")
	}
	if owners["https://doi.org/10.31219/osf.io/abc12"] != rootID {
		t.Error("preprint DOI must identify the root")
	}
	if owners["https://osf.io/abc12/"] != rootID {
		t.Error("canonical URL must identify the root")
	}
}

func TestFormatDomainRedirectIdentifier(t *testing.T) {
	t.Parallel()

	p := scenario()
	p.Service.DomainRedirectEnabled = true

	uris := map[string]bool{}
	for _, wi := range byType(format(t, p, nil), "workidentifier") {
		uris[wi["uri"].(string)] = true
	}
	if !uris["https://osf.io/preprints/osf/abc12/"] || len(uris) != 2 {
		t.Errorf("identifiers = %v, want canonical and redirect", uris)
	}
}

func TestFormatIsDeleted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*preprint.Snapshot)
		want   bool
	}{
		{"published", func(*preprint.Snapshot) {}, false},
		{"unpublished", func(p *preprint.Snapshot) { p.IsPublished = false }, true},
		{"qatest", func(p *preprint.Snapshot) { p.Node.Tags = append(p.Node.Tags, "qatest") }, true},
		{"withdrawn", func(p *preprint.Snapshot) { p.IsDeleted = true }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := scenario()
			tt.mutate(p)
			root := byType(format(t, p, nil), "preprint")[0]
			if root["is_deleted"] != tt.want {
				t.Errorf("is_deleted = %v, want %v", root["is_deleted"], tt.want)
			}
		})
	}
}

func TestFormatDateUpdatedUsesLatestTimestamp(t *testing.T) {
	t.Parallel()

	p := scenario()
	root := byType(format(t, p, nil), "preprint")[0]
	if root["date_updated"] != "2026-05-01T10:00:00.000000Z" {
		t.Errorf("date_updated = %v, want preprint modified", root["date_updated"])
	}

	// An edit that only touches the container must still move the date.
	p.Node.Modified = containerModified
	root = byType(format(t, p, nil), "preprint")[0]
	if root["date_updated"] != "2026-05-02T09:30:00.123456Z" {
		t.Errorf("date_updated = %v, want container modified", root["date_updated"])
	}
	if !DateUpdated(p).Equal(containerModified) {
		t.Errorf("DateUpdated() = %v", DateUpdated(p))
	}
}

func TestFormatDeduplicatesSharedNodes(t *testing.T) {
	t.Parallel()

	p := scenario()
	p.Node.Tags = []string{"t1", "t1", ""}
	p.Node.Institutions = []string{"Center for Open Science"}
	p.ContributorList = append(p.ContributorList, preprint.Contributor{
		UserID:       "u2",
		FullName:     "Grace Hopper",
		AbsoluteURL:  "https://osf.io/u2/",
		ORCID:        "https://orcid.org/0000-0002-1825-0097",
		Institutions: []string{"Center for Open Science", "Center for Open Science"},
	})

	records := format(t, p, nil)
	if n := len(byType(records, "tag")); n != 1 {
		t.Errorf("tags = %d, want 1", n)
	}
	if n := len(byType(records, "throughtags")); n != 1 {
		t.Errorf("throughtags = %d, want 1", n)
	}
	if n := len(byType(records, "institution")); n != 1 {
		t.Errorf("institutions = %d, want 1 shared by preprint and contributor", n)
	}
	if n := len(byType(records, "isaffiliatedwith")); n != 1 {
		t.Errorf("affiliations = %d, want 1", n)
	}
	if n := len(byType(records, "agentworkrelation")); n != 1 {
		t.Errorf("agentworkrelation = %d, want 1", n)
	}

	contributors := byType(records, "contributor")
	if len(contributors) != 1 {
		t.Fatalf("contributors = %d, want 1 non-bibliographic", len(contributors))
	}
	if _, ok := contributors[0]["order_cited"]; ok {
		t.Error("non-bibliographic contributor must not carry order_cited")
	}
	if n := len(byType(records, "agentidentifier")); n != 3 {
		t.Errorf("agentidentifiers = %d, want profile URLs plus ORCID", n)
	}
}

func TestFormatContributorsWithoutUserID(t *testing.T) {
	t.Parallel()

	p := scenario()
	p.ContributorList = []preprint.Contributor{
		{FullName: "Ada Lovelace", GivenName: "Ada", FamilyName: "Lovelace", Bibliographic: true},
		{FullName: "Grace Hopper", GivenName: "Grace", FamilyName: "Hopper", Bibliographic: true},
	}

	records := format(t, p, nil)
	people := byType(records, "person")
	if len(people) != 2 {
		t.Fatalf("people = %d, want one per contributor", len(people))
	}

	agents := make(map[string]bool)
	for _, c := range byType(records, "creator") {
		agents[refID(t, c, "agent")] = true
	}
	if len(agents) != 2 {
		t.Errorf("creators point at %d distinct people, want 2", len(agents))
	}
}

func TestFormatSubjectHierarchy(t *testing.T) {
	t.Parallel()

	bepressLife := &preprint.Subject{ID: "bp-life", Name: "Life Sciences"}
	bepressBio := &preprint.Subject{ID: "bp-bio", Name: "Biology", Parent: bepressLife}
	custom := &preprint.Subject{ID: "x-bio", Name: "Bio", Parent: nil, CentralSynonym: bepressBio}
	p := scenario()
	p.CurrentSubjects = []*preprint.Subject{custom, bepressBio}

	records := format(t, p, nil)
	subjects := byType(records, "subject")
	if len(subjects) != 3 {
		t.Fatalf("subjects = %d, want 3", len(subjects))
	}
	ids := map[string]string{}
	for _, s := range subjects {
		ids[s["name"].(string)] = s["@id"].(string)
	}
	for _, s := range subjects {
		switch s["name"] {
		case "Bio":
			if refID(t, s, "central_synonym") != ids["Biology"] {
				t.Error("custom subject should map to bepress synonym")
			}
			if _, ok := s["parent"]; ok {
				t.Error("custom root subject has no parent")
			}
		case "Biology":
			if refID(t, s, "parent") != ids["Life Sciences"] {
				t.Error("Biology parent should be Life Sciences")
			}
		}
	}
}

func TestFormatIsDeterministic(t *testing.T) {
	t.Parallel()

	encode := func() []string {
		records := format(t, scenario(), []string{"S1"})
		out := make([]string, 0, len(records))
		for _, r := range records {
			data, err := json.Marshal(r)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			out = append(out, string(data))
		}
		sort.Strings(out)
		return out
	}

	first, second := encode(), encode()
	if len(first) != len(second) {
		t.Fatalf("node counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("record %d differs:\n%s\n%s", i, first[i], second[i])
		}
	}
}

func TestFormatWithoutContainer(t *testing.T) {
	t.Parallel()

	p := scenario()
	p.Node = nil
	records := format(t, p, nil)
	root := byType(records, "preprint")[0]
	if root["is_deleted"] != true {
		t.Error("preprint without container is not publishable")
	}
	if _, ok := root["title"]; ok {
		t.Error("empty title should be omitted")
	}
}

func TestFormatDefaultsRootType(t *testing.T) {
	t.Parallel()

	records := newFormatter(t).Format(scenario(), "", nil).Serialize()
	if n := len(byType(records, DefaultRootType)); n != 1 {
		t.Errorf("root of type %s = %d, want 1", DefaultRootType, n)
	}

	records = newFormatter(t).Format(scenario(), "Thesis", nil).Serialize()
	if n := len(byType(records, "thesis")); n != 1 {
		t.Errorf("root type should be lower-cased, got %d thesis nodes", n)
	}
}
