// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package api

import (
	"fmt"
	"time"

	"github.com/tomtom215/sharesync/internal/preprint"
)

// EventsRequest is the body of POST /api/v1/preprints/events.
type EventsRequest struct {
	Events []preprint.Event `json:"events" validate:"required,min=1,dive"`
}

// PreprintRequest is the body of PUT /api/v1/preprints/{id}. It replaces
// the stored read model of one preprint.
type PreprintRequest struct {
	Provider     *ProviderRequest     `json:"provider" validate:"required"`
	Container    *ContainerRequest    `json:"container"`
	Contributors []ContributorRequest `json:"contributors" validate:"max=1000,dive"`

	Modified    time.Time         `json:"modified" validate:"required"`
	PublishedAt *time.Time        `json:"published_at"`
	IsPublished bool              `json:"is_published"`
	IsDeleted   bool              `json:"is_deleted"`
	ReviewState string            `json:"review_state" validate:"max=32"`
	ArticleDOI  string            `json:"article_doi" validate:"max=255"`
	AbsoluteURL string            `json:"absolute_url" validate:"omitempty,url,max=2048"`
	Identifiers map[string]string `json:"identifiers" validate:"max=20"`

	// Subjects lists every taxonomy entry referenced by SubjectIDs or by
	// another entry's parent or synonym.
	Subjects   []SubjectRequest `json:"subjects" validate:"max=1000,dive"`
	SubjectIDs []string         `json:"subject_ids" validate:"max=200,dive,required,max=64"`

	// UpdateShare defaults to true.
	UpdateShare *bool    `json:"update_share"`
	ShareType   string   `json:"share_type" validate:"omitempty,sharetype,max=64"`
	SavedFields []string `json:"saved_fields" validate:"max=200,dive,required,max=64"`
}

// ProviderRequest describes the preprint provider.
type ProviderRequest struct {
	ID                    string `json:"id" validate:"required,objectid,max=64"`
	Name                  string `json:"name" validate:"max=255"`
	AccessToken           string `json:"access_token" validate:"max=512"`
	SharePublishType      string `json:"share_publish_type" validate:"omitempty,sharetype,max=64"`
	DomainRedirectEnabled bool   `json:"domain_redirect_enabled"`
	ReviewsWorkflow       string `json:"reviews_workflow" validate:"omitempty,oneof=pre-moderation post-moderation"`
}

// ContainerRequest describes the project behind the preprint.
type ContainerRequest struct {
	ID           string    `json:"id" validate:"required,objectid,max=64"`
	Title        string    `json:"title" validate:"max=1024"`
	Description  string    `json:"description" validate:"max=65536"`
	Modified     time.Time `json:"modified"`
	Public       bool      `json:"public"`
	Tags         []string  `json:"tags" validate:"max=500,dive,max=255"`
	Institutions []string  `json:"institutions" validate:"max=100,dive,max=255"`
}

// ContributorRequest describes one credited user, in citation order.
type ContributorRequest struct {
	UserID        string   `json:"user_id" validate:"required,objectid,max=64"`
	FullName      string   `json:"full_name" validate:"max=255"`
	GivenName     string   `json:"given_name" validate:"max=255"`
	FamilyName    string   `json:"family_name" validate:"max=255"`
	MiddleNames   string   `json:"middle_names" validate:"max=255"`
	Suffix        string   `json:"suffix" validate:"max=64"`
	AbsoluteURL   string   `json:"absolute_url" validate:"omitempty,url,max=2048"`
	ORCID         string   `json:"orcid" validate:"omitempty,url,max=255"`
	Bibliographic bool     `json:"bibliographic"`
	Institutions  []string `json:"institutions" validate:"max=100,dive,max=255"`
}

// SubjectRequest is one taxonomy entry.
type SubjectRequest struct {
	ID               string `json:"id" validate:"required,max=64"`
	Name             string `json:"name" validate:"required,max=255"`
	URI              string `json:"uri" validate:"max=2048"`
	ParentID         string `json:"parent_id" validate:"max=64"`
	CentralSynonymID string `json:"central_synonym_id" validate:"max=64"`
}

// Snapshot converts the request into the read model of preprint id.
func (req *PreprintRequest) Snapshot(id string) (*preprint.Snapshot, error) {
	subjects, err := req.subjectIndex()
	if err != nil {
		return nil, err
	}

	snap := &preprint.Snapshot{
		PreprintID:      id,
		ModifiedAt:      req.Modified.UTC(),
		IsPublished:     req.IsPublished,
		IsDeleted:       req.IsDeleted,
		ReviewState:     req.ReviewState,
		ArticleDOIValue: req.ArticleDOI,
		URL:             req.AbsoluteURL,
		Identifiers:     req.Identifiers,
		Catalog:         make(map[string]*preprint.Subject),
	}
	if req.PublishedAt != nil {
		snap.PublishedAt = req.PublishedAt.UTC()
	}

	p := req.Provider
	snap.Service = &preprint.Provider{
		ID:                    p.ID,
		Name:                  p.Name,
		AccessToken:           p.AccessToken,
		SharePublishType:      p.SharePublishType,
		DomainRedirectEnabled: p.DomainRedirectEnabled,
		ReviewsWorkflow:       p.ReviewsWorkflow,
	}

	if c := req.Container; c != nil {
		snap.Node = &preprint.Container{
			ID:           c.ID,
			Title:        c.Title,
			Description:  c.Description,
			Modified:     c.Modified.UTC(),
			Public:       c.Public,
			Tags:         c.Tags,
			Institutions: c.Institutions,
		}
		for _, cr := range req.Contributors {
			snap.ContributorList = append(snap.ContributorList, preprint.Contributor{
				UserID:        cr.UserID,
				FullName:      cr.FullName,
				GivenName:     cr.GivenName,
				FamilyName:    cr.FamilyName,
				MiddleNames:   cr.MiddleNames,
				Suffix:        cr.Suffix,
				AbsoluteURL:   cr.AbsoluteURL,
				ORCID:         cr.ORCID,
				Bibliographic: cr.Bibliographic,
				Institutions:  cr.Institutions,
			})
		}
	} else if len(req.Contributors) > 0 {
		return nil, fmt.Errorf("contributors require a container")
	}

	attached := make(map[string]bool, len(req.SubjectIDs))
	for _, sid := range req.SubjectIDs {
		s, ok := subjects[sid]
		if !ok {
			return nil, fmt.Errorf("subject_ids: %q is not listed in subjects", sid)
		}
		if attached[sid] {
			continue
		}
		attached[sid] = true
		snap.CurrentSubjects = append(snap.CurrentSubjects, s)
	}
	for sid, s := range subjects {
		if !attached[sid] {
			snap.Catalog[sid] = s
		}
	}
	return snap, nil
}

// subjectIndex links the flat subject list into parent and synonym chains.
func (req *PreprintRequest) subjectIndex() (map[string]*preprint.Subject, error) {
	index := make(map[string]*preprint.Subject, len(req.Subjects))
	for _, s := range req.Subjects {
		if _, dup := index[s.ID]; dup {
			return nil, fmt.Errorf("subjects: duplicate id %q", s.ID)
		}
		index[s.ID] = &preprint.Subject{ID: s.ID, Name: s.Name, URI: s.URI}
	}
	for _, s := range req.Subjects {
		node := index[s.ID]
		if s.ParentID != "" {
			parent, ok := index[s.ParentID]
			if !ok {
				return nil, fmt.Errorf("subjects: parent %q of %q is not listed", s.ParentID, s.ID)
			}
			node.Parent = parent
		}
		if s.CentralSynonymID != "" {
			synonym, ok := index[s.CentralSynonymID]
			if !ok {
				return nil, fmt.Errorf("subjects: central synonym %q of %q is not listed", s.CentralSynonymID, s.ID)
			}
			node.CentralSynonym = synonym
		}
	}
	for id, node := range index {
		seen := map[string]bool{id: true}
		for p := node.Parent; p != nil; p = p.Parent {
			if seen[p.ID] {
				return nil, fmt.Errorf("subjects: parent chain of %q has a cycle", id)
			}
			seen[p.ID] = true
		}
	}
	return index, nil
}
