package store

import (
	"encoding/json"
	"fmt"
	"time"

	"kpbuilder/api/internal/proposal"
	"kpbuilder/api/internal/templates"
)

// ProposalRecord is a proposals row. Document holds the editor JSON; the
// columns next to it are authoritative for identity, status and audit data.
type ProposalRecord struct {
	ID                string
	WorkspaceID       string
	ClientID          string
	Document          []byte
	Status            string
	Version           int
	SharePasswordHash string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Proposal parses the stored document and overlays the row columns.
func (r ProposalRecord) Proposal() (proposal.Proposal, error) {
	p, err := proposal.ParseProposal(r.Document)
	if err != nil {
		return proposal.Proposal{}, fmt.Errorf("parse proposal %s: %w", r.ID, err)
	}
	p.ID = r.ID
	p.WorkspaceID = r.WorkspaceID
	p.ClientID = r.ClientID
	p.Status = proposal.ParseStatus(r.Status)
	p.Version = r.Version
	p.SharePasswordHash = r.SharePasswordHash
	p.CreatedAt = r.CreatedAt.UTC()
	p.UpdatedAt = r.UpdatedAt.UTC()
	return p, nil
}

// TemplateRecord is a proposal_templates row.
type TemplateRecord struct {
	ID          string
	WorkspaceID string
	Name        string
	Description string
	Category    string
	Defaults    []byte
	Sections    []byte
	IsDefault   bool
	CreatedAt   time.Time
}

// Template decodes the stored defaults and section list through the same
// defensive parsers used for proposals.
func (r TemplateRecord) Template() (templates.Template, error) {
	defaults, err := templates.ParseDefaults(r.Defaults)
	if err != nil {
		return templates.Template{}, fmt.Errorf("parse template %s defaults: %w", r.ID, err)
	}
	var sections any
	_ = json.Unmarshal(r.Sections, &sections)
	return templates.Template{
		ID:          r.ID,
		WorkspaceID: r.WorkspaceID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Defaults:    defaults,
		Sections:    templates.FilterSections(sections),
		IsDefault:   r.IsDefault,
		CreatedAt:   r.CreatedAt.UTC(),
	}, nil
}

// NewTemplateRecord encodes a template for insertion.
func NewTemplateRecord(t templates.Template) (TemplateRecord, error) {
	defaults, err := json.Marshal(t.Defaults)
	if err != nil {
		return TemplateRecord{}, fmt.Errorf("marshal template defaults: %w", err)
	}
	sections, err := json.Marshal(templates.FilterSections(t.Sections))
	if err != nil {
		return TemplateRecord{}, fmt.Errorf("marshal template sections: %w", err)
	}
	return TemplateRecord{
		ID:          t.ID,
		WorkspaceID: t.WorkspaceID,
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		Defaults:    defaults,
		Sections:    sections,
		IsDefault:   t.IsDefault,
	}, nil
}
