// Package report defines the canonical record type for an ingested project
// basis report and the trust scoring over it.
package report

import (
	"strings"
	"time"
)

// Report is the structured representation of one ingested basis report.
// Header and section fields are optional; the empty string means the field
// was absent from the source document.
type Report struct {
	ID int64 `json:"id"`

	// File metadata.
	SourcePath string    `json:"source_path"`
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	ModifiedAt time.Time `json:"modified_at,omitzero"`

	// Header fields.
	ProjectName   string `json:"project_name,omitempty"`
	ProjectNumber string `json:"project_number,omitempty"`
	ProgramRegion string `json:"program_region,omitempty"`
	Category      string `json:"category,omitempty"`
	ProjectLeader string `json:"project_leader,omitempty"`
	Reviewer      string `json:"project_reviewer,omitempty"`
	Disciplines   string `json:"lead_disciplines,omitempty"`
	Client        string `json:"client,omitempty"`
	ClientRep     string `json:"client_representative,omitempty"`

	// Narrative sections.
	Background      string `json:"background,omitempty"`
	ScopeOfWork     string `json:"scope_of_work,omitempty"`
	ScopeOfServices string `json:"scope_of_services,omitempty"`
	Deliverables    string `json:"deliverables,omitempty"`
	References      string `json:"reference_documents,omitempty"`
	ExistingDesign  string `json:"existing_design,omitempty"`
	Assumptions     string `json:"assumptions,omitempty"`
	Requirements    string `json:"performance_requirements,omitempty"`
	OperationMaint  string `json:"operation_maintenance,omitempty"`
	Monitoring      string `json:"monitoring,omitempty"`

	// Derived.
	SearchText  string    `json:"searchable_text,omitempty"`
	TrustScore  float64   `json:"trust_score"`
	TrustBadges []string  `json:"trust_badges,omitempty"`
	IndexedAt   time.Time `json:"indexed_at,omitzero"`
}

// SearchableText concatenates all non-empty header and section values in a
// stable order. It is the embedding input for the retrieval engine.
func (r *Report) SearchableText() string {
	parts := make([]string, 0, 16)
	for _, v := range []string{
		r.ProjectName, r.ProjectNumber, r.ProgramRegion,
		r.Category, r.Client, r.Disciplines,
	} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	for _, v := range []string{
		r.Background, r.ScopeOfWork, r.ScopeOfServices,
		r.Deliverables, r.References, r.ExistingDesign,
		r.Assumptions, r.Requirements, r.OperationMaint, r.Monitoring,
	} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// FallbackText is used for indexing when SearchText was never derived: the
// concatenation of name, background, scope of work and deliverables.
func (r *Report) FallbackText() string {
	parts := make([]string, 0, 4)
	for _, v := range []string{r.ProjectName, r.Background, r.ScopeOfWork, r.Deliverables} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}
