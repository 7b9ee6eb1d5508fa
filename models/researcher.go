package models

import (
	"time"
)

// Degree levels reported by the sources.
const (
	DegreeMasters = "masters"
	DegreePhD     = "phd"
	DegreePostdoc = "postdoc"
)

// Employment sectors.
const (
	SectorAcademia   = "academia"
	SectorGovernment = "government"
	SectorPrivate    = "private"
	SectorNGO        = "ngo"
	SectorUnknown    = "unknown"
)

// Enrichment status, advanced only by the discovery collector.
const (
	EnrichmentPending  = "pending"
	EnrichmentPartial  = "partial"
	EnrichmentComplete = "complete"
)

// FieldUnknown is the explicit sentinel for an unset research field.
// It applies to ResearchField only; every other field uses the empty string.
const FieldUnknown = "unknown"

// Researcher is the canonical profile for one real person. The identity key
// is (name, institution, graduation year), compared by exact stored value.
// Two spellings of the same person are two rows; no case or diacritic
// folding is applied.
type Researcher struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Identity key
	Name           string `json:"name" gorm:"index:idx_researchers_identity,unique;size:512;not null"`
	Institution    string `json:"institution" gorm:"index:idx_researchers_identity,unique;size:256;not null"`
	GraduationYear int    `json:"graduation_year" gorm:"index:idx_researchers_identity,unique;not null"`

	// Academic profile
	DegreeLevel   string `json:"degree_level,omitempty" gorm:"index"`
	ResearchField string `json:"research_field" gorm:"default:'unknown'"`

	// Current employment
	JobTitle string `json:"job_title,omitempty"`
	Company  string `json:"company,omitempty"`
	Sector   string `json:"sector,omitempty" gorm:"index"`

	// Current location
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`

	// Identity links
	NetworkURL string `json:"network_url,omitempty"`
	CVURL      string `json:"cv_url,omitempty"`
	Email      string `json:"email,omitempty"`

	// Enrichment lifecycle; never touched by the bulk upsert path.
	EnrichmentStatus string     `json:"enrichment_status" gorm:"index;default:'pending'"`
	LastEnrichedAt   *time.Time `json:"last_enriched_at,omitempty"`

	Publications []Publication `json:"publications,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

func (Researcher) TableName() string {
	return "researchers"
}
