package models

import "time"

// Provenance documents where a candidate record came from.
type Provenance struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Candidate is one source-reported, possibly incomplete snapshot of a
// researcher, optionally carrying one publication. Collectors normalize
// their raw results into this shape; the merge engine consumes it.
type Candidate struct {
	// Identity key fields; all three are required.
	Name           string `json:"name"`
	Institution    string `json:"institution"`
	GraduationYear int    `json:"graduation_year"`

	DegreeLevel   string `json:"degree_level,omitempty"`
	ResearchField string `json:"research_field,omitempty"`

	JobTitle string `json:"job_title,omitempty"`
	Company  string `json:"company,omitempty"`
	Sector   string `json:"sector,omitempty"`

	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`

	NetworkURL string `json:"network_url,omitempty"`
	CVURL      string `json:"cv_url,omitempty"`
	Email      string `json:"email,omitempty"`

	Publication *PublicationCandidate `json:"publication,omitempty"`

	Provenance Provenance `json:"provenance"`
}

// PublicationCandidate is the publication part of a candidate record.
type PublicationCandidate struct {
	Title       string   `json:"title"`
	DefenseYear int      `json:"defense_year"`
	Institution string   `json:"institution,omitempty"`
	Program     string   `json:"program,omitempty"`
	Abstract    string   `json:"abstract,omitempty"`
	AdvisorName string   `json:"advisor_name,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	SourceURL   string   `json:"source_url,omitempty"`
}
