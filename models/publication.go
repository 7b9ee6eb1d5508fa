package models

import (
	"time"

	"gorm.io/datatypes"
)

// Publication is one dissertation or thesis, owned by exactly one Researcher.
// The identity key is (researcher, title, defense year).
type Publication struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ResearcherID uint `json:"researcher_id" gorm:"index:idx_publications_identity,unique;not null"`

	Title       string `json:"title" gorm:"index:idx_publications_identity,unique;size:1024;not null"`
	DefenseYear int    `json:"defense_year" gorm:"index:idx_publications_identity,unique;not null"`

	Institution string `json:"institution,omitempty"`
	Program     string `json:"program,omitempty"`
	Abstract    string `json:"abstract,omitempty" gorm:"type:text"`
	AdvisorName string `json:"advisor_name,omitempty"`

	// JSON array of keywords; insertion order is preserved, merges union.
	Keywords datatypes.JSON `json:"keywords,omitempty"`

	SourceURL string `json:"source_url,omitempty"`
}

func (Publication) TableName() string {
	return "publications"
}
