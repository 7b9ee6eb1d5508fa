package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"scholar-trace/config"
	"scholar-trace/models"
)

// EnrichmentSource is the provenance tag of the designated enrichment
// collector. Only candidates carrying it may advance a researcher's
// enrichment status; bulk sources never touch it.
const EnrichmentSource = "discovery"

// UpsertResult reports what one upsert did.
type UpsertResult struct {
	ID      uint `json:"id"`
	Created bool `json:"created"`
	Updated bool `json:"updated"`
}

// MergeService is the entity resolution and merge engine. Identity is an
// exact composite key; merges are monotonic, fields only move from empty
// to filled and a filled field is never overwritten (first writer wins).
type MergeService struct {
	Config *config.Config
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewMergeService(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *MergeService {
	return &MergeService{Config: cfg, DB: db, Logger: logger}
}

// isBlank is the single "effectively empty" predicate applied to every
// mergeable field. Sentinels extend it for fields that use a literal
// placeholder (research field's "unknown"); it is deliberately not
// generalized beyond the fields that actually carry one.
func isBlank(value string, sentinels ...string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return true
	}
	for _, s := range sentinels {
		if trimmed == s {
			return true
		}
	}
	return false
}

// UpsertResearcher resolves a candidate against the identity key
// (name, institution, graduation year) and either creates the profile or
// merges the candidate into it. The enrichment status is never modified
// on this path.
func (m *MergeService) UpsertResearcher(candidate models.Candidate, prov models.Provenance) (UpsertResult, error) {
	name := strings.TrimSpace(candidate.Name)
	institution := strings.TrimSpace(candidate.Institution)

	switch {
	case name == "":
		return UpsertResult{}, &ValidationError{Reason: "missing name"}
	case institution == "":
		return UpsertResult{}, &ValidationError{Reason: "missing institution"}
	case candidate.GraduationYear <= 0:
		return UpsertResult{}, &ValidationError{Reason: "missing graduation year"}
	}

	var existing models.Researcher
	err := m.DB.
		Where("name = ? AND institution = ? AND graduation_year = ?", name, institution, candidate.GraduationYear).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		row := models.Researcher{
			Name:             name,
			Institution:      institution,
			GraduationYear:   candidate.GraduationYear,
			DegreeLevel:      strings.TrimSpace(candidate.DegreeLevel),
			ResearchField:    strings.TrimSpace(candidate.ResearchField),
			JobTitle:         strings.TrimSpace(candidate.JobTitle),
			Company:          strings.TrimSpace(candidate.Company),
			Sector:           strings.TrimSpace(candidate.Sector),
			City:             strings.TrimSpace(candidate.City),
			State:            strings.TrimSpace(candidate.State),
			NetworkURL:       strings.TrimSpace(candidate.NetworkURL),
			CVURL:            strings.TrimSpace(candidate.CVURL),
			Email:            strings.TrimSpace(candidate.Email),
			EnrichmentStatus: models.EnrichmentPending,
		}
		if row.ResearchField == "" {
			row.ResearchField = models.FieldUnknown
		}
		if createErr := m.DB.Create(&row).Error; createErr != nil {
			return UpsertResult{}, &PersistenceError{Op: "create researcher", Err: createErr}
		}
		m.Logger.Info("Researcher profile created",
			zap.String("name", name),
			zap.String("institution", institution),
			zap.Int("graduation_year", candidate.GraduationYear),
			zap.String("source", prov.Source))
		return UpsertResult{ID: row.ID, Created: true}, nil
	}
	if err != nil {
		return UpsertResult{}, &PersistenceError{Op: "lookup researcher", Err: err}
	}

	updates := map[string]interface{}{}
	merge := func(column, current, incoming string, sentinels ...string) {
		incoming = strings.TrimSpace(incoming)
		if isBlank(incoming, sentinels...) {
			return
		}
		if isBlank(current, sentinels...) {
			updates[column] = incoming
		}
	}

	merge("degree_level", existing.DegreeLevel, candidate.DegreeLevel)
	merge("research_field", existing.ResearchField, candidate.ResearchField, models.FieldUnknown)
	merge("job_title", existing.JobTitle, candidate.JobTitle)
	merge("company", existing.Company, candidate.Company)
	merge("sector", existing.Sector, candidate.Sector)
	merge("city", existing.City, candidate.City)
	merge("state", existing.State, candidate.State)
	merge("network_url", existing.NetworkURL, candidate.NetworkURL)
	merge("cv_url", existing.CVURL, candidate.CVURL)
	merge("email", existing.Email, candidate.Email)

	if len(updates) == 0 {
		return UpsertResult{ID: existing.ID}, nil
	}

	if updateErr := m.DB.Model(&existing).Updates(updates).Error; updateErr != nil {
		return UpsertResult{}, &PersistenceError{Op: "update researcher", Err: updateErr}
	}
	m.Logger.Debug("Researcher profile merged",
		zap.Uint("researcher_id", existing.ID),
		zap.Int("fields_adopted", len(updates)),
		zap.String("source", prov.Source))
	return UpsertResult{ID: existing.ID, Updated: true}, nil
}

// UpsertPublication resolves a publication candidate against
// (researcher, title, defense year). Scalars follow the monotonic merge
// rule; the keyword set unions, existing order first, new keywords
// appended in input order.
func (m *MergeService) UpsertPublication(researcherID uint, candidate *models.PublicationCandidate) (UpsertResult, error) {
	if candidate == nil {
		return UpsertResult{}, &ValidationError{Reason: "missing publication"}
	}
	title := strings.TrimSpace(candidate.Title)
	if title == "" {
		return UpsertResult{}, &ValidationError{Reason: "missing publication title"}
	}
	if candidate.DefenseYear <= 0 {
		return UpsertResult{}, &ValidationError{Reason: "missing defense year"}
	}

	var existing models.Publication
	err := m.DB.
		Where("researcher_id = ? AND title = ? AND defense_year = ?", researcherID, title, candidate.DefenseYear).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		row := models.Publication{
			ResearcherID: researcherID,
			Title:        title,
			DefenseYear:  candidate.DefenseYear,
			Institution:  strings.TrimSpace(candidate.Institution),
			Program:      strings.TrimSpace(candidate.Program),
			Abstract:     strings.TrimSpace(candidate.Abstract),
			AdvisorName:  strings.TrimSpace(candidate.AdvisorName),
			SourceURL:    strings.TrimSpace(candidate.SourceURL),
		}
		if len(candidate.Keywords) > 0 {
			encoded, marshalErr := json.Marshal(candidate.Keywords)
			if marshalErr != nil {
				return UpsertResult{}, &PersistenceError{Op: "encode keywords", Err: marshalErr}
			}
			row.Keywords = datatypes.JSON(encoded)
		}
		if createErr := m.DB.Create(&row).Error; createErr != nil {
			return UpsertResult{}, &PersistenceError{Op: "create publication", Err: createErr}
		}
		return UpsertResult{ID: row.ID, Created: true}, nil
	}
	if err != nil {
		return UpsertResult{}, &PersistenceError{Op: "lookup publication", Err: err}
	}

	updates := map[string]interface{}{}
	merge := func(column, current, incoming string) {
		incoming = strings.TrimSpace(incoming)
		if isBlank(incoming) {
			return
		}
		if isBlank(current) {
			updates[column] = incoming
		}
	}

	merge("institution", existing.Institution, candidate.Institution)
	merge("program", existing.Program, candidate.Program)
	merge("abstract", existing.Abstract, candidate.Abstract)
	merge("advisor_name", existing.AdvisorName, candidate.AdvisorName)
	merge("source_url", existing.SourceURL, candidate.SourceURL)

	if len(candidate.Keywords) > 0 {
		union, changed, unionErr := unionKeywords(existing.Keywords, candidate.Keywords)
		if unionErr != nil {
			return UpsertResult{}, &PersistenceError{Op: "merge keywords", Err: unionErr}
		}
		if changed {
			updates["keywords"] = union
		}
	}

	if len(updates) == 0 {
		return UpsertResult{ID: existing.ID}, nil
	}
	if updateErr := m.DB.Model(&existing).Updates(updates).Error; updateErr != nil {
		return UpsertResult{}, &PersistenceError{Op: "update publication", Err: updateErr}
	}
	return UpsertResult{ID: existing.ID, Updated: true}, nil
}

// unionKeywords merges incoming keywords into the stored JSON list.
// Existing order is preserved; genuinely new keywords are appended in
// input order, duplicates dropped.
func unionKeywords(stored datatypes.JSON, incoming []string) (datatypes.JSON, bool, error) {
	var existing []string
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &existing); err != nil {
			return nil, false, fmt.Errorf("decode stored keywords: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(existing))
	for _, kw := range existing {
		seen[kw] = struct{}{}
	}

	changed := false
	for _, kw := range incoming {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		existing = append(existing, kw)
		changed = true
	}
	if !changed {
		return stored, false, nil
	}

	encoded, err := json.Marshal(existing)
	if err != nil {
		return nil, false, fmt.Errorf("encode keywords: %w", err)
	}
	return datatypes.JSON(encoded), true, nil
}

// UpsertResearcherWithPublication composes the two upserts sequentially.
// The pair is not atomic by design: the publication lookup is idempotent,
// so a retry after a partial failure is always safe.
func (m *MergeService) UpsertResearcherWithPublication(candidate models.Candidate, prov models.Provenance) (UpsertResult, *UpsertResult, error) {
	researcher, err := m.UpsertResearcher(candidate, prov)
	if err != nil {
		return UpsertResult{}, nil, err
	}
	if candidate.Publication == nil {
		return researcher, nil, nil
	}
	publication, err := m.UpsertPublication(researcher.ID, candidate.Publication)
	if err != nil {
		return researcher, nil, err
	}
	return researcher, &publication, nil
}

// enrichmentRank orders the monotonic enrichment ladder.
func enrichmentRank(status string) int {
	switch status {
	case models.EnrichmentComplete:
		return 2
	case models.EnrichmentPartial:
		return 1
	default:
		return 0
	}
}

// AdvanceEnrichment recomputes the enrichment status of a profile from its
// stored fields and advances it if the new level is strictly higher. Only
// the designated enrichment source may call this; it never moves the
// status backwards.
func (m *MergeService) AdvanceEnrichment(researcherID uint, prov models.Provenance) error {
	if prov.Source != EnrichmentSource {
		return &ValidationError{Reason: fmt.Sprintf("source %q may not advance enrichment status", prov.Source)}
	}

	var row models.Researcher
	if err := m.DB.First(&row, researcherID).Error; err != nil {
		return &PersistenceError{Op: "lookup researcher for enrichment", Err: err}
	}

	level := enrichmentLevel(&row)
	if enrichmentRank(level) <= enrichmentRank(row.EnrichmentStatus) {
		return nil
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"enrichment_status": level,
		"last_enriched_at":  &now,
	}
	if err := m.DB.Model(&row).Updates(updates).Error; err != nil {
		return &PersistenceError{Op: "advance enrichment", Err: err}
	}
	m.Logger.Info("Enrichment status advanced",
		zap.Uint("researcher_id", researcherID),
		zap.String("from", row.EnrichmentStatus),
		zap.String("to", level))
	return nil
}

// enrichmentLevel derives the ladder position from what the profile holds:
// complete needs employment, location and at least one identity link;
// anything beyond the bulk fields is partial.
func enrichmentLevel(r *models.Researcher) string {
	hasEmployment := !isBlank(r.JobTitle) && !isBlank(r.Company)
	hasLocation := !isBlank(r.City)
	hasLink := !isBlank(r.NetworkURL) || !isBlank(r.CVURL) || !isBlank(r.Email)

	if hasEmployment && hasLocation && hasLink {
		return models.EnrichmentComplete
	}
	if hasEmployment || hasLocation || hasLink {
		return models.EnrichmentPartial
	}
	return models.EnrichmentPending
}
