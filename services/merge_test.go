package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholar-trace/models"
)

func candidateMaria() models.Candidate {
	return models.Candidate{
		Name:           "Maria Silva Santos",
		Institution:    "UFMS",
		GraduationYear: 2020,
		Provenance:     models.Provenance{Source: "govapi"},
	}
}

func TestUpsertResearcherIdempotence(t *testing.T) {
	merge, db := newTestMerge(t)

	first, err := merge.UpsertResearcher(candidateMaria(), models.Provenance{Source: "govapi"})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.False(t, first.Updated)

	second, err := merge.UpsertResearcher(candidateMaria(), models.Provenance{Source: "govapi"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.False(t, second.Updated)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.Researcher{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsertResearcherValidation(t *testing.T) {
	merge, _ := newTestMerge(t)

	cases := []models.Candidate{
		{Institution: "UFMS", GraduationYear: 2020},
		{Name: "Maria", GraduationYear: 2020},
		{Name: "Maria", Institution: "UFMS"},
		{Name: "   ", Institution: "UFMS", GraduationYear: 2020},
	}
	for _, candidate := range cases {
		_, err := merge.UpsertResearcher(candidate, models.Provenance{Source: "govapi"})
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	}
}

func TestUpsertResearcherMonotonicMerge(t *testing.T) {
	merge, db := newTestMerge(t)

	existing := candidateMaria()
	existing.Company = "X"
	first, err := merge.UpsertResearcher(existing, models.Provenance{Source: "govapi"})
	require.NoError(t, err)
	require.True(t, first.Created)

	incoming := candidateMaria()
	incoming.City = "Campo Grande"
	incoming.Company = "Y"
	result, err := merge.UpsertResearcher(incoming, models.Provenance{Source: "library"})
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.True(t, result.Updated)

	var stored models.Researcher
	require.NoError(t, db.First(&stored, first.ID).Error)
	assert.Equal(t, "Campo Grande", stored.City)
	assert.Equal(t, "X", stored.Company)
}

func TestUpsertResearcherUnknownSentinelResearchFieldOnly(t *testing.T) {
	merge, db := newTestMerge(t)

	first := candidateMaria()
	result, err := merge.UpsertResearcher(first, models.Provenance{Source: "govapi"})
	require.NoError(t, err)

	var stored models.Researcher
	require.NoError(t, db.First(&stored, result.ID).Error)
	assert.Equal(t, models.FieldUnknown, stored.ResearchField)

	// The sentinel counts as empty for research field: a real value takes it.
	second := candidateMaria()
	second.ResearchField = "Computer Science"
	updated, err := merge.UpsertResearcher(second, models.Provenance{Source: "library"})
	require.NoError(t, err)
	assert.True(t, updated.Updated)

	require.NoError(t, db.First(&stored, result.ID).Error)
	assert.Equal(t, "Computer Science", stored.ResearchField)

	// A filled research field is never replaced again.
	third := candidateMaria()
	third.ResearchField = "Mathematics"
	final, err := merge.UpsertResearcher(third, models.Provenance{Source: "repository"})
	require.NoError(t, err)
	assert.False(t, final.Updated)

	require.NoError(t, db.First(&stored, result.ID).Error)
	assert.Equal(t, "Computer Science", stored.ResearchField)
}

func TestUpsertResearcherFirstWriterWins(t *testing.T) {
	merge, db := newTestMerge(t)

	a := candidateMaria()
	resA, err := merge.UpsertResearcher(a, a.Provenance)
	require.NoError(t, err)
	assert.True(t, resA.Created)

	b := candidateMaria()
	b.Company = "Instituto X"
	resB, err := merge.UpsertResearcher(b, b.Provenance)
	require.NoError(t, err)
	assert.False(t, resB.Created)
	assert.True(t, resB.Updated)

	c := candidateMaria()
	c.Company = "Instituto Y"
	resC, err := merge.UpsertResearcher(c, c.Provenance)
	require.NoError(t, err)
	assert.False(t, resC.Updated)

	var stored models.Researcher
	require.NoError(t, db.First(&stored, resA.ID).Error)
	assert.Equal(t, "Instituto X", stored.Company)
}

func TestUpsertResearcherIdentityUniqueness(t *testing.T) {
	merge, db := newTestMerge(t)

	variants := []models.Candidate{
		candidateMaria(),
		func() models.Candidate { c := candidateMaria(); c.City = "Campo Grande"; return c }(),
		func() models.Candidate { c := candidateMaria(); c.Email = "maria@example.org"; return c }(),
		func() models.Candidate { c := candidateMaria(); c.DegreeLevel = models.DegreePhD; return c }(),
		candidateMaria(),
	}
	for _, candidate := range variants {
		_, err := merge.UpsertResearcher(candidate, candidate.Provenance)
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&models.Researcher{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsertResearcherNeverTouchesEnrichmentStatus(t *testing.T) {
	merge, db := newTestMerge(t)

	result, err := merge.UpsertResearcher(candidateMaria(), models.Provenance{Source: "govapi"})
	require.NoError(t, err)

	// Simulate a previously enriched profile.
	require.NoError(t, db.Model(&models.Researcher{}).Where("id = ?", result.ID).
		Update("enrichment_status", models.EnrichmentComplete).Error)

	update := candidateMaria()
	update.City = "Campo Grande"
	_, err = merge.UpsertResearcher(update, models.Provenance{Source: "library"})
	require.NoError(t, err)

	var stored models.Researcher
	require.NoError(t, db.First(&stored, result.ID).Error)
	assert.Equal(t, models.EnrichmentComplete, stored.EnrichmentStatus)
}

func TestUpsertPublicationCreateAndMerge(t *testing.T) {
	merge, db := newTestMerge(t)

	researcher, err := merge.UpsertResearcher(candidateMaria(), models.Provenance{Source: "govapi"})
	require.NoError(t, err)

	pub := &models.PublicationCandidate{
		Title:       "Deep Learning for Crop Monitoring",
		DefenseYear: 2020,
		Keywords:    []string{"a", "b"},
	}
	first, err := merge.UpsertPublication(researcher.ID, pub)
	require.NoError(t, err)
	assert.True(t, first.Created)

	again := &models.PublicationCandidate{
		Title:       "Deep Learning for Crop Monitoring",
		DefenseYear: 2020,
		AdvisorName: "Prof. Souza",
		Keywords:    []string{"b", "c"},
	}
	second, err := merge.UpsertPublication(researcher.ID, again)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.True(t, second.Updated)
	assert.Equal(t, first.ID, second.ID)

	var stored models.Publication
	require.NoError(t, db.First(&stored, first.ID).Error)
	assert.Equal(t, "Prof. Souza", stored.AdvisorName)

	var keywords []string
	require.NoError(t, json.Unmarshal(stored.Keywords, &keywords))
	assert.Equal(t, []string{"a", "b", "c"}, keywords)

	var count int64
	require.NoError(t, db.Model(&models.Publication{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsertPublicationKeywordUnionNoChange(t *testing.T) {
	merge, _ := newTestMerge(t)

	researcher, err := merge.UpsertResearcher(candidateMaria(), models.Provenance{Source: "govapi"})
	require.NoError(t, err)

	pub := &models.PublicationCandidate{Title: "T", DefenseYear: 2020, Keywords: []string{"a", "b"}}
	_, err = merge.UpsertPublication(researcher.ID, pub)
	require.NoError(t, err)

	// Same keyword set in a different arrival: no update recorded.
	repeat := &models.PublicationCandidate{Title: "T", DefenseYear: 2020, Keywords: []string{"b", "a"}}
	result, err := merge.UpsertPublication(researcher.ID, repeat)
	require.NoError(t, err)
	assert.False(t, result.Updated)
}

func TestUpsertResearcherWithPublicationComposes(t *testing.T) {
	merge, db := newTestMerge(t)

	candidate := candidateMaria()
	candidate.Publication = &models.PublicationCandidate{
		Title:       "Deep Learning for Crop Monitoring",
		DefenseYear: 2020,
		Keywords:    []string{"remote sensing"},
	}

	researcher, publication, err := merge.UpsertResearcherWithPublication(candidate, candidate.Provenance)
	require.NoError(t, err)
	assert.True(t, researcher.Created)
	require.NotNil(t, publication)
	assert.True(t, publication.Created)

	var stored models.Publication
	require.NoError(t, db.First(&stored, publication.ID).Error)
	assert.Equal(t, researcher.ID, stored.ResearcherID)
}

func TestAdvanceEnrichmentGating(t *testing.T) {
	merge, db := newTestMerge(t)

	result, err := merge.UpsertResearcher(candidateMaria(), models.Provenance{Source: "govapi"})
	require.NoError(t, err)

	// Bulk sources may not advance enrichment.
	err = merge.AdvanceEnrichment(result.ID, models.Provenance{Source: "govapi"})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	// Nothing discovered yet: status stays pending even for discovery.
	require.NoError(t, merge.AdvanceEnrichment(result.ID, models.Provenance{Source: EnrichmentSource}))
	var stored models.Researcher
	require.NoError(t, db.First(&stored, result.ID).Error)
	assert.Equal(t, models.EnrichmentPending, stored.EnrichmentStatus)
	assert.Nil(t, stored.LastEnrichedAt)

	// Partial: location only.
	enriched := candidateMaria()
	enriched.City = "Campo Grande"
	_, err = merge.UpsertResearcher(enriched, models.Provenance{Source: EnrichmentSource})
	require.NoError(t, err)
	require.NoError(t, merge.AdvanceEnrichment(result.ID, models.Provenance{Source: EnrichmentSource}))
	require.NoError(t, db.First(&stored, result.ID).Error)
	assert.Equal(t, models.EnrichmentPartial, stored.EnrichmentStatus)
	assert.NotNil(t, stored.LastEnrichedAt)

	// Complete: employment plus location plus an identity link.
	full := candidateMaria()
	full.JobTitle = "Data Scientist"
	full.Company = "Instituto X"
	full.Email = "maria@example.org"
	_, err = merge.UpsertResearcher(full, models.Provenance{Source: EnrichmentSource})
	require.NoError(t, err)
	require.NoError(t, merge.AdvanceEnrichment(result.ID, models.Provenance{Source: EnrichmentSource}))
	require.NoError(t, db.First(&stored, result.ID).Error)
	assert.Equal(t, models.EnrichmentComplete, stored.EnrichmentStatus)
}

func TestIsBlank(t *testing.T) {
	assert.True(t, isBlank(""))
	assert.True(t, isBlank("   "))
	assert.False(t, isBlank("value"))
	assert.True(t, isBlank("unknown", models.FieldUnknown))
	assert.False(t, isBlank("unknown"))
}
