package govapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"scholar-trace/collectors"
	"scholar-trace/config"
	"scholar-trace/models"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Fetcher collects graduate records from the governmental open-data API,
// one postgraduate program per target.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

func (f *Fetcher) Name() string {
	return "govapi"
}

// Targets returns one target per configured program code.
func (f *Fetcher) Targets(ctx context.Context) ([]collectors.Target, error) {
	var targets []collectors.Target
	for _, code := range strings.Split(f.Config.GovAPIPrograms, ",") {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		targets = append(targets, collectors.Target{
			Key: code,
			URL: fmt.Sprintf("%s/programas/%s/discentes", f.Config.GovAPIBaseURL, code),
		})
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no program codes configured (GOVAPI_PROGRAMS)")
	}
	return targets, nil
}

// Fetch downloads and normalizes the graduate list of one program.
func (f *Fetcher) Fetch(ctx context.Context, target collectors.Target) ([]models.Candidate, error) {
	log := f.Logger.With(zap.String("program", target.Key))
	log.Debug("Calling governmental API", zap.String("url", target.URL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.Config.GovAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.Config.GovAPIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("govapi returned %s", resp.Status)
	}

	var payload GraduatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	now := time.Now().UTC()
	var candidates []models.Candidate
	for _, record := range payload.Graduates {
		candidates = append(candidates, mapGraduate(&payload, &record, now))
	}

	log.Info("Program fetched", zap.Int("graduates", len(candidates)))
	return candidates, nil
}

// mapGraduate converts one API record into a normalized candidate.
func mapGraduate(resp *GraduatesResponse, record *GraduateRecord, ts time.Time) models.Candidate {
	institution := record.Institution
	if institution == "" {
		institution = resp.Program.Institution
	}

	candidate := models.Candidate{
		Name:           record.Name,
		Institution:    institution,
		GraduationYear: record.GraduationYear,
		DegreeLevel:    mapDegreeLevel(record.DegreeLevel),
		ResearchField:  resp.Program.Field,
		Provenance: models.Provenance{
			Source:    "govapi",
			Timestamp: ts,
		},
	}

	if record.ThesisTitle != "" {
		defenseYear := record.DefenseYear
		if defenseYear == 0 {
			defenseYear = record.GraduationYear
		}
		program := record.Program
		if program == "" {
			program = resp.Program.Name
		}
		candidate.Publication = &models.PublicationCandidate{
			Title:       record.ThesisTitle,
			DefenseYear: defenseYear,
			Institution: institution,
			Program:     program,
			Abstract:    record.Abstract,
			AdvisorName: record.Advisor,
			Keywords:    record.Keywords,
			SourceURL:   record.WorkURL,
		}
	}
	return candidate
}

// mapDegreeLevel translates the API's course-level labels.
func mapDegreeLevel(level string) string {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "MESTRADO", "MESTRADO PROFISSIONAL":
		return models.DegreeMasters
	case "DOUTORADO", "DOUTORADO PROFISSIONAL":
		return models.DegreePhD
	case "POS-DOUTORADO", "PÓS-DOUTORADO":
		return models.DegreePostdoc
	default:
		return ""
	}
}
