package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
	"gorm.io/gorm"

	"scholar-trace/collectors"
	"scholar-trace/config"
	"scholar-trace/models"
)

// Agent is the AI-assisted web-discovery collector. It asks the model for
// the current whereabouts of researchers whose profiles are not yet
// complete and emits enrichment candidates under the "discovery" source
// tag, the only tag allowed to advance enrichment status.
type Agent struct {
	Config *config.Config
	DB     *gorm.DB
	Logger *zap.Logger

	client *genai.Client
	model  string
}

// profileFindings is the JSON shape the model is instructed to answer with.
type profileFindings struct {
	JobTitle   string `json:"job_title"`
	Company    string `json:"company"`
	Sector     string `json:"sector"`
	City       string `json:"city"`
	State      string `json:"state"`
	NetworkURL string `json:"network_url"`
	CVURL      string `json:"cv_url"`
	Email      string `json:"email"`
}

// NewAgent creates the discovery agent. An API key is required.
func NewAgent(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*Agent, error) {
	if cfg.DiscoveryAPIKey == "" {
		return nil, fmt.Errorf("discovery agent requires DISCOVERY_API_KEY")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.DiscoveryAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Agent{
		Config: cfg,
		DB:     db,
		Logger: logger,
		client: client,
		model:  cfg.DiscoveryModel,
	}, nil
}

func (a *Agent) Name() string {
	return "discovery"
}

// Targets selects researchers whose enrichment is not yet complete, one
// researcher per target, bounded by the configured batch size.
func (a *Agent) Targets(ctx context.Context) ([]collectors.Target, error) {
	if a.client == nil {
		return nil, fmt.Errorf("discovery agent has no model client")
	}

	var rows []models.Researcher
	err := a.DB.WithContext(ctx).
		Where("enrichment_status <> ?", models.EnrichmentComplete).
		Order("last_enriched_at asc nulls first").
		Limit(a.Config.DiscoveryBatchSize).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select enrichment targets: %w", err)
	}

	targets := make([]collectors.Target, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, collectors.Target{Key: strconv.FormatUint(uint64(row.ID), 10)})
	}
	return targets, nil
}

// Fetch asks the model about one researcher and normalizes the answer
// into a single enrichment candidate.
func (a *Agent) Fetch(ctx context.Context, target collectors.Target) ([]models.Candidate, error) {
	id, err := strconv.ParseUint(target.Key, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad target key %q: %w", target.Key, err)
	}

	var row models.Researcher
	if err := a.DB.WithContext(ctx).First(&row, uint(id)).Error; err != nil {
		return nil, fmt.Errorf("load researcher %d: %w", id, err)
	}

	findings, err := a.queryModel(ctx, &row)
	if err != nil {
		return nil, err
	}

	candidate := models.Candidate{
		Name:           row.Name,
		Institution:    row.Institution,
		GraduationYear: row.GraduationYear,
		JobTitle:       findings.JobTitle,
		Company:        findings.Company,
		Sector:         mapSector(findings.Sector),
		City:           findings.City,
		State:          findings.State,
		NetworkURL:     findings.NetworkURL,
		CVURL:          findings.CVURL,
		Email:          findings.Email,
		Provenance: models.Provenance{
			Source:    "discovery",
			Timestamp: time.Now().UTC(),
		},
	}
	return []models.Candidate{candidate}, nil
}

// queryModel runs one structured-output prompt for the researcher.
func (a *Agent) queryModel(ctx context.Context, row *models.Researcher) (*profileFindings, error) {
	prompt := fmt.Sprintf(`Find the current professional situation of the researcher below.
Answer with a single JSON object with the keys job_title, company, sector,
city, state, network_url, cv_url, email. Use an empty string for anything
you cannot verify. sector must be one of: academia, government, private, ngo.

Name: %s
Graduated from: %s (%d, %s)
Research field: %s`,
		row.Name, row.Institution, row.GraduationYear, row.DegreeLevel, row.ResearchField)

	result, err := a.client.Models.GenerateContent(ctx, a.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("model query failed: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return nil, fmt.Errorf("model returned no content")
	}

	var findings profileFindings
	if err := json.Unmarshal([]byte(text), &findings); err != nil {
		a.Logger.Warn("Model answer was not valid JSON",
			zap.String("researcher", row.Name),
			zap.String("answer", text))
		return nil, fmt.Errorf("decode model answer: %w", err)
	}
	return &findings, nil
}

// mapSector keeps only known sector values; anything else stays empty so
// the merge engine ignores it.
func mapSector(sector string) string {
	switch strings.ToLower(strings.TrimSpace(sector)) {
	case models.SectorAcademia, models.SectorGovernment, models.SectorPrivate, models.SectorNGO:
		return strings.ToLower(strings.TrimSpace(sector))
	default:
		return ""
	}
}
