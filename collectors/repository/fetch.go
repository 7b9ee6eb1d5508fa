package repository

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

// Fetcher collects deposited records from the institutional repository,
// one collection per target.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

func (f *Fetcher) Name() string {
	return "repository"
}

// Targets returns one target per configured collection.
func (f *Fetcher) Targets(ctx context.Context) ([]collectors.Target, error) {
	var targets []collectors.Target
	for _, collection := range strings.Split(f.Config.RepositoryCollections, ",") {
		collection = strings.TrimSpace(collection)
		if collection == "" {
			continue
		}
		targets = append(targets, collectors.Target{
			Key: collection,
			URL: fmt.Sprintf("%s/collections/%s/items?format=json", f.Config.RepositoryBaseURL, collection),
		})
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no collections configured (REPOSITORY_COLLECTIONS)")
	}
	return targets, nil
}

// Fetch downloads and normalizes one collection listing.
func (f *Fetcher) Fetch(ctx context.Context, target collectors.Target) ([]models.Candidate, error) {
	log := f.Logger.With(zap.String("collection", target.Key))
	log.Debug("Calling repository API", zap.String("url", target.URL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("repository returned %s", resp.Status)
	}

	var payload ItemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	now := time.Now().UTC()
	var candidates []models.Candidate
	for _, item := range payload.Items {
		candidates = append(candidates, mapItem(&item, f.Config.RepositoryBaseURL, now))
	}

	log.Info("Collection fetched", zap.Int("items", len(candidates)))
	return candidates, nil
}

// mapItem converts one repository record into a normalized candidate.
func mapItem(item *Item, baseURL string, ts time.Time) models.Candidate {
	candidate := models.Candidate{
		Name:           item.Author.Name,
		Institution:    item.Institution,
		GraduationYear: item.Year,
		DegreeLevel:    mapDegree(item.Degree),
		Email:          item.Author.Email,
		Provenance: models.Provenance{
			Source:    "repository",
			Timestamp: ts,
		},
	}

	if item.Title != "" {
		sourceURL := ""
		if item.Handle != "" {
			sourceURL = fmt.Sprintf("%s/handle/%s", strings.TrimSuffix(baseURL, "/api"), item.Handle)
		}
		candidate.Publication = &models.PublicationCandidate{
			Title:       item.Title,
			DefenseYear: item.Year,
			Institution: item.Institution,
			Program:     item.Program,
			Abstract:    item.Abstract,
			AdvisorName: item.Advisor,
			Keywords:    item.Subjects,
			SourceURL:   sourceURL,
		}
	}
	return candidate
}

func mapDegree(degree string) string {
	switch strings.ToLower(strings.TrimSpace(degree)) {
	case "mestrado", "master", "masters":
		return models.DegreeMasters
	case "doutorado", "doctoral", "phd":
		return models.DegreePhD
	default:
		return ""
	}
}
