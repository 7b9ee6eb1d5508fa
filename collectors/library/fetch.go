package library

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"scholar-trace/collectors"
	"scholar-trace/config"
	"scholar-trace/models"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Fetcher scrapes the digital thesis library's HTML result pages, one
// subject query per target.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher creates a new thesis library scraper.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name returns the source tag.
func (f *Fetcher) Name() string {
	return "library"
}

// Targets returns one target per configured subject.
func (f *Fetcher) Targets(ctx context.Context) ([]collectors.Target, error) {
	var targets []collectors.Target
	for _, subject := range strings.Split(f.Config.LibrarySubjects, ",") {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			continue
		}
		targets = append(targets, collectors.Target{
			Key: subject,
			URL: fmt.Sprintf("%s/search?subject=%s", f.Config.LibraryBaseURL, url.QueryEscape(subject)),
		})
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no subjects configured (LIBRARY_SUBJECTS)")
	}
	return targets, nil
}

// Fetch downloads one result page and extracts candidates from it.
func (f *Fetcher) Fetch(ctx context.Context, target collectors.Target) ([]models.Candidate, error) {
	doc, err := f.fetchDocument(ctx, target.URL)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var candidates []models.Candidate
	doc.Find(".result-item").Each(func(_ int, item *goquery.Selection) {
		candidates = append(candidates, parseResultItem(item, f.Config.LibraryBaseURL, now))
	})

	f.Logger.Info("Library page scraped",
		zap.String("subject", target.Key),
		zap.Int("candidates", len(candidates)))
	return candidates, nil
}

func (f *Fetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "scholar-trace/1.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("library returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// parseResultItem extracts one candidate from a result block. Items with
// missing identity fields are emitted as-is; the merge engine rejects
// them, so they show up in the run's error counters instead of vanishing
// at the parse boundary.
func parseResultItem(item *goquery.Selection, baseURL string, ts time.Time) models.Candidate {
	name := strings.TrimSpace(item.Find(".author-name").First().Text())
	institution := strings.TrimSpace(item.Find(".institution").First().Text())
	year := parseYear(item.Find(".defense-year").First().Text())

	candidate := models.Candidate{
		Name:           name,
		Institution:    institution,
		GraduationYear: year,
		DegreeLevel:    mapDegree(item.Find(".degree-level").First().Text()),
		ResearchField:  strings.TrimSpace(item.Find(".research-field").First().Text()),
		Provenance: models.Provenance{
			Source:    "library",
			Timestamp: ts,
		},
	}

	title := strings.TrimSpace(item.Find(".thesis-title a").First().Text())
	if title == "" {
		title = strings.TrimSpace(item.Find(".thesis-title").First().Text())
	}
	if title != "" {
		sourceURL, _ := item.Find(".thesis-title a").First().Attr("href")
		if sourceURL != "" && !strings.HasPrefix(sourceURL, "http") {
			sourceURL = strings.TrimSuffix(baseURL, "/") + sourceURL
		}

		var keywords []string
		item.Find(".keyword").Each(func(_ int, kw *goquery.Selection) {
			if text := strings.TrimSpace(kw.Text()); text != "" {
				keywords = append(keywords, text)
			}
		})

		candidate.Publication = &models.PublicationCandidate{
			Title:       title,
			DefenseYear: year,
			Institution: institution,
			Program:     strings.TrimSpace(item.Find(".program").First().Text()),
			Abstract:    strings.TrimSpace(item.Find(".abstract").First().Text()),
			AdvisorName: strings.TrimSpace(item.Find(".advisor").First().Text()),
			Keywords:    keywords,
			SourceURL:   sourceURL,
		}
	}
	return candidate
}

func parseYear(text string) int {
	year, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || year < 1900 || year > 2100 {
		return 0
	}
	return year
}

func mapDegree(text string) string {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "mestrado", "masters", "master":
		return models.DegreeMasters
	case "doutorado", "phd", "doctorate":
		return models.DegreePhD
	default:
		return ""
	}
}
