package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"company_spider/internal/fetcher"
	"company_spider/internal/models"
	"company_spider/internal/parser"
	urlqueue "company_spider/internal/url_queue"
)

// Fetcher downloads pages and can change the outbound network identity
// used for the requests that follow.
type Fetcher interface {
	Get(ctx context.Context, url string) (*fetcher.Page, error)
	RotateIdentity()
}

type ListingParser interface {
	ParseListing(body []byte, page int) ([]models.Company, error)
}

type CompanySaver interface {
	SaveBatch(ctx context.Context, companies []models.Company, categoryURL string) (int, error)
}

var separator = strings.Repeat("=", 80)

// Scraper walks category listings one page at a time. Every HTTP request is
// preceded by an identity rotation.
type Scraper struct {
	fetcher Fetcher
	parser  ListingParser
	store   CompanySaver
	delay   time.Duration
	log     zerolog.Logger
}

func NewScraper(f Fetcher, p ListingParser, store CompanySaver, delay time.Duration, log zerolog.Logger) *Scraper {
	return &Scraper{fetcher: f, parser: p, store: store, delay: delay, log: log}
}

// ScrapePage fetches, parses and stores one listing page.
func (s *Scraper) ScrapePage(ctx context.Context, page int, tmpl urlqueue.PageTemplate, categoryURL string) models.PageOutcome {
	l := s.log.With().Int("page", page).Str("category", categoryURL).Logger()
	l.Info().Msg("Scraping companies for page.")

	resp, err := s.fetcher.Get(ctx, tmpl.URL(page))
	if err != nil {
		l.Error().Err(err).Msg("Failed to fetch page.")
		return models.Failed(err)
	}

	companies, err := s.parser.ParseListing(resp.Body, page)
	if err != nil {
		l.Error().Err(err).Msg("Failed to parse page.")
		return models.Failed(err)
	}
	if len(companies) == 0 {
		l.Warn().Msg("No companies found on page.")
		return models.Scraped(0)
	}

	if _, err := s.store.SaveBatch(ctx, companies, categoryURL); err != nil {
		l.Error().Err(err).Msg("Failed to save page to database.")
		return models.Failed(err)
	}

	l.Info().Int("count", len(companies)).Msg("Successfully saved page to database.")
	return models.Scraped(len(companies))
}

func (s *Scraper) detectPageCount(ctx context.Context, baseURL string) (int, error) {
	resp, err := s.fetcher.Get(ctx, baseURL)
	if err != nil {
		return 0, err
	}
	return parser.DetectPageCount(resp.Body)
}

// ScrapeCategory scrapes pages 1..N of a category, N being read from the
// category's first page. When N can't be determined no page is attempted.
func (s *Scraper) ScrapeCategory(ctx context.Context, baseURL string) models.CategoryResult {
	s.log.Info().Msg(separator)
	s.log.Info().Str("category", baseURL).Msg("Processing category.")
	s.log.Info().Msg(separator)

	s.fetcher.RotateIdentity()

	pageCount, err := s.detectPageCount(ctx, baseURL)
	if err != nil {
		s.log.Error().Err(err).Str("category", baseURL).Msg("Failed to get page count.")
		return models.NewCategoryResult(0)
	}
	s.log.Info().Int("pages", pageCount).Str("category", baseURL).Msg("Total page count.")

	tmpl := urlqueue.NewPageTemplate(baseURL)
	result := models.NewCategoryResult(pageCount)
	for page := 1; page <= pageCount; page++ {
		s.scrapeNext(ctx, page, tmpl, baseURL, &result)
	}

	s.logCategorySummary(baseURL, result)
	return result
}

// ScrapePages scrapes an explicit set of pages of a category, e.g. the pages
// skipped by an earlier run. MaxPages is the highest page requested.
func (s *Scraper) ScrapePages(ctx context.Context, baseURL string, pages []int) models.CategoryResult {
	s.log.Info().Str("category", baseURL).Ints("pages", pages).Msg("Re-scraping pages of category.")

	tmpl := urlqueue.NewPageTemplate(baseURL)
	result := models.NewCategoryResult(0)
	for _, page := range pages {
		s.scrapeNext(ctx, page, tmpl, baseURL, &result)
		if page > result.MaxPages {
			result.MaxPages = page
		}
	}

	s.logCategorySummary(baseURL, result)
	return result
}

// scrapeNext rotates the identity, scrapes one page and records the outcome
// in result.
func (s *Scraper) scrapeNext(ctx context.Context, page int, tmpl urlqueue.PageTemplate, baseURL string, result *models.CategoryResult) {
	s.fetcher.RotateIdentity()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	outcome := s.ScrapePage(ctx, page, tmpl, baseURL)
	if !outcome.OK() {
		result.SkippedPages = append(result.SkippedPages, page)
		s.log.Error().Int("page", page).Str("category", baseURL).Msg("Page failed.")
		return
	}
	result.SuccessfulPages = append(result.SuccessfulPages, page)
	result.TotalCompanies += outcome.Count
}

func (s *Scraper) logCategorySummary(baseURL string, result models.CategoryResult) {
	s.log.Info().
		Str("category", baseURL).
		Int("total_companies", result.TotalCompanies).
		Str("successful_pages", fmt.Sprintf("%d/%d", len(result.SuccessfulPages), len(result.SuccessfulPages)+len(result.SkippedPages))).
		Msg("Category complete.")
	if len(result.SkippedPages) > 0 {
		s.log.Warn().Str("category", baseURL).Ints("skipped_pages", result.SkippedPages).Msg("Skipped pages.")
	}
}

// ScrapeAll processes the categories in order and reports, per category,
// which pages need another pass.
func (s *Scraper) ScrapeAll(ctx context.Context, baseURLs []string) models.SkippedPagesReport {
	s.log.Info().Int("categories", len(baseURLs)).Msg("Starting scraping process.")

	skipped := make(models.SkippedPagesReport, len(baseURLs))
	totalCompanies := 0

	for idx, baseURL := range baseURLs {
		s.log.Info().Msgf("Category %d/%d: %s", idx+1, len(baseURLs), baseURL)

		stats := s.ScrapeCategory(ctx, baseURL)
		skipped[baseURL] = models.CategorySkips{
			MaxPages:     stats.MaxPages,
			SkippedPages: stats.SkippedPages,
		}
		totalCompanies += stats.TotalCompanies
	}

	s.logSummary(len(baseURLs), totalCompanies, skipped)
	return skipped
}

// RetryReport re-runs the skipped pages of a previous report. Categories that
// never got a page count are scraped from scratch; fully successful ones are
// carried over untouched.
func (s *Scraper) RetryReport(ctx context.Context, previous models.SkippedPagesReport) models.SkippedPagesReport {
	categories := make([]string, 0, len(previous))
	for category := range previous {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	s.log.Info().
		Int("categories", len(categories)).
		Int("skipped_pages", previous.TotalSkipped()).
		Msg("Starting retry of skipped pages.")

	next := make(models.SkippedPagesReport, len(previous))
	totalCompanies := 0

	for _, category := range categories {
		info := previous[category]
		switch {
		case info.MaxPages == 0:
			stats := s.ScrapeCategory(ctx, category)
			next[category] = models.CategorySkips{MaxPages: stats.MaxPages, SkippedPages: stats.SkippedPages}
			totalCompanies += stats.TotalCompanies
		case len(info.SkippedPages) == 0:
			next[category] = models.CategorySkips{MaxPages: info.MaxPages, SkippedPages: []int{}}
		default:
			stats := s.ScrapePages(ctx, category, info.SkippedPages)
			next[category] = models.CategorySkips{MaxPages: info.MaxPages, SkippedPages: stats.SkippedPages}
			totalCompanies += stats.TotalCompanies
		}
	}

	s.logSummary(len(categories), totalCompanies, next)
	return next
}

func (s *Scraper) logSummary(categories, companies int, skipped models.SkippedPagesReport) {
	s.log.Info().Msg(separator)
	s.log.Info().Msg("SCRAPING SUMMARY")
	s.log.Info().Msg(separator)
	s.log.Info().Int("categories", categories).Msg("Total categories processed.")
	s.log.Info().Int("companies", companies).Msg("Total companies saved.")
	s.log.Info().Int("skipped_pages", skipped.TotalSkipped()).Msg("Total skipped pages across all categories.")
}
