package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"company_spider/internal/config"
	"company_spider/internal/db"
	"company_spider/internal/fetcher"
	"company_spider/internal/logger"
	"company_spider/internal/models"
	"company_spider/internal/parser"
	"company_spider/internal/report"
	urlqueue "company_spider/internal/url_queue"
)

// CompanyStore is the persistence side of a run.
type CompanyStore interface {
	CompanySaver
	Init(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	Location() string
	Close() error
}

type SpiderApp struct {
	config  *config.SpiderConfig
	store   CompanyStore
	queue   *urlqueue.CategoryQueue
	scraper *Scraper
	runID   string
	log     zerolog.Logger
}

func NewSpiderApp(cfg *config.SpiderConfig) (*SpiderApp, error) {
	runID := uuid.NewString()
	log := logger.WithComponent("Spider").With().Str("run_id", runID).Logger()

	store, err := db.NewStore(cfg.DB, logger.WithComponent("DB"))
	if err != nil {
		return nil, err
	}

	f, err := fetcher.New(fetcher.Options{
		Credentials:   cfg.Credentials(),
		Timeout:       time.Duration(cfg.Logic.TimeoutSec) * time.Second,
		UserAgent:     cfg.Logic.UserAgent,
		RespectRobots: cfg.Logic.RespectRobots,
	}, logger.WithComponent("Fetcher"))
	if err != nil {
		return nil, err
	}

	return newSpiderApp(cfg, f, parser.New(logger.WithComponent("Parser")), store, runID, log), nil
}

func newSpiderApp(cfg *config.SpiderConfig, f Fetcher, p ListingParser, store CompanyStore, runID string, log zerolog.Logger) *SpiderApp {
	delay := time.Duration(cfg.Logic.DelayMS) * time.Millisecond
	return &SpiderApp{
		config:  cfg,
		store:   store,
		queue:   urlqueue.NewCategoryQueue(cfg.Categories...),
		scraper: NewScraper(f, p, store, delay, log),
		runID:   runID,
		log:     log,
	}
}

// Run scrapes every configured category and writes the skip report.
func (a *SpiderApp) Run(ctx context.Context) error {
	return a.run(ctx, func() (models.SkippedPagesReport, error) {
		return a.scraper.ScrapeAll(ctx, a.queue.URLs()), nil
	})
}

// RunRetry re-scrapes only the pages listed in a previous skip report.
func (a *SpiderApp) RunRetry(ctx context.Context, reportPath string) error {
	return a.run(ctx, func() (models.SkippedPagesReport, error) {
		previous, err := report.Load(reportPath)
		if err != nil {
			return nil, err
		}
		return a.scraper.RetryReport(ctx, previous), nil
	})
}

func (a *SpiderApp) run(ctx context.Context, scrape func() (models.SkippedPagesReport, error)) error {
	a.log.Info().
		Int("categories", a.queue.Size()).
		Str("db", a.store.Location()).
		Msg("Spider starting.")

	if err := a.store.Init(ctx); err != nil {
		a.log.Error().Err(err).Msg("Fatal error. Shutting down.")
		return fmt.Errorf("init store: %w", err)
	}
	defer func() {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close database.")
		}
	}()

	skipped, err := scrape()
	if err != nil {
		a.log.Error().Err(err).Msg("Fatal error. Shutting down.")
		return err
	}

	if err := report.Save(a.config.Report.Path, skipped); err != nil {
		a.log.Warn().Err(err).Str("path", a.config.Report.Path).Msg("Failed to save skipped pages report.")
	} else {
		a.log.Info().Str("path", a.config.Report.Path).Msg("Skipped pages saved.")
	}

	if total, err := a.store.Count(ctx); err == nil {
		a.log.Info().Int64("companies", total).Msg("Companies in database.")
	}

	a.log.Info().
		Str("db", a.store.Location()).
		Str("report", a.config.Report.Path).
		Msg("Scraping complete.")
	return nil
}
