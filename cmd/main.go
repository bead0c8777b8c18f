package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/rs/zerolog/log"

	"company_spider/internal/app"
	"company_spider/internal/config"
	"company_spider/internal/logger"
	"company_spider/internal/parser"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	envPath := flag.String("env", ".env", "path to a .env file with proxy credentials")
	retryPath := flag.String("retry", "", "re-scrape only the pages listed in this skipped pages report")
	filePath := flag.String("file", "", "parse a saved listing page and print the companies as JSON")
	flag.Parse()

	if *filePath != "" {
		if err := parseFile(*filePath); err != nil {
			log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to parse file.")
		}
		return
	}

	if err := config.LoadEnvFile(*envPath); err != nil {
		log.Fatal().Err(err).Str("path", *envPath).Msg("Failed to load env file.")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config.")
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Fatal().Err(err).Msg("Failed to init logger.")
	}

	spider, err := app.NewSpiderApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create spider.")
	}

	ctx := context.Background()
	if *retryPath != "" {
		err = spider.RunRetry(ctx, *retryPath)
	} else {
		err = spider.Run(ctx)
	}
	if err != nil {
		os.Exit(1)
	}
}

// parseFile runs the listing parser over a page saved to disk, without
// touching the network or the database.
func parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	companies, err := parser.New(logger.WithComponent("Parser")).ParseListingReader(f, "", 1)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(companies)
}
