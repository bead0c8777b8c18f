// Package db persists scraped companies.
package db

import (
	"context"
	"fmt"

	"company_spider/internal/config"
	"company_spider/internal/models"

	"github.com/rs/zerolog"
)

// Store is a company table with insert-if-absent semantics keyed on the
// company identifier.
type Store interface {
	Init(ctx context.Context) error
	// SaveBatch writes all companies in one atomic batch and returns how many
	// rows were new. Already known identifiers are silently ignored.
	SaveBatch(ctx context.Context, companies []models.Company, categoryURL string) (int, error)
	Count(ctx context.Context) (int64, error)
	Location() string
	Close() error
}

// NewStore picks the backend configured in cfg.Driver. Connections are opened
// lazily by Init.
func NewStore(cfg config.DBConfig, log zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return NewSQLStore(dialectSQLite, cfg.Path, log), nil
	case config.DriverPostgres:
		return NewSQLStore(dialectPostgres, cfg.DSN, log), nil
	case config.DriverMongo:
		return NewMongoDB(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}
