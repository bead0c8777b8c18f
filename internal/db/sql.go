package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"company_spider/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type dialect struct {
	name        string
	driver      string
	goose       goose.Dialect
	placeholder func(n int) string
}

var (
	dialectSQLite = dialect{
		name:        "sqlite",
		driver:      "sqlite",
		goose:       goose.DialectSQLite3,
		placeholder: func(int) string { return "?" },
	}
	dialectPostgres = dialect{
		name:        "postgres",
		driver:      "pgx",
		goose:       goose.DialectPostgres,
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

const (
	initTimeout  = 30 * time.Second
	batchTimeout = 30 * time.Second
)

// SQLStore keeps companies in a single relational table.
type SQLStore struct {
	dialect dialect
	source  string
	db      *sql.DB
	log     zerolog.Logger
}

func NewSQLStore(d dialect, source string, log zerolog.Logger) *SQLStore {
	return &SQLStore{dialect: d, source: source, log: log}
}

func (s *SQLStore) dsn() (string, error) {
	if s.dialect.driver != dialectSQLite.driver {
		return s.source, nil
	}
	if dir := filepath.Dir(s.source); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	return s.source + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
}

// Init opens the database and brings the schema up to date.
func (s *SQLStore) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	dsn, err := s.dsn()
	if err != nil {
		return fmt.Errorf("prepare %s database: %w", s.dialect.name, err)
	}

	db, err := sql.Open(s.dialect.driver, dsn)
	if err != nil {
		return fmt.Errorf("open %s database: %w", s.dialect.name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("can't ping %s database: %w", s.dialect.name, err)
	}
	if s.dialect.driver == dialectSQLite.driver {
		// One writer at a time keeps SQLite free of "database is locked".
		db.SetMaxOpenConns(1)
	}

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return err
	}
	provider, err := goose.NewProvider(s.dialect.goose, db, migrations)
	if err != nil {
		db.Close()
		return fmt.Errorf("migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		db.Close()
		return fmt.Errorf("apply migrations: %w", err)
	}

	s.db = db
	s.log.Info().
		Str("driver", s.dialect.name).
		Str("database", s.Location()).
		Int("migrations_applied", len(results)).
		Msg("Database initialized.")
	return nil
}

func (s *SQLStore) insertQuery() string {
	p := s.dialect.placeholder
	return fmt.Sprintf(`INSERT INTO companies (company_id, company_name, company_type, city, category_url)
VALUES (%s, %s, %s, %s, %s)
ON CONFLICT (company_id) DO NOTHING`, p(1), p(2), p(3), p(4), p(5))
}

func (s *SQLStore) SaveBatch(ctx context.Context, companies []models.Company, categoryURL string) (int, error) {
	if len(companies) == 0 {
		return 0, nil
	}
	if s.db == nil {
		return 0, errors.New("store is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.insertQuery())
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, c := range companies {
		res, err := stmt.ExecContext(ctx,
			sql.NullString{String: c.CompanyID, Valid: c.CompanyID != ""},
			c.CompanyName, c.CompanyType, c.City, categoryURL)
		if err != nil {
			return 0, fmt.Errorf("insert company %q: %w", c.CompanyID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	s.log.Info().Int("new", inserted).Int("batch", len(companies)).Msg("Saved companies to database.")
	return inserted, nil
}

// Count returns the number of stored companies.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM companies").Scan(&n)
	return n, err
}

// Location describes where the data lives, with credentials stripped.
func (s *SQLStore) Location() string {
	if s.dialect.driver == dialectSQLite.driver {
		return s.source
	}
	if at := strings.LastIndex(s.source, "@"); at >= 0 {
		if scheme := strings.Index(s.source, "://"); scheme >= 0 && scheme < at {
			return s.source[:scheme+3] + s.source[at+1:]
		}
	}
	return s.dialect.name
}

func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
