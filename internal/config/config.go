package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"company_spider/internal/proxy"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type DBConfig struct {
	Driver     string `yaml:"driver"`
	Path       string `yaml:"path"`
	DSN        string `yaml:"dsn"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type ProxyConfig struct {
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	Host      string   `yaml:"host"`
	Port      int      `yaml:"port"`
	Countries []string `yaml:"countries"`
}

// LogicConfig tunes fetching. An empty UserAgent means a random browser UA
// per request.
type LogicConfig struct {
	TimeoutSec    int    `yaml:"timeout_sec"`
	DelayMS       int    `yaml:"delay_ms"`
	UserAgent     string `yaml:"user_agent"`
	RespectRobots bool   `yaml:"respect_robots"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type ReportConfig struct {
	Path string `yaml:"path"`
}

type SpiderConfig struct {
	DB         DBConfig     `yaml:"db"`
	Proxy      ProxyConfig  `yaml:"proxy"`
	Logic      LogicConfig  `yaml:"logic"`
	Log        LogConfig    `yaml:"log"`
	Report     ReportConfig `yaml:"report"`
	Categories []string     `yaml:"categories"`
}

// LoadConfig reads the YAML file, applies environment overrides and defaults,
// and validates the result.
func LoadConfig(path string) (*SpiderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg SpiderConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func (c *SpiderConfig) applyEnv() error {
	overrideFromEnv(&c.Proxy.Username, "DATAIMPULSE_USERNAME")
	overrideFromEnv(&c.Proxy.Password, "DATAIMPULSE_PASSWORD")
	overrideFromEnv(&c.Proxy.Host, "DATAIMPULSE_HOST")
	overrideFromEnv(&c.DB.DSN, "DATABASE_URL")

	if v := os.Getenv("DATAIMPULSE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DATAIMPULSE_PORT: %w", err)
		}
		c.Proxy.Port = port
	}
	if v := os.Getenv("DATAIMPULSE_COUNTRIES"); v != "" {
		c.Proxy.Countries = strings.Split(v, ",")
	}
	return nil
}

func (c *SpiderConfig) applyDefaults() {
	setDefault(&c.DB.Driver, DriverSQLite)
	setDefault(&c.DB.Path, "flagma_companies.db")
	setDefault(&c.DB.Database, "flagma")
	setDefault(&c.DB.Collection, "companies")

	if c.Logic.TimeoutSec == 0 {
		c.Logic.TimeoutSec = 30
	}

	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Dir, "logs")
	setDefault(&c.Log.File, "scraper.log")
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 2
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 2
	}

	setDefault(&c.Report.Path, "skipped_pages.json")
}

func (c *SpiderConfig) Validate() error {
	switch c.DB.Driver {
	case DriverSQLite, DriverPostgres, DriverMongo:
	default:
		return fmt.Errorf("unknown db driver %q", c.DB.Driver)
	}
	if c.DB.Driver != DriverSQLite && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required for driver %q", c.DB.Driver)
	}
	if len(c.Categories) == 0 {
		return errors.New("no categories configured")
	}
	if c.Logic.TimeoutSec < 0 || c.Logic.DelayMS < 0 {
		return errors.New("logic.timeout_sec and logic.delay_ms must not be negative")
	}
	return nil
}

// Credentials returns the proxy account in the form the fetcher consumes.
func (c *SpiderConfig) Credentials() proxy.Credentials {
	return proxy.Credentials{
		Username:  c.Proxy.Username,
		Password:  c.Proxy.Password,
		Countries: c.Proxy.Countries,
		Host:      c.Proxy.Host,
		Port:      c.Proxy.Port,
	}
}

func overrideFromEnv(target *string, envName string) {
	if v := os.Getenv(envName); v != "" {
		*target = v
	}
}

func setDefault(target *string, value string) {
	if *target == "" {
		*target = value
	}
}
