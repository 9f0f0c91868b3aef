// Package config holds the exporter settings. Values are layered: built-in
// defaults, then an optional YAML file, then COMEXSTAT_* environment
// variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"comexexport/internal/providers/comexstat"
	"comexexport/internal/resolve"
	"comexexport/internal/sink"
)

const (
	DefaultLanguage    = "pt"
	DefaultDimension   = comexstat.DimensionCountry
	DefaultStartYear   = 2000
	DefaultEndYear     = 2024
	DefaultPerPage     = 10000
	DefaultOutput      = "export_br_us_by_chapter.csv"
	DefaultPreviewRows = sink.DefaultPreviewRows
	DefaultCacheTTL    = "24h"
)

var DefaultTerms = resolve.DefaultTerms

type Config struct {
	// BaseURL overrides the API root; empty keeps the provider default.
	BaseURL   string   `yaml:"base_url"`
	Language  string   `yaml:"language"`
	Dimension string   `yaml:"dimension"`
	Terms     []string `yaml:"terms"`

	StartYear int `yaml:"start_year"`
	EndYear   int `yaml:"end_year"`
	PerPage   int `yaml:"per_page"`

	Output      string `yaml:"output"`
	PreviewRows int    `yaml:"preview_rows"`

	// CacheDB enables the sqlite filter cache when non-empty.
	CacheDB  string `yaml:"cache_db"`
	CacheTTL string `yaml:"cache_ttl"`

	Verbose bool `yaml:"verbose"`
	Strict  bool `yaml:"strict"`
}

func Default() Config {
	terms := make([]string, len(DefaultTerms))
	copy(terms, DefaultTerms)
	return Config{
		Language:    DefaultLanguage,
		Dimension:   DefaultDimension,
		Terms:       terms,
		StartYear:   DefaultStartYear,
		EndYear:     DefaultEndYear,
		PerPage:     DefaultPerPage,
		Output:      DefaultOutput,
		PreviewRows: DefaultPreviewRows,
		CacheTTL:    DefaultCacheTTL,
	}
}

// Load returns the defaults overlaid with the YAML file at path (if any) and
// the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func (c *Config) ApplyEnv() {
	c.BaseURL = getenv("COMEXSTAT_BASE_URL", c.BaseURL)
	c.Language = getenv("COMEXSTAT_LANGUAGE", c.Language)
	c.StartYear = getenvInt("COMEXSTAT_START_YEAR", c.StartYear)
	c.EndYear = getenvInt("COMEXSTAT_END_YEAR", c.EndYear)
	c.PerPage = getenvInt("COMEXSTAT_PER_PAGE", c.PerPage)
	c.Output = getenv("COMEXSTAT_OUTPUT", c.Output)
	c.CacheDB = getenv("COMEXSTAT_CACHE_DB", c.CacheDB)
	c.CacheTTL = getenv("COMEXSTAT_CACHE_TTL", c.CacheTTL)
	if terms := splitList(os.Getenv("COMEXSTAT_TERMS")); len(terms) > 0 {
		c.Terms = terms
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Language) == "" {
		errs = append(errs, errors.New("language is required"))
	}
	if strings.TrimSpace(c.Dimension) == "" {
		errs = append(errs, errors.New("dimension is required"))
	}
	if len(c.Terms) == 0 {
		errs = append(errs, errors.New("at least one search term is required"))
	}
	if c.StartYear > c.EndYear {
		errs = append(errs, fmt.Errorf("start year %d is after end year %d", c.StartYear, c.EndYear))
	}
	if c.PerPage <= 0 {
		errs = append(errs, fmt.Errorf("per page must be positive, got %d", c.PerPage))
	}
	if strings.TrimSpace(c.Output) == "" {
		errs = append(errs, errors.New("output path is required"))
	}
	if _, err := c.CacheMaxAge(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// CacheMaxAge parses CacheTTL. Empty or "0" means cached entries never expire.
func (c Config) CacheMaxAge() (time.Duration, error) {
	value := strings.TrimSpace(c.CacheTTL)
	if value == "" || value == "0" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid cache ttl %q: %w", c.CacheTTL, err)
	}
	return ttl, nil
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	raw := strings.Split(value, ",")
	items := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		items = append(items, trimmed)
	}
	return items
}
