// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	tolerance, err := cfg.Matching.Tolerance()
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Matching            MatchingConfig      `yaml:"matching"`
	Extraction          ExtractionConfig    `yaml:"extraction"`
	OCR                 OCRConfig           `yaml:"ocr"`
	Indexing            IndexingConfig      `yaml:"indexing"`
	Statement           StatementConfig     `yaml:"statement"`
	IgnoredPatternsPath string              `yaml:"ignored_patterns_path"`
	Storage             StorageConfig       `yaml:"storage"`
	Observability       ObservabilityConfig `yaml:"observability"`
	API                 APIConfig           `yaml:"api"`
}

// MatchingConfig holds matcher settings
type MatchingConfig struct {
	AmountTolerance string `yaml:"amount_tolerance"`
	CardMarker      string `yaml:"card_marker"`
}

// Tolerance parses AmountTolerance
func (m MatchingConfig) Tolerance() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(m.AmountTolerance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount_tolerance %q: %w", m.AmountTolerance, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid amount_tolerance %q: negative", m.AmountTolerance)
	}
	return d, nil
}

// ExtractionConfig holds document text extraction settings
type ExtractionConfig struct {
	MinPageChars        int           `yaml:"min_page_chars"`
	MinDocumentChars    int           `yaml:"min_document_chars"`
	RenderScale         float64       `yaml:"render_scale"`
	ContentDateFallback *bool         `yaml:"content_date_fallback"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
}

// UseContentDate reports whether undated file names fall back to content dates
func (e ExtractionConfig) UseContentDate() bool {
	return e.ContentDateFallback == nil || *e.ContentDateFallback
}

// OCRConfig holds Tesseract settings
type OCRConfig struct {
	Enabled        *bool  `yaml:"enabled"`
	Language       string `yaml:"language"`
	TessdataPrefix string `yaml:"tessdata_prefix"`
	PoolSize       int    `yaml:"pool_size"`
}

// IsEnabled reports whether OCR is on (default true)
func (o OCRConfig) IsEnabled() bool {
	return o.Enabled == nil || *o.Enabled
}

// IndexingConfig holds corpus indexer settings
type IndexingConfig struct {
	Workers int `yaml:"workers"`
}

// StatementConfig maps bank export columns
type StatementConfig struct {
	Delimiter string `yaml:"delimiter"`
	Date      string `yaml:"date_column"`
	Reference string `yaml:"reference_column"`
	Label     string `yaml:"label_column"`
	Amount    string `yaml:"amount_column"`
	Debit     string `yaml:"debit_column"`
	Credit    string `yaml:"credit_column"`
	Detail    string `yaml:"detail_column"`
}

// DelimiterRune returns the first rune of Delimiter, ';' when unset
func (s StatementConfig) DelimiterRune() rune {
	for _, r := range s.Delimiter {
		return r
	}
	return ';'
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	NoColor bool   `yaml:"no_color"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads and parses the config file. Unset values take defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${INVOICE_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Matching: MatchingConfig{
			AmountTolerance: getEnv("MATCH_AMOUNT_TOLERANCE", "0.01"),
			CardMarker:      getEnv("MATCH_CARD_MARKER", ""),
		},
		Extraction: ExtractionConfig{
			MinPageChars:     getEnvInt("EXTRACT_MIN_PAGE_CHARS", 0),
			MinDocumentChars: getEnvInt("EXTRACT_MIN_DOCUMENT_CHARS", 0),
			RenderScale:      getEnvFloat("EXTRACT_RENDER_SCALE", 0),
		},
		OCR: OCRConfig{
			Language:       getEnv("OCR_LANGUAGE", ""),
			TessdataPrefix: getEnv("TESSDATA_PREFIX", ""),
			PoolSize:       getEnvInt("OCR_POOL_SIZE", 0),
		},
		Indexing: IndexingConfig{
			Workers: getEnvInt("INDEX_WORKERS", 0),
		},
		IgnoredPatternsPath: getEnv("IGNORED_PATTERNS_PATH", ""),
		Storage: StorageConfig{
			DatabasePath: getEnv("INVOICE_DB_PATH", ""),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:   getEnv("LOG_LEVEL", ""),
				Format:  getEnv("LOG_FORMAT", ""),
				NoColor: os.Getenv("NO_COLOR") != "",
			},
		},
		API: APIConfig{
			Port:           getEnvInt("API_PORT", 0),
			AllowedOrigins: getEnvList("API_ALLOWED_ORIGINS"),
		},
	}
	if v, ok := getEnvBool("OCR_ENABLED"); ok {
		cfg.OCR.Enabled = &v
	}
	if v, ok := getEnvBool("EXTRACT_CONTENT_DATE_FALLBACK"); ok {
		cfg.Extraction.ContentDateFallback = &v
	}
	if v := os.Getenv("EXTRACT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Extraction.CacheTTL = d
		}
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnv_WithPath("config.yaml")
}

// LoadOrEnv_WithPath tries to load from specified path, falls back to environment variables
func LoadOrEnv_WithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

func (c *Config) applyDefaults() {
	if c.Matching.AmountTolerance == "" {
		c.Matching.AmountTolerance = "0.01"
	}
	if c.Matching.CardMarker == "" {
		c.Matching.CardMarker = "CB "
	}
	if c.Extraction.MinPageChars <= 0 {
		c.Extraction.MinPageChars = 10
	}
	if c.Extraction.MinDocumentChars <= 0 {
		c.Extraction.MinDocumentChars = 20
	}
	if c.Extraction.RenderScale <= 0 {
		c.Extraction.RenderScale = 1.5
	}
	if c.Extraction.CacheTTL == 0 {
		c.Extraction.CacheTTL = 6 * time.Hour
	}
	if c.OCR.Language == "" {
		c.OCR.Language = "fra"
	}
	if c.OCR.PoolSize <= 0 {
		c.OCR.PoolSize = 2
	}
	if c.Statement.Delimiter == "" {
		c.Statement.Delimiter = ";"
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "invoice_matcher.db"
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
	if c.API.Port == 0 {
		c.API.Port = 8085
	}
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable, nil when unset
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, false
	}
	return b, true
}
