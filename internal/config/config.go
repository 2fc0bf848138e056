// Package config loads server settings from the environment and the
// optional matching-criteria YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mmynk/posrecon/internal/calculator"
	"github.com/mmynk/posrecon/internal/models"
)

// Config holds everything cmd/server needs to start.
type Config struct {
	Port        string
	DBPath      string
	JournalPath string
	LogLevel    string
	LogFormat   string

	// JWTSecret signs operator tokens. Empty disables token checks and the
	// operator is read from the X-Operator-ID header.
	JWTSecret string

	// MatchingConfig is the path of the YAML file that produced Criteria and
	// Limits, empty when only defaults apply.
	MatchingConfig string

	Criteria calculator.MatchingCriteria
	Limits   calculator.GroupLimits

	DefaultPageSize int
	MaxPageSize     int
}

// matchingFile mirrors the YAML keys. Every field is a pointer so absent
// keys keep their defaults.
type matchingFile struct {
	AmountTolerancePercent      *float64 `yaml:"amount_tolerance_percent"`
	DifferenceThreshold         *float64 `yaml:"difference_threshold"`
	DateBufferDays              *int     `yaml:"date_buffer_days"`
	MinFuzzyScore               *int     `yaml:"min_fuzzy_score"`
	CurrencyScale               *int32   `yaml:"currency_scale"`
	GroupTolerancePercent       *float64 `yaml:"group_tolerance_percent"`
	MinGroupStatements          *int     `yaml:"min_group_statements"`
	MaxGroupStatements          *int     `yaml:"max_group_statements"`
	SettlementAbsoluteThreshold *float64 `yaml:"settlement_absolute_threshold"`
	MaxSettlementAggregates     *int     `yaml:"max_settlement_aggregates"`
	DefaultPageSize             *int     `yaml:"default_page_size"`
	MaxPageSize                 *int     `yaml:"max_page_size"`
}

// Load reads a .env file (envPath if given, ./.env otherwise), the process
// environment and then MATCHING_CONFIG if set.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envPath[0], err)
		}
	} else {
		// A missing .env is fine; the environment may already be populated.
		_ = godotenv.Load()
	}

	cfg := &Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		DBPath:          getEnvOrDefault("DB_PATH", "./data/recon.db"),
		JournalPath:     getEnvOrDefault("JOURNAL_PATH", "./data/journal.db"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		LogFormat:       os.Getenv("LOG_FORMAT"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		MatchingConfig:  os.Getenv("MATCHING_CONFIG"),
		Criteria:        calculator.DefaultCriteria(),
		Limits:          calculator.DefaultGroupLimits(),
		DefaultPageSize: models.DefaultPageSize,
		MaxPageSize:     models.MaxPageSize,
	}

	if cfg.MatchingConfig != "" {
		if err := cfg.loadMatching(cfg.MatchingConfig); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) loadMatching(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read matching config: %w", err)
	}
	var f matchingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse matching config %s: %w", path, err)
	}
	f.apply(c)
	return nil
}

func (f matchingFile) apply(c *Config) {
	if f.AmountTolerancePercent != nil {
		c.Criteria.AmountTolerance = *f.AmountTolerancePercent
	}
	if f.DifferenceThreshold != nil {
		c.Criteria.DifferenceThreshold = decimal.NewFromFloat(*f.DifferenceThreshold)
	}
	if f.DateBufferDays != nil {
		c.Criteria.DateBufferDays = *f.DateBufferDays
	}
	if f.MinFuzzyScore != nil {
		c.Criteria.MinFuzzyScore = *f.MinFuzzyScore
	}
	if f.CurrencyScale != nil {
		c.Criteria.CurrencyScale = *f.CurrencyScale
	}
	if f.GroupTolerancePercent != nil {
		c.Limits.Tolerance = *f.GroupTolerancePercent
	}
	if f.MinGroupStatements != nil {
		c.Limits.MinStatements = *f.MinGroupStatements
	}
	if f.MaxGroupStatements != nil {
		c.Limits.MaxStatements = *f.MaxGroupStatements
	}
	if f.SettlementAbsoluteThreshold != nil {
		c.Limits.SettlementThreshold = decimal.NewFromFloat(*f.SettlementAbsoluteThreshold)
	}
	if f.MaxSettlementAggregates != nil {
		c.Limits.MaxAggregates = *f.MaxSettlementAggregates
	}
	if f.DefaultPageSize != nil {
		c.DefaultPageSize = *f.DefaultPageSize
	}
	if f.MaxPageSize != nil {
		c.MaxPageSize = *f.MaxPageSize
	}
}

// Validate checks that the loaded settings can start a server.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if err := c.Criteria.Validate(); err != nil {
		return fmt.Errorf("invalid matching criteria: %w", err)
	}
	if c.Criteria.CurrencyScale < 0 {
		return fmt.Errorf("currency_scale must not be negative")
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("invalid group limits: %w", err)
	}
	if c.DefaultPageSize < 1 || c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("page sizes must satisfy 1 <= default (%d) <= max (%d)", c.DefaultPageSize, c.MaxPageSize)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
