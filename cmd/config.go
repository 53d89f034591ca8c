package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/etnz/keepbook"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the configuration of the keepbook command line.
type Config struct {
	DataDir           string        `toml:"data_dir"`
	Backend           string        `toml:"backend"`     // jsonl or sqlite
	SQLitePath        string        `toml:"sqlite_path"` // defaults to keepbook.db in the data directory
	ReportingCurrency string        `toml:"reporting_currency"`
	BalanceStaleness  string        `toml:"balance_staleness"`
	Logging           LoggingConfig `toml:"logging"`
	History           HistoryConfig `toml:"history"`
}

// LoggingConfig holds the logger settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console or json
}

// HistoryConfig holds the defaults of the history and changepoints commands.
type HistoryConfig struct {
	Granularity   string `toml:"granularity"`
	Strategy      string `toml:"strategy"`
	IncludePrices bool   `toml:"include_prices"`
}

const (
	backendJSONL  = "jsonl"
	backendSQLite = "sqlite"
)

// NewDefaultConfig returns a Config with the default values.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:           ".keepbook",
		Backend:           backendJSONL,
		ReportingCurrency: "USD",
		BalanceStaleness:  "336h",
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
		History: HistoryConfig{
			Granularity: "full",
			Strategy:    "last",
		},
	}
}

// LoadConfig loads the defaults, then each existing file in order, then the
// KEEPBOOK_* environment variables.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfigPaths returns the configuration files read when none is given:
// the user configuration, then keepbook.toml in the working directory.
func DefaultConfigPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "keepbook", "config.toml"))
	}
	return append(paths, "keepbook.toml")
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("KEEPBOOK_DATA_DIR"); v != "" {
		config.DataDir = v
	}
	if v := os.Getenv("KEEPBOOK_BACKEND"); v != "" {
		config.Backend = v
	}
	if v := os.Getenv("KEEPBOOK_SQLITE_PATH"); v != "" {
		config.SQLitePath = v
	}
	if v := os.Getenv("KEEPBOOK_REPORTING_CURRENCY"); v != "" {
		config.ReportingCurrency = strings.ToUpper(v)
	}
	if v := os.Getenv("KEEPBOOK_BALANCE_STALENESS"); v != "" {
		config.BalanceStaleness = v
	}
	if v := os.Getenv("KEEPBOOK_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("KEEPBOOK_LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}
}

func (c *Config) validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend != backendJSONL && c.Backend != backendSQLite {
		return fmt.Errorf("%w: unknown backend %q, want %q or %q", keepbook.ErrInvalidInput, c.Backend, backendJSONL, backendSQLite)
	}
	if _, err := c.Staleness(); err != nil {
		return err
	}
	if _, err := keepbook.ParseGranularity(c.History.Granularity); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if _, err := keepbook.ParseStrategy(c.History.Strategy); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	return nil
}

// Staleness returns the default balance staleness.
func (c *Config) Staleness() (time.Duration, error) {
	d, err := time.ParseDuration(c.BalanceStaleness)
	if err != nil {
		return 0, fmt.Errorf("%w: balance_staleness: %v", keepbook.ErrInvalidInput, err)
	}
	return d, nil
}

// DatabasePath returns the SQLite database path.
func (c *Config) DatabasePath() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.DataDir, "keepbook.db")
}
