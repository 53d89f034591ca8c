// Package cmd implements the keepbook command line: portfolio snapshots,
// value histories and change points over a data directory or a SQLite
// database.
package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/etnz/keepbook"
	"github.com/etnz/keepbook/store"
	"github.com/etnz/keepbook/store/sqlstore"
	"github.com/google/subcommands"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Commands lists every subcommand with its group.
var Commands = []struct {
	Command subcommands.Command
	Group   string
}{
	{&snapshotCmd{}, "reports"},
	{&historyCmd{}, "reports"},
	{&changePointsCmd{}, "reports"},
	{&accountsCmd{}, "data"},
	{&importQuoteCmd{}, "data"},
	{&importSQLiteCmd{}, "data"},
}

// Register registers every subcommand on c.
func Register(c *subcommands.Commander) {
	for _, cmd := range Commands {
		c.Register(cmd.Command, cmd.Group)
	}
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	configFile = flag.String("config", "", "Path to the TOML configuration file. Defaults to the user configuration and ./keepbook.toml.")
	dataDir    = flag.String("data-dir", "", "Path to the data directory. Overrides the configuration.")
	backend    = flag.String("backend", "", "Storage backend, jsonl or sqlite. Overrides the configuration.")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error). Overrides the configuration.")
	raw        = flag.Bool("raw", false, "Print markdown reports without terminal styling.")
)

// stdout and stderr are replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// loadConfig reads the configuration and applies the global flags.
func loadConfig() (*Config, error) {
	paths := DefaultConfigPaths()
	if *configFile != "" {
		if _, err := os.Stat(*configFile); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		paths = []string{*configFile}
	}
	cfg, err := LoadConfig(paths...)
	if err != nil {
		return nil, err
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is the storage opened for one command.
type app struct {
	cfg    *Config
	logger *zap.Logger

	// Exactly one of memory and db is set.
	memory *store.Memory
	db     *sqlstore.Store
	dirty  bool
}

// openApp loads the configuration, the logger and the configured backend.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	switch cfg.Backend {
	case backendSQLite:
		a.db, err = sqlstore.Open(cfg.DatabasePath(), logger)
	default:
		a.memory, err = store.Decode(cfg.DataDir, logger)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) storage() keepbook.Storage {
	if a.db != nil {
		return a.db
	}
	return a.memory
}

func (a *app) market() keepbook.MarketDataStore {
	if a.db != nil {
		return a.db
	}
	return a.memory
}

func (a *app) valuer() *keepbook.Valuer {
	return keepbook.NewValuer(a.storage(), a.market(), keepbook.WithLogger(a.logger))
}

func (a *app) historian() *keepbook.Historian {
	return keepbook.NewHistorian(a.storage(), a.market(), keepbook.WithLogger(a.logger))
}

func (a *app) addPrice(ctx context.Context, p keepbook.PricePoint) error {
	if a.db != nil {
		return a.db.AddPrice(ctx, p)
	}
	a.dirty = true
	return a.memory.AddPrice(p)
}

func (a *app) addConnection(ctx context.Context, c keepbook.Connection) error {
	if a.db != nil {
		return a.db.AddConnection(ctx, c)
	}
	a.dirty = true
	_, err := a.memory.AddConnection(c)
	return err
}

func (a *app) addAccount(ctx context.Context, acc keepbook.Account, cfg keepbook.AccountConfig) error {
	if a.db != nil {
		var c *keepbook.AccountConfig
		if cfg != (keepbook.AccountConfig{}) {
			c = &cfg
		}
		return a.db.AddAccount(ctx, acc, c)
	}
	a.dirty = true
	_, err := a.memory.AddAccount(acc, cfg)
	return err
}

// close saves pending changes and releases the backend.
func (a *app) close() error {
	defer func() { _ = a.logger.Sync() }()
	if a.db != nil {
		return a.db.Close()
	}
	if a.dirty {
		return store.Encode(a.cfg.DataDir, a.memory, a.logger)
	}
	return nil
}

// newID returns a fresh time-ordered identifier.
func newID() string { return uuid.Must(uuid.NewV7()).String() }

// splitList splits a comma separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// closeApp closes a and reports a failure on stderr.
func closeApp(a *app, status subcommands.ExitStatus) subcommands.ExitStatus {
	if err := a.close(); err != nil {
		fmt.Fprintf(stderr, "Error saving data: %v\n", err)
		return subcommands.ExitFailure
	}
	return status
}

// printJSON writes v on one line, without HTML escaping.
func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
